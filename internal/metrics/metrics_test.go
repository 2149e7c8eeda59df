package metrics

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epord/Plasma-Cash-RootChain/internal/sequencer"
)

type stubBackend struct {
	failOn string
	n      int64
}

func (b *stubBackend) Link(context.Context, sequencer.LinkedLibrary, string) error { return nil }

func (b *stubBackend) Deploy(_ context.Context, name string, _ []any) (sequencer.Receipt, error) {
	if name == b.failOn {
		return sequencer.Receipt{}, errors.New("out of gas")
	}
	b.n++
	return sequencer.Receipt{Address: common.BigToAddress(big.NewInt(b.n))}, nil
}

func runSession(d *Deployments, failOn string) {
	steps := []sequencer.Step{
		{Name: "ECVerify", Kind: sequencer.KindLibrary},
		{Name: "RootChain", Libraries: []string{"ECVerify"}},
		{Name: "CryptoMons", Args: []sequencer.Arg{sequencer.Ref("RootChain")}},
	}
	_, _ = sequencer.New(&stubBackend{failOn: failOn}, sequencer.WithObserver(d)).Run(context.Background(), steps)
}

func TestDeployments_CountsOutcomes(t *testing.T) {
	d := NewDeployments("ganache")

	runSession(d, "")
	runSession(d, "CryptoMons")

	assert.Equal(t, 2.0, testutil.ToFloat64(d.stepsTotal.WithLabelValues("library", "deployed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(d.stepsTotal.WithLabelValues("contract", "deployed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.stepsTotal.WithLabelValues("contract", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.sessionsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.sessionsTotal.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(d.deployedSteps))
	assert.Equal(t, 2, testutil.CollectAndCount(d.stepDuration))
}

func TestDeployments_Push(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDeployments("ganache")
	runSession(d, "")

	require.NoError(t, d.Push(context.Background(), srv.URL, "deployctl"))
	assert.Equal(t, "/metrics/job/deployctl/network/ganache", gotPath)
	assert.NotEmpty(t, gotBody)

	runSession(d, "CryptoMons")
	require.NoError(t, d.Push(context.Background(), srv.URL, "deployctl"))
}

func TestDeployments_NoGroupingLabelInCollectors(t *testing.T) {
	d := NewDeployments("ganache")
	runSession(d, "CryptoMons")

	families, err := d.Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				assert.NotEqual(t, "network", lp.GetName(), mf.GetName())
			}
		}
	}
}

func TestDeployments_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDeployments("ganache")
	assert.Error(t, d.Push(context.Background(), srv.URL, "deployctl"))
}
