package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epord/Plasma-Cash-RootChain/internal/artifact"
)

func writeArtifact(t *testing.T, dir, file, name string, hexLen int) {
	t.Helper()
	doc := map[string]any{
		"contractName":     name,
		"deployedBytecode": "0x" + strings.Repeat("ab", hexLen/2),
		"abi":              []any{},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), data, 0o644))
}

// sizedDir holds artifacts with 40, 4000 and 48000 hex characters of code.
func sizedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeArtifact(t, dir, "Small.json", "ValidatorManagerContract", 40)
	writeArtifact(t, dir, "Medium.json", "CryptoMons", 4000)
	writeArtifact(t, dir, "Large.json", "RootChain", 48000)
	return dir
}

func TestAudit_SizesAndOrder(t *testing.T) {
	dir := sizedDir(t)

	report, err := Audit(context.Background(), dir, Options{Threshold: 12000})
	require.NoError(t, err)

	require.Len(t, report.Entries, 3)
	var sizes []int
	var over []bool
	for _, e := range report.Entries {
		sizes = append(sizes, e.SizeBytes)
		over = append(over, e.OverLimit)
	}
	assert.Equal(t, []int{24000, 2000, 20}, sizes)
	assert.Equal(t, []bool{true, false, false}, over)
	assert.Equal(t, "RootChain", report.Entries[0].ContractName)
	assert.Equal(t, filepath.Join(dir, "Large.json"), report.Entries[0].Path)
	assert.Equal(t, ExitOverLimit, report.ExitCode())
	assert.Len(t, report.OverLimit(), 1)
}

func TestAudit_TiesBrokenByName(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "b.json", "Beta", 100)
	writeArtifact(t, dir, "a.json", "Alpha", 100)
	writeArtifact(t, dir, "c.json", "Gamma", 200)

	report, err := Audit(context.Background(), dir, Options{Threshold: 24000})
	require.NoError(t, err)

	var names []string
	for _, e := range report.Entries {
		names = append(names, e.ContractName)
	}
	assert.Equal(t, []string{"Gamma", "Alpha", "Beta"}, names)
	assert.Equal(t, ExitOK, report.ExitCode())
}

func TestAudit_OutputIsStable(t *testing.T) {
	dir := sizedDir(t)
	for i := 0; i < 20; i++ {
		writeArtifact(t, dir, "Same"+strings.Repeat("x", i)+".json", "Same", 64)
	}

	render := func() string {
		report, err := Audit(context.Background(), dir, Options{Threshold: 12000, Concurrency: 4})
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, WriteLines(&buf, report, Bytes))
		return buf.String()
	}
	assert.Equal(t, render(), render())
}

func TestAudit_EmptyDirectory(t *testing.T) {
	report, err := Audit(context.Background(), t.TempDir(), Options{Threshold: 24000})
	require.NoError(t, err)
	assert.Empty(t, report.Entries)
	assert.Equal(t, ExitOK, report.ExitCode())
}

func TestAudit_IgnoresOtherEntries(t *testing.T) {
	dir := sizedDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# build"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))

	report, err := Audit(context.Background(), dir, Options{Threshold: 12000})
	require.NoError(t, err)
	assert.Len(t, report.Entries, 3)
}

func TestAudit_DirectoryUnreadable(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	_, err := Audit(context.Background(), missing, Options{Threshold: 1})
	assert.ErrorIs(t, err, ErrDirectoryUnreadable)
	assert.Equal(t, ExitReadError, ExitCodeFor(err))

	file := filepath.Join(t.TempDir(), "file.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))
	_, err = Audit(context.Background(), file, Options{Threshold: 1})
	assert.ErrorIs(t, err, ErrDirectoryUnreadable)
}

func TestAudit_InvalidThreshold(t *testing.T) {
	_, err := Audit(context.Background(), t.TempDir(), Options{})
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestAudit_MalformedArtifacts(t *testing.T) {
	malformed := map[string]string{
		"not-json.json":     "{",
		"no-name.json":      `{"deployedBytecode":"0x6080"}`,
		"no-bytecode.json":  `{"contractName":"Broken"}`,
		"odd-bytecode.json": `{"contractName":"Odd","deployedBytecode":"0x608"}`,
	}
	for file, doc := range malformed {
		t.Run(file, func(t *testing.T) {
			dir := sizedDir(t)
			require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(doc), 0o644))

			_, err := Audit(context.Background(), dir, Options{Threshold: 12000})
			assert.ErrorIs(t, err, artifact.ErrMalformedArtifact)
			var ae *ArtifactError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, filepath.Join(dir, file), ae.Path)

			report, err := Audit(context.Background(), dir, Options{Threshold: 12000, OnMalformed: Skip})
			require.NoError(t, err)
			assert.Len(t, report.Entries, 3)
			require.Len(t, report.Skipped, 1)
			assert.Equal(t, filepath.Join(dir, file), report.Skipped[0].Path)
		})
	}
}

func TestAudit_ReportsFirstMalformedArtifact(t *testing.T) {
	dir := sizedDir(t)
	for _, file := range []string{"a-broken.json", "m-broken.json", "z-broken.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte("{"), 0o644))
	}

	for _, concurrency := range []int{1, 2, 8} {
		for range 5 {
			_, err := Audit(context.Background(), dir, Options{Threshold: 12000, Concurrency: concurrency})
			var ae *ArtifactError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, filepath.Join(dir, "a-broken.json"), ae.Path)
		}
	}
}

func TestAudit_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Audit(ctx, sizedDir(t), Options{Threshold: 12000})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseMalformedPolicy(t *testing.T) {
	p, err := ParseMalformedPolicy("")
	require.NoError(t, err)
	assert.Equal(t, Abort, p)

	p, err = ParseMalformedPolicy("SKIP")
	require.NoError(t, err)
	assert.Equal(t, Skip, p)

	_, err = ParseMalformedPolicy("ignore")
	assert.Error(t, err)
}
