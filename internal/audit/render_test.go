package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPad(t *testing.T) {
	tests := []struct {
		name string
		s    string
		n    int
		c    rune
		want string
	}{
		{name: "right", s: "abc", n: 6, c: '-', want: "abc---"},
		{name: "left", s: "abc", n: -6, c: '*', want: "***abc"},
		{name: "already long", s: "abcdef", n: 3, c: '-', want: "abcdef"},
		{name: "exact", s: "abc", n: -3, c: '-', want: "abc"},
		{name: "default space", s: "a", n: 3, want: "a  "},
		{name: "empty", s: "", n: 2, c: '.', want: ".."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Pad(tt.s, tt.n, tt.c))
		})
	}
}

func sampleReport() *Report {
	return &Report{
		Threshold: 12000,
		Entries: []Entry{
			{ContractName: "RootChain", SizeBytes: 24000, OverLimit: true},
			{ContractName: "CryptoMons", SizeBytes: 2000},
			{ContractName: "ValidatorManagerContract", SizeBytes: 20},
		},
	}
}

func TestWriteLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLines(&buf, sampleReport(), Bytes))

	assert.Equal(t,
		"RootChain----------------24000\n"+
			OverLimitMarker+"\n"+
			"CryptoMons---------------2000\n"+
			"ValidatorManagerContract-20\n",
		buf.String())
}

func TestWriteLines_Kilobytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLines(&buf, sampleReport(), Kilobytes))
	assert.Contains(t, buf.String(), "RootChain----------------24.000\n")
	assert.Contains(t, buf.String(), "ValidatorManagerContract-0.020\n")
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, sampleReport(), Bytes)

	out := buf.String()
	assert.Contains(t, out, "RootChain")
	assert.Contains(t, out, "200.0")
	assert.Contains(t, out, "1 over")
}

func TestWriteJSON(t *testing.T) {
	dir := sizedDir(t)
	report, err := Audit(context.Background(), dir, Options{Threshold: 12000})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, report))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, report.Entries, decoded.Entries)
	assert.Equal(t, 12000, decoded.Threshold)
}

func TestParseUnit(t *testing.T) {
	u, err := ParseUnit("KB")
	require.NoError(t, err)
	assert.Equal(t, Kilobytes, u)

	u, err = ParseUnit("")
	require.NoError(t, err)
	assert.Equal(t, Bytes, u)

	_, err = ParseUnit("mb")
	assert.Error(t, err)
}
