package ulid

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake_SortsInCreationOrder(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = Make(at)
	}
	assert.True(t, sort.StringsAreSorted(ids))

	ts, err := Timestamp(ids[0])
	require.NoError(t, err)
	assert.True(t, at.Equal(ts))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(Now()))
	assert.False(t, Valid("not-a-ulid"))
	assert.False(t, Valid(""))

	_, err := Timestamp("nope")
	assert.Error(t, err)
}
