package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/uplink/internal/uplink"
	"github.com/temoto/uplink/log2"
)

func TestPersistTotals(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	root := t.TempDir()

	var before uplink.Totals
	p, err := New("totals", &before, root, log)
	require.NoError(t, err)
	require.True(t, p.Enabled())
	require.NoError(t, p.Load(), "empty storage is not an error")
	before.AddBoot()
	before.AddSend(10)
	require.NoError(t, p.Store())

	var after uplink.Totals
	p2, err := New("totals", &after, root, log)
	require.NoError(t, err)
	require.NoError(t, p2.Load())
	snap := after.Snapshot()
	assert.Equal(t, uint64(1), snap.Boots)
	assert.Equal(t, uint64(1), snap.Sends)
	assert.Equal(t, uint64(10+uplink.TCPIPHeaderSize), snap.SentBytes)
}

func TestPersistDisabled(t *testing.T) {
	t.Parallel()

	var tot uplink.Totals
	p, err := New("totals", &tot, "", log2.NewTest(t, log2.LDebug))
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Load())
	assert.NoError(t, p.Store())

	_, err = New("totals", nil, "", nil)
	assert.Error(t, err)
	var nilp *Persist
	assert.NoError(t, nilp.Store())
}
