package testutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chairctl/internal/kernel"
	"chairctl/internal/services"
	"chairctl/pkg/chairtypes"
)

func TestNewDeterministicIDs(t *testing.T) {
	next := NewDeterministicIDs()
	assert.Equal(t, "00000001-0000-4000-8000-000000000001", next())
	assert.Equal(t, "00000002-0000-4000-8000-000000000002", next())

	other := NewDeterministicIDs()
	assert.Equal(t, "00000001-0000-4000-8000-000000000001", other())
}

func TestNewFakeClock(t *testing.T) {
	clk := NewFakeClock()
	assert.Equal(t, BaseTime, clk.Now())
	clk.Advance(time.Second)
	assert.Equal(t, BaseTime.Add(time.Second), clk.Now())
}

func TestBootDevChair(t *testing.T) {
	k := BootDevChair(t)

	st, err := k.State()
	require.NoError(t, err)
	assert.Equal(t, chairtypes.MasterRunning, st.Master.Get())
	assert.Len(t, st.ServiceIDs(), len(chairtypes.AllServiceIDs()))

	relays, err := kernel.StateOf(k, services.RelayKey)
	require.NoError(t, err)
	assert.Len(t, relays.Relays.Get(), 3)
}
