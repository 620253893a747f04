package devices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSimEDCPowerCycle(t *testing.T) {
	e := NewSimEDC("EDC-A")
	require.False(t, e.Powered())
	require.NoError(t, e.PowerOn())
	require.True(t, e.Powered())
	require.NoError(t, e.PowerOff())
	require.False(t, e.Powered())
}

func TestSimPXRequiresPowerBeforeExperiment(t *testing.T) {
	p := NewSimPX()
	err := p.StartExperiment(1, make(chan struct{}))
	require.Error(t, err)
}

func TestSimPXCancelStopsEarly(t *testing.T) {
	p := NewSimPX()
	require.NoError(t, p.PowerOn())

	cancel := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- p.StartExperiment(3600, cancel) }()

	require.Eventually(t, p.Running, time.Second, 5*time.Millisecond)
	close(cancel)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("StartExperiment did not honor cancellation")
	}
	require.False(t, p.Running())
}

func TestSimTTCTxEnable(t *testing.T) {
	ttc := NewSimTTC()
	require.True(t, ttc.TxEnabled())
	require.NoError(t, ttc.SetTxEnable(false))
	require.False(t, ttc.TxEnabled())
}
