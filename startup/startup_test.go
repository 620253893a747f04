package startup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spacelab-ufsc/obdh2-sub000/satstate"
	"github.com/spacelab-ufsc/obdh2-sub000/telemetry"
)

func TestBringupSeedsDefaultsOnVirginFRAM(t *testing.T) {
	st := satstate.New()
	store := telemetry.New(telemetry.NewSimNOR(), telemetry.NewSimFRAM())

	recovered, err := Bringup(store, st)
	require.NoError(t, err)
	require.False(t, recovered)
	require.Equal(t, satstate.ModeNormal, st.Snapshot().Mode)
}

func TestBringupRestoresPriorConfigOnSecondBoot(t *testing.T) {
	st := satstate.New()
	fram := telemetry.NewSimFRAM()
	nor := telemetry.NewSimNOR()
	store := telemetry.New(nor, fram)

	_, err := Bringup(store, st)
	require.NoError(t, err)
	st.SetMode(satstate.ModeStandBy, time.Now())
	require.NoError(t, store.SaveConfig(st))

	st2 := satstate.New()
	store2 := telemetry.New(nor, fram)
	recovered, err := Bringup(store2, st2)
	require.NoError(t, err)
	require.True(t, recovered)
	require.Equal(t, satstate.ModeStandBy, st2.Snapshot().Mode)
}

type countingWatchdog struct {
	mu   sync.Mutex
	kicks int
}

func (w *countingWatchdog) Kick() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.kicks++
	return nil
}

func (w *countingWatchdog) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.kicks
}

func TestSupervisorKicksWatchdogPeriodically(t *testing.T) {
	wd := &countingWatchdog{}
	sup := New(Config{Watchdog: wd, WatchdogInterval: 5 * time.Millisecond})
	stop := make(chan struct{})
	sup.Start(stop)
	defer close(stop)

	require.Eventually(t, func() bool {
		return wd.count() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestSupervisorHousekeepingSavesConfig(t *testing.T) {
	st := satstate.New()
	fram := telemetry.NewSimFRAM()
	store := telemetry.New(telemetry.NewSimNOR(), fram)
	_, _ = Bringup(store, st)
	st.SetMode(satstate.ModeStandBy, time.Now())

	sup := New(Config{Store: store, State: st, HousekeepingInterval: 5 * time.Millisecond})
	stop := make(chan struct{})
	sup.Start(stop)

	require.Eventually(t, func() bool {
		st2 := satstate.New()
		recovered, err := Bringup(telemetry.New(telemetry.NewSimNOR(), fram), st2)
		return err == nil && recovered && st2.Snapshot().Mode == satstate.ModeStandBy
	}, time.Second, 5*time.Millisecond)
	close(stop)
}
