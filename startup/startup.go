// Package startup implements component C7: FRAM/NOR bring-up recovery,
// the periodic housekeeping snapshot, and the watchdog kick loop. The
// watchdog and reset hardware themselves are non-goal interfaces (spec
// §1); this package owns only the scheduling around them, following the
// same ticker-goroutine shape as producers.Runner.
package startup

import (
	"log"
	"time"

	"github.com/spacelab-ufsc/obdh2-sub000/satstate"
	"github.com/spacelab-ufsc/obdh2-sub000/telemetry"
)

// WatchdogKicker is the hardware/software watchdog collaborator (spec
// §1 non-goal: "the watchdog trigger loop" is ours, the watchdog device
// itself is not).
type WatchdogKicker interface {
	Kick() error
}

// Bringup verifies the FRAM magic word and recovers (or seeds default)
// satellite state, per spec §4.2/§8 scenario 6. It is meant to run once
// at process start, before any other component goroutine is launched.
func Bringup(store *telemetry.Store, st *satstate.State) (recovered bool, err error) {
	recovered, err = store.Recover(st)
	if err != nil {
		log.Printf("startup: recovery failed: %v", err)
		return recovered, err
	}
	if recovered {
		log.Printf("startup: FRAM magic valid, restored prior configuration (mode=%s)", st.Snapshot().Mode)
	} else {
		log.Printf("startup: FRAM magic absent or torn, NOR erased and defaults seeded")
	}
	return recovered, nil
}

// Config wires the periodic startup-owned loops.
type Config struct {
	Watchdog         WatchdogKicker
	WatchdogInterval time.Duration // default 100ms

	Store                *telemetry.Store
	State                *satstate.State
	HousekeepingInterval time.Duration // default 60s
}

// Supervisor runs the watchdog kick loop and the housekeeping snapshot
// loop for the lifetime of the process.
type Supervisor struct {
	cfg Config
}

// New returns a Supervisor ready to Start.
func New(cfg Config) *Supervisor {
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = 100 * time.Millisecond
	}
	if cfg.HousekeepingInterval <= 0 {
		cfg.HousekeepingInterval = 60 * time.Second
	}
	return &Supervisor{cfg: cfg}
}

// Start launches the watchdog and housekeeping goroutines; both exit
// when stop is closed.
func (s *Supervisor) Start(stop <-chan struct{}) {
	if s.cfg.Watchdog != nil {
		go s.runWatchdog(stop)
	}
	if s.cfg.Store != nil && s.cfg.State != nil {
		go s.runHousekeeping(stop)
	}
}

func (s *Supervisor) runWatchdog(stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.cfg.Watchdog.Kick(); err != nil {
				log.Printf("startup: watchdog kick failed: %v", err)
			}
		}
	}
}

// runHousekeeping snapshots the OBDH config to FRAM and scrubs NOR/FRAM
// for corruption once per cycle (spec §2 "on every successful minute,
// MM snapshots its working state to FRAM", and the supplemental
// mem_check task).
func (s *Supervisor) runHousekeeping(stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.HousekeepingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.cfg.Store.SaveConfig(s.cfg.State); err != nil {
				log.Printf("startup: housekeeping SaveConfig failed: %v", err)
				continue
			}
			if n := s.cfg.Store.Scrub(s.cfg.State); n > 0 {
				log.Printf("startup: housekeeping scrub found cumulative corruption count=%d", n)
			}
		}
	}
}
