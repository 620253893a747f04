// Package producers runs the periodic per-subsystem telemetry readers
// and the beacon downlink (component C6, spec's supplemental
// periodic-task list). Each reader is its own goroutine on a ticker,
// mirroring the teacher's per-sensor handler shape
// (appdrivers/temphum.go's Receive callback) but pull-based rather than
// frame-driven, since these subsystems are polled rather than
// self-reporting over the link.
package producers

import (
	"log"
	"time"

	"github.com/spacelab-ufsc/obdh2-sub000/devices"
	"github.com/spacelab-ufsc/obdh2-sub000/obdherr"
	"github.com/spacelab-ufsc/obdh2-sub000/satstate"
	"github.com/spacelab-ufsc/obdh2-sub000/telemetry"
)

// reader is satisfied by any devices collaborator whose telemetry is a
// flat 256-byte page.
type reader interface {
	ReadTelemetry() ([]byte, error)
}

// Config wires the periodic readers to their collaborators and the
// persistence layer.
type Config struct {
	Interval time.Duration // default 10s if zero

	EPS        devices.EPS
	TTC0, TTC1 devices.TTC
	Antenna    devices.Antenna
	EDCA, EDCB devices.EDC
	PX         devices.PX

	Store *telemetry.Store
	State *satstate.State
}

// Runner owns the set of periodic reader goroutines (spec §5: each
// subsystem polled on its own cycle, writes serialized through
// telemetry.Store's internal mutex).
type Runner struct {
	cfg Config
}

// New returns a Runner. Call Start to launch the reader goroutines.
func New(cfg Config) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Runner{cfg: cfg}
}

// Start launches one goroutine per subsystem that has a non-nil
// collaborator; all exit when stop is closed.
func (r *Runner) Start(stop <-chan struct{}) {
	type family struct {
		dataID int
		name   string
		dev    reader
	}
	families := []family{
		{satstate.DataEPS, "EPS", r.cfg.EPS},
		{satstate.DataTTC0, "TTC0", r.cfg.TTC0},
		{satstate.DataTTC1, "TTC1", r.cfg.TTC1},
		{satstate.DataANT, "Antenna", r.cfg.Antenna},
		{satstate.DataEDCInfo, "EDC-A", r.cfg.EDCA},
		{satstate.DataPX, "PX", r.cfg.PX},
	}
	for _, f := range families {
		if f.dev == nil {
			continue
		}
		go r.runFamily(stop, f.dataID, f.name, f.dev)
	}
}

// runFamily polls one subsystem on Config.Interval, retrying a
// TransientIo failure up to 3 times with a 500ms backoff before logging
// and skipping the cycle (spec §7 TransientIo policy).
func (r *Runner) runFamily(stop <-chan struct{}, dataID int, name string, dev reader) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.pollOnce(dataID, name, dev)
		}
	}
}

func (r *Runner) pollOnce(dataID int, name string, dev reader) {
	var raw []byte
	var err error
	for attempt := 0; attempt <= 3; attempt++ {
		raw, err = dev.ReadTelemetry()
		if err == nil {
			break
		}
		if _, ok := err.(obdherr.TransientIo); !ok || attempt == 3 {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		log.Printf("producers: %s: read failed after retries: %v", name, err)
		return
	}

	var snap satstate.TelemetrySnapshot
	snap.Epoch = time.Now().Unix()
	copy(snap.Raw[:], raw)
	r.cfg.State.UpdateTelemetry(dataID, snap)

	if r.cfg.Store != nil {
		if err := r.cfg.Store.WritePage(r.cfg.State, dataID, snap.Raw); err != nil {
			log.Printf("producers: %s: NOR write failed: %v", name, err)
		}
	}
}
