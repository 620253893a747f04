package producers

import (
	"encoding/binary"
	"log"
	"time"

	"github.com/spacelab-ufsc/obdh2-sub000/satstate"
)

// BeaconSender is satisfied by *radiolink.Link.
type BeaconSender interface {
	Send(payload []byte, flags uint8) error
}

// BeaconConfig wires the beacon downlink to its state sources. Position
// comes from satstate, which orbit.Task keeps current each propagation
// cycle, so no direct orbit dependency is needed here.
type BeaconConfig struct {
	Interval time.Duration // default 60s if zero
	DownID   byte          // downlink packet ID; default 0x20 (DownTelemetry)

	Sender BeaconSender
	State  *satstate.State
}

// BeaconProducer periodically downlinks a compact summary frame: mode,
// hibernation flag, active payload slots, and last propagated position
// (firmware's beacon.c task).
type BeaconProducer struct {
	cfg BeaconConfig
}

// NewBeacon returns a BeaconProducer. Call Start to launch its
// goroutine.
func NewBeacon(cfg BeaconConfig) *BeaconProducer {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.DownID == 0 {
		cfg.DownID = 0x20
	}
	return &BeaconProducer{cfg: cfg}
}

// Start launches the beacon goroutine; it exits when stop is closed.
func (b *BeaconProducer) Start(stop <-chan struct{}) {
	go b.run(stop)
}

func (b *BeaconProducer) run(stop <-chan struct{}) {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.emit()
		}
	}
}

func (b *BeaconProducer) emit() {
	if b.cfg.Sender == nil {
		return
	}
	snap := b.cfg.State.Snapshot()
	pos := b.cfg.State.PositionSnapshot()

	payload := make([]byte, 1+1+1+1+4+4+8)
	payload[0] = byte(snap.Mode)
	if snap.InHibernation {
		payload[1] = 1
	}
	payload[2] = byte(snap.Active[satstate.SlotEDC])
	payload[3] = byte(snap.Active[satstate.SlotPX])
	binary.BigEndian.PutUint32(payload[4:8], uint32(pos.LatE7))
	binary.BigEndian.PutUint32(payload[8:12], uint32(pos.LonE7))
	binary.BigEndian.PutUint64(payload[12:20], uint64(pos.Epoch))

	if err := b.cfg.Sender.Send(append([]byte{b.cfg.DownID}, payload...), 0); err != nil {
		log.Printf("producers: beacon: send failed: %v", err)
	}
}
