// Package missionmgr implements the mission manager (component C4,
// spec §4.4): a blocking event-loop consumer over a bounded channel
// that arbitrates operational mode and payload activation. It is the
// sole writer of satstate's mode/payload fields, generalizing the
// teacher's RunNPI main-loop shape (a single goroutine multiplexing
// on select over a handful of channels, npi_phy.go's RunNPI) from OTA
// frame plumbing to mode/payload state transitions.
package missionmgr

import (
	"log"
	"time"

	"github.com/spacelab-ufsc/obdh2-sub000/devices"
	"github.com/spacelab-ufsc/obdh2-sub000/obdherr"
	"github.com/spacelab-ufsc/obdh2-sub000/satstate"
)

// Config wires Manager to its payload/radio collaborators (spec §1
// non-goal interfaces, concretely satisfied by devices.Sim* in tests and
// the dry-run binary, or real drivers in production).
type Config struct {
	EDCA, EDCB devices.EDC
	PX         devices.PX
	TTC0, TTC1 devices.TTC

	// MainEDCIsA selects which EDC receiver InRegion/Normal-entry powers
	// on as the "configured main EDC" (spec §4.4).
	MainEDCIsA bool

	// PxExperimentDuration is handed to devices.PX.StartExperiment when
	// OutOfRegion triggers a PX run.
	PxExperimentDuration time.Duration

	// QueueDepth sizes the bounded event queue (spec §5 "bounded";
	// enqueue with 10ms timeout). Defaults to 16 if zero.
	QueueDepth int
}

// Manager is the mission manager (spec §4.4).
type Manager struct {
	cfg   Config
	state *satstate.State
	queue chan satstate.Event

	pxCancel chan struct{}
}

// New constructs a Manager bound to st. Call Run in its own goroutine.
func New(cfg Config, st *satstate.State) *Manager {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 16
	}
	return &Manager{
		cfg:   cfg,
		state: st,
		queue: make(chan satstate.Event, depth),
	}
}

// Enqueue posts ev to the event queue with a 10ms timeout (spec §5
// "Event queue: MPSC; bounded; enqueue with 10 ms timeout"), returning
// obdherr.ResourceFull if the queue stays full.
func (m *Manager) Enqueue(ev satstate.Event) error {
	select {
	case m.queue <- ev:
		return nil
	case <-time.After(10 * time.Millisecond):
		return obdherr.ResourceFull("mission manager event queue full")
	}
}

// RequestAndWait posts ev with a fresh Done channel and blocks (up to
// timeout) for Mission Manager to close it, the oneshot per-TC reply
// spec §9 calls for in place of the origin's global task-notify.
func (m *Manager) RequestAndWait(ev satstate.Event, timeout time.Duration) error {
	done := make(chan struct{})
	ev.Done = done
	if err := m.Enqueue(ev); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return obdherr.ResourceFull("mission manager did not acknowledge event in time")
	}
}

// CheckHibernationTimeout is the supplemental housekeeping check (spec
// §4.4 "Hibernation exit by timeout", modeled on the original firmware's
// mode_check task): if the commanded hibernation duration has elapsed,
// synthesize a WakeUp ModeChangeRequest.
func (m *Manager) CheckHibernationTimeout(now time.Time) {
	if !m.state.HibernationDeadlinePassed(now) {
		return
	}
	if err := m.Enqueue(satstate.Event{Kind: satstate.EventModeChangeRequest, RequestedMode: satstate.ModeWakeUp}); err != nil {
		log.Printf("missionmgr: failed to enqueue synthesized WakeUp: %v", err)
	}
}

// Run is the blocking event loop (spec §4.4, §5 "MM blocks on its event
// queue with a 1-hour timeout; on timeout, it logs and resumes
// waiting"). It runs until stop is closed.
func (m *Manager) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev := <-m.queue:
			m.handle(ev)
		case <-time.After(time.Hour):
			log.Printf("missionmgr: event queue idle for 1 hour")
		}
	}
}

func (m *Manager) handle(ev satstate.Event) {
	switch ev.Kind {
	case satstate.EventInRegion:
		m.handleInRegion()
	case satstate.EventOutOfRegion:
		m.handleOutOfRegion()
	case satstate.EventPxExperimentFinished:
		m.handlePxExperimentFinished()
	case satstate.EventModeChangeRequest:
		m.handleModeChangeRequest(ev)
	case satstate.EventActivatePayloadRequest:
		m.handleActivatePayload(ev.PayloadID)
	case satstate.EventDeactivatePayloadRequest:
		m.handleDeactivatePayload(ev.PayloadID)
	default:
		log.Printf("missionmgr: unknown event kind %v", ev.Kind)
	}

	if ev.Done != nil {
		close(ev.Done)
	}
}

func (m *Manager) mainEDC() (devices.EDC, satstate.PayloadID) {
	if m.cfg.MainEDCIsA {
		return m.cfg.EDCA, satstate.PayloadEDCA
	}
	return m.cfg.EDCB, satstate.PayloadEDCB
}

func (m *Manager) handleInRegion() {
	if m.state.Manual() || m.state.Slot(satstate.SlotEDC) != satstate.PayloadNone {
		return
	}
	edc, tag := m.mainEDC()
	if edc == nil {
		log.Printf("missionmgr: InRegion: no main EDC configured")
		return
	}
	if err := edc.PowerOn(); err != nil {
		log.Printf("missionmgr: InRegion: failed to power main EDC: %v", err)
		return
	}
	m.state.SetSlot(satstate.SlotEDC, tag)
	m.state.SetEDCActive(true, tag)
	if m.state.Snapshot().Mode != satstate.ModeHibernation {
		m.state.SetMode(satstate.ModeNormal, time.Now())
	}
}

func (m *Manager) handleOutOfRegion() {
	if m.state.Manual() {
		return
	}
	if edc, _ := m.edcForSlot(); edc != nil {
		if err := edc.PowerOff(); err != nil {
			log.Printf("missionmgr: OutOfRegion: failed to power down EDC: %v", err)
		}
	}
	m.state.SetSlot(satstate.SlotEDC, satstate.PayloadNone)
	m.state.SetEDCActive(false, satstate.PayloadNone)

	if m.cfg.PX != nil && m.state.Slot(satstate.SlotPX) == satstate.PayloadNone {
		if err := m.cfg.PX.PowerOn(); err != nil {
			log.Printf("missionmgr: OutOfRegion: failed to power PX: %v", err)
			return
		}
		m.state.SetSlot(satstate.SlotPX, satstate.PayloadPX)
		m.startPxExperiment()
		return
	}

	if m.state.Snapshot().Mode != satstate.ModeHibernation {
		m.state.SetMode(satstate.ModeStandBy, time.Now())
	}
}

func (m *Manager) edcForSlot() (devices.EDC, satstate.PayloadID) {
	switch m.state.Slot(satstate.SlotEDC) {
	case satstate.PayloadEDCA:
		return m.cfg.EDCA, satstate.PayloadEDCA
	case satstate.PayloadEDCB:
		return m.cfg.EDCB, satstate.PayloadEDCB
	default:
		return nil, satstate.PayloadNone
	}
}

// startPxExperiment launches the PX run in the background and feeds a
// PxExperimentFinished event back to this same Manager on completion or
// cancellation (spec §5's cancellable PX reader, §4.4
// "PxExperimentFinished").
func (m *Manager) startPxExperiment() {
	m.pxCancel = make(chan struct{})
	cancel := m.pxCancel
	go func() {
		if err := m.cfg.PX.StartExperiment(uint32(m.cfg.PxExperimentDuration/time.Second), cancel); err != nil {
			log.Printf("missionmgr: PX experiment failed: %v", err)
		}
		_ = m.Enqueue(satstate.Event{Kind: satstate.EventPxExperimentFinished})
	}()
}

// CancelPxExperiment aborts a running PX experiment early (spec §5's
// MSB-set cancellation notification, modeled as closing a channel).
func (m *Manager) CancelPxExperiment() {
	if m.pxCancel != nil {
		close(m.pxCancel)
		m.pxCancel = nil
	}
}

func (m *Manager) handlePxExperimentFinished() {
	if m.state.Slot(satstate.SlotPX) != satstate.PayloadPX {
		return
	}
	if m.cfg.PX != nil {
		if err := m.cfg.PX.PowerOff(); err != nil {
			log.Printf("missionmgr: PxExperimentFinished: failed to power down PX: %v", err)
		}
	}
	m.state.SetSlot(satstate.SlotPX, satstate.PayloadNone)
	if m.state.Snapshot().Mode != satstate.ModeHibernation {
		m.state.SetMode(satstate.ModeStandBy, time.Now())
	}
}

func (m *Manager) setTxEnable(on bool) {
	for _, ttc := range []devices.TTC{m.cfg.TTC0, m.cfg.TTC1} {
		if ttc == nil {
			continue
		}
		if err := ttc.SetTxEnable(on); err != nil {
			log.Printf("missionmgr: SetTxEnable(%v) failed: %v", on, err)
		}
	}
}

func (m *Manager) handleModeChangeRequest(ev satstate.Event) {
	now := time.Now()
	switch ev.RequestedMode {
	case satstate.ModeNormal:
		if m.state.Snapshot().Mode == satstate.ModeHibernation {
			m.setTxEnable(true)
		}
		if m.state.Slot(satstate.SlotEDC) == satstate.PayloadNone {
			edc, tag := m.mainEDC()
			if edc != nil {
				if err := edc.PowerOn(); err != nil {
					log.Printf("missionmgr: ModeChangeRequest(Normal): failed to power main EDC: %v", err)
				} else {
					m.state.SetSlot(satstate.SlotEDC, tag)
					m.state.SetEDCActive(true, tag)
				}
			}
		}
		m.state.SetMode(satstate.ModeNormal, now)

	case satstate.ModeHibernation:
		duration := int64(uint16(ev.HibernationHi)<<8|uint16(ev.HibernationLo)) * 3600
		m.setTxEnable(false)
		m.state.EnterHibernation(duration, now)

	case satstate.ModeStandBy:
		for _, edc := range []devices.EDC{m.cfg.EDCA, m.cfg.EDCB} {
			if edc != nil {
				_ = edc.PowerOff()
			}
		}
		if m.cfg.PX != nil {
			m.CancelPxExperiment()
			_ = m.cfg.PX.PowerOff()
		}
		m.state.ClearSlots()
		m.state.SetMode(satstate.ModeStandBy, now)

	case satstate.ModeWakeUp:
		snap := m.state.Snapshot()
		pxRunning := m.state.Slot(satstate.SlotPX) == satstate.PayloadPX
		target := satstate.ModeStandBy
		if snap.InRegion || pxRunning {
			target = satstate.ModeNormal
		}
		m.state.LeaveHibernation(target, now)
		m.setTxEnable(true)

	default:
		log.Printf("missionmgr: unrecognized ModeChangeRequest target %v", ev.RequestedMode)
	}
}

func (m *Manager) handleActivatePayload(id satstate.PayloadID) {
	slot, dev := m.slotAndDeviceFor(id)
	if dev == nil {
		log.Printf("missionmgr: ActivatePayloadRequest: unknown payload id %v", id)
		return
	}
	if prev := m.state.Slot(slot); prev != satstate.PayloadNone && prev != id {
		if _, prevDev := m.slotAndDeviceFor(prev); prevDev != nil {
			_ = prevDev.powerOff()
		}
	}
	if err := dev.powerOn(); err != nil {
		log.Printf("missionmgr: ActivatePayloadRequest: failed to power on %v: %v", id, err)
		return
	}
	m.state.SetSlot(slot, id)
	if slot == satstate.SlotEDC {
		m.state.SetEDCActive(true, id)
	}
	if m.state.Snapshot().Mode != satstate.ModeHibernation {
		m.state.SetMode(satstate.ModeNormal, time.Now())
	}
}

func (m *Manager) handleDeactivatePayload(id satstate.PayloadID) {
	slot, dev := m.slotAndDeviceFor(id)
	if dev == nil || m.state.Slot(slot) != id {
		return
	}
	_ = dev.powerOff()
	m.state.SetSlot(slot, satstate.PayloadNone)
	if slot == satstate.SlotEDC {
		m.state.SetEDCActive(false, satstate.PayloadNone)
	}

	if m.state.Slot(satstate.SlotEDC) == satstate.PayloadNone &&
		m.state.Slot(satstate.SlotPX) == satstate.PayloadNone &&
		m.state.Snapshot().Mode == satstate.ModeNormal {
		m.state.SetMode(satstate.ModeStandBy, time.Now())
	}
}

// payloadDevice adapts devices.EDC and devices.PX to a common
// power on/off shape for slot bookkeeping.
type payloadDevice interface {
	powerOn() error
	powerOff() error
}

type edcAdapter struct{ devices.EDC }

func (e edcAdapter) powerOn() error  { return e.PowerOn() }
func (e edcAdapter) powerOff() error { return e.PowerOff() }

type pxAdapter struct{ devices.PX }

func (p pxAdapter) powerOn() error  { return p.PowerOn() }
func (p pxAdapter) powerOff() error { return p.PowerOff() }

func (m *Manager) slotAndDeviceFor(id satstate.PayloadID) (int, payloadDevice) {
	switch id {
	case satstate.PayloadEDCA:
		if m.cfg.EDCA == nil {
			return satstate.SlotEDC, nil
		}
		return satstate.SlotEDC, edcAdapter{m.cfg.EDCA}
	case satstate.PayloadEDCB:
		if m.cfg.EDCB == nil {
			return satstate.SlotEDC, nil
		}
		return satstate.SlotEDC, edcAdapter{m.cfg.EDCB}
	case satstate.PayloadPX:
		if m.cfg.PX == nil {
			return satstate.SlotPX, nil
		}
		return satstate.SlotPX, pxAdapter{m.cfg.PX}
	default:
		return -1, nil
	}
}
