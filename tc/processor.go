// Package tc implements the telecommand processor (component C5, spec
// §4.5): authenticate, parse, and dispatch uplinked packets to one of
// ~16 handlers, then emit a feedback packet. Dispatch-by-first-byte to a
// handler table is the same shape as the teacher's LinkMgr registry
// (npi_linkmgr.go's RxRegistryProgram map), generalized from a frame
// receiver registry to a fixed command table since the command set is
// closed and known at compile time.
package tc

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // spec-mandated: HMAC-SHA1 per spec §1/§4.5
	"encoding/binary"
	"log"
	"time"

	"github.com/spacelab-ufsc/obdh2-sub000/callsign"
	"github.com/spacelab-ufsc/obdh2-sub000/devices"
	"github.com/spacelab-ufsc/obdh2-sub000/missionmgr"
	"github.com/spacelab-ufsc/obdh2-sub000/obdherr"
	"github.com/spacelab-ufsc/obdh2-sub000/orbit"
	"github.com/spacelab-ufsc/obdh2-sub000/satstate"
	"github.com/spacelab-ufsc/obdh2-sub000/telemetry"
)

// Packet IDs (spec §6).
const (
	idPing           = 0x40
	idDataRequest    = 0x41
	idBroadcast      = 0x42
	idEnterHibernate = 0x43
	idLeaveHibernate = 0x44
	idActivateMod    = 0x45
	idDeactivateMod  = 0x46
	idActivatePL     = 0x47
	idDeactivatePL   = 0x48
	idEraseMemory    = 0x49
	idForceReset     = 0x4A
	idGetPLData      = 0x4B
	idSetParam       = 0x4C
	idGetParam       = 0x4D
	idUpdateTLE      = 0x4E
	idTransmitPacket = 0x4F
)

// Downlink IDs (spec §6).
const (
	DownTelemetry = 0x20
	DownPingAns   = 0x21
	DownDataAns   = 0x22
	DownBroadcast = 0x23
	DownPLData    = 0x24
	DownFeedback  = 0x25
	DownParam     = 0x26
)

const hmacLen = 20
const callsignLen = 7

// Sender transmits a downlink payload via NGHam; satisfied by
// *radiolink.Link.
type Sender interface {
	Send(payload []byte, flags uint8) error
}

// Config wires the processor to its collaborators.
type Config struct {
	OwnCallsign callsign.Call

	Sender Sender
	MM     *missionmgr.Manager
	Store  *telemetry.Store
	Orbit  *orbit.Task
	State  *satstate.State

	EPS        devices.EPS
	TTC0, TTC1 devices.TTC

	// Keys maps packet ID to the HMAC-SHA1 key used to authenticate it
	// (spec §4.5: "per-command key").
	Keys map[byte][]byte

	// SelfReset is invoked by ForceReset after resetting EPS/TTC (spec
	// §4.5 "then self-resets"). Left nil in tests.
	SelfReset func()

	// MMTimeout bounds how long a handler waits for Mission Manager's
	// completion notification (spec §5 "~100ms").
	MMTimeout time.Duration
}

// Processor is the telecommand processor (spec §4.5).
type Processor struct {
	cfg         Config
	lastValidTC byte
}

// New returns a Processor ready to handle packets.
func New(cfg Config) *Processor {
	if cfg.MMTimeout <= 0 {
		cfg.MMTimeout = 100 * time.Millisecond
	}
	return &Processor{cfg: cfg}
}

// authenticated reports whether packet ID requires an HMAC check (every
// ID except Ping, spec §4.5 "Ping: echo 7 bytes, no auth" and
// "Broadcast" which this implementation also treats as unauthenticated
// relay traffic).
func authenticated(id byte) bool {
	return id != idPing && id != idBroadcast
}

// Handle runs the full pipeline for one received uplink packet (spec
// §4.5 steps 1-4).
func (p *Processor) Handle(pkt []byte) error {
	if len(pkt) < 1+callsignLen {
		return obdherr.ProtocolFailure("tc: packet too short for header")
	}
	id := pkt[0]
	var requester [callsignLen]byte
	copy(requester[:], pkt[1:1+callsignLen])
	caller := callsign.ParseUnpacked7(requester)

	if authenticated(id) {
		if len(pkt) < hmacLen {
			return obdherr.AuthFailure("tc: packet too short to carry HMAC")
		}
		body := pkt[:len(pkt)-hmacLen]
		tag := pkt[len(pkt)-hmacLen:]
		key := p.cfg.Keys[id]
		mac := hmac.New(sha1.New, key)
		mac.Write(body)
		want := mac.Sum(nil)
		if !hmac.Equal(want, tag) {
			log.Printf("tc: HMAC mismatch for packet ID 0x%02X from %s", id, caller)
			return obdherr.AuthFailure("tc: HMAC mismatch")
		}
	}

	p.lastValidTC = id

	handler, ok := handlers[id]
	if !ok {
		log.Printf("tc: no handler for packet ID 0x%02X", id)
		return obdherr.ProtocolFailure("tc: unknown packet ID")
	}
	return handler(p, caller, pkt)
}

// LastValidTC returns the ID of the most recently authenticated packet.
func (p *Processor) LastValidTC() byte { return p.lastValidTC }

type handlerFunc func(p *Processor, caller callsign.Call, pkt []byte) error

var handlers = map[byte]handlerFunc{
	idPing:           (*Processor).handlePing,
	idDataRequest:    (*Processor).handleDataRequest,
	idBroadcast:      (*Processor).handleBroadcast,
	idEnterHibernate: (*Processor).handleEnterHibernate,
	idLeaveHibernate: (*Processor).handleLeaveHibernate,
	idActivateMod:    (*Processor).handleActivateModule,
	idDeactivateMod:  (*Processor).handleDeactivateModule,
	idActivatePL:     (*Processor).handleActivatePayload,
	idDeactivatePL:   (*Processor).handleDeactivatePayload,
	idEraseMemory:    (*Processor).handleEraseMemory,
	idForceReset:     (*Processor).handleForceReset,
	idGetPLData:      (*Processor).handleGetPayloadData,
	idSetParam:       (*Processor).handleSetParameter,
	idGetParam:       (*Processor).handleGetParameter,
	idUpdateTLE:      (*Processor).handleUpdateTLE,
	idTransmitPacket: (*Processor).handleTransmitPacket,
}

// sendFeedback emits the post-action feedback packet (spec §4.5 step 4:
// "requester callsign, TC-ID, post-action timestamp"), suppressed while
// in Hibernation.
func (p *Processor) sendFeedback(caller callsign.Call, tcID byte) {
	if p.cfg.State.Snapshot().Mode == satstate.ModeHibernation {
		return
	}
	if p.cfg.Sender == nil {
		return
	}
	payload := make([]byte, callsignLen+1+4)
	copy(payload, caller.Unpacked7()[:])
	payload[callsignLen] = tcID
	binary.BigEndian.PutUint32(payload[callsignLen+1:], uint32(time.Now().Unix()))
	if err := p.cfg.Sender.Send(payload, 0); err != nil {
		log.Printf("tc: failed to send feedback for 0x%02X: %v", tcID, err)
	}
}

func (p *Processor) handlePing(caller callsign.Call, pkt []byte) error {
	reply := make([]byte, callsignLen+callsignLen)
	copy(reply[:callsignLen], p.cfg.OwnCallsign.Unpacked7()[:])
	copy(reply[callsignLen:], caller.Unpacked7()[:])
	if p.cfg.Sender != nil {
		if err := p.cfg.Sender.Send(append([]byte{DownPingAns}, reply...), 0); err != nil {
			return obdherr.TransientIo(err.Error())
		}
	}
	return nil
}

func (p *Processor) handleBroadcast(caller callsign.Call, pkt []byte) error {
	payload := pkt[1+callsignLen:]
	if p.cfg.Sender != nil {
		_ = p.cfg.Sender.Send(append([]byte{DownBroadcast}, payload...), 0)
	}
	return nil
}

func (p *Processor) handleDataRequest(caller callsign.Call, pkt []byte) error {
	body := pkt[1+callsignLen : len(pkt)-hmacLen]
	if len(body) < 9 {
		return obdherr.ProtocolFailure("tc: data-request payload too short")
	}
	dataID := int(body[0])
	startIdx := binary.BigEndian.Uint32(body[1:5])
	endIdx := binary.BigEndian.Uint32(body[5:9])

	pages, err := p.cfg.Store.ReadRange(p.cfg.State, dataID, startIdx, endIdx)
	if err != nil {
		return obdherr.PersistenceFailure(err.Error())
	}
	for _, page := range pages {
		if p.cfg.Sender == nil {
			continue
		}
		out := append([]byte{DownDataAns, byte(dataID)}, page[:]...)
		_ = p.cfg.Sender.Send(out, 0)
		time.Sleep(5 * time.Millisecond) // small inter-packet delay, spec §4.5
	}
	p.sendFeedback(caller, idDataRequest)
	return nil
}

func (p *Processor) requestModeChange(ev satstate.Event) error {
	if err := p.cfg.MM.RequestAndWait(ev, p.cfg.MMTimeout); err != nil {
		log.Printf("tc: mission manager did not acknowledge mode change: %v", err)
		return obdherr.ResourceFull("tc: mission manager ack timeout")
	}
	return nil
}

func (p *Processor) handleEnterHibernate(caller callsign.Call, pkt []byte) error {
	body := pkt[1+callsignLen : len(pkt)-hmacLen]
	if len(body) < 2 {
		return obdherr.ProtocolFailure("tc: enter-hibernate payload too short")
	}
	ev := satstate.Event{Kind: satstate.EventModeChangeRequest, RequestedMode: satstate.ModeHibernation, HibernationHi: body[0], HibernationLo: body[1]}
	if err := p.requestModeChange(ev); err != nil {
		return err
	}
	p.sendFeedback(caller, idEnterHibernate)
	return nil
}

func (p *Processor) handleLeaveHibernate(caller callsign.Call, pkt []byte) error {
	ev := satstate.Event{Kind: satstate.EventModeChangeRequest, RequestedMode: satstate.ModeWakeUp}
	if err := p.requestModeChange(ev); err != nil {
		return err
	}
	p.sendFeedback(caller, idLeaveHibernate)
	return nil
}

func (p *Processor) ttcByID(id byte) devices.TTC {
	switch id {
	case satstate.DataTTC0:
		return p.cfg.TTC0
	case satstate.DataTTC1:
		return p.cfg.TTC1
	default:
		return nil
	}
}

func (p *Processor) handleActivateModule(caller callsign.Call, pkt []byte) error {
	body := pkt[1+callsignLen : len(pkt)-hmacLen]
	if len(body) < 1 {
		return obdherr.ProtocolFailure("tc: activate-module payload too short")
	}
	if ttc := p.ttcByID(body[0]); ttc != nil {
		if err := ttc.SetTxEnable(true); err != nil {
			return obdherr.TransientIo(err.Error())
		}
	}
	p.sendFeedback(caller, idActivateMod)
	return nil
}

func (p *Processor) handleDeactivateModule(caller callsign.Call, pkt []byte) error {
	body := pkt[1+callsignLen : len(pkt)-hmacLen]
	if len(body) < 1 {
		return obdherr.ProtocolFailure("tc: deactivate-module payload too short")
	}
	if ttc := p.ttcByID(body[0]); ttc != nil {
		if err := ttc.SetTxEnable(false); err != nil {
			return obdherr.TransientIo(err.Error())
		}
	}
	p.sendFeedback(caller, idDeactivateMod)
	return nil
}

func payloadIDFromByte(b byte) satstate.PayloadID {
	switch b {
	case 0:
		return satstate.PayloadEDCA
	case 1:
		return satstate.PayloadEDCB
	case 2:
		return satstate.PayloadPX
	default:
		return satstate.PayloadNone
	}
}

func (p *Processor) handleActivatePayload(caller callsign.Call, pkt []byte) error {
	body := pkt[1+callsignLen : len(pkt)-hmacLen]
	if len(body) < 1 {
		return obdherr.ProtocolFailure("tc: activate-payload payload too short")
	}
	ev := satstate.Event{Kind: satstate.EventActivatePayloadRequest, PayloadID: payloadIDFromByte(body[0])}
	if err := p.requestModeChange(ev); err != nil {
		return err
	}
	p.sendFeedback(caller, idActivatePL)
	return nil
}

func (p *Processor) handleDeactivatePayload(caller callsign.Call, pkt []byte) error {
	body := pkt[1+callsignLen : len(pkt)-hmacLen]
	if len(body) < 1 {
		return obdherr.ProtocolFailure("tc: deactivate-payload payload too short")
	}
	ev := satstate.Event{Kind: satstate.EventDeactivatePayloadRequest, PayloadID: payloadIDFromByte(body[0])}
	if err := p.requestModeChange(ev); err != nil {
		return err
	}
	p.sendFeedback(caller, idDeactivatePL)
	return nil
}

func (p *Processor) handleEraseMemory(caller callsign.Call, pkt []byte) error {
	if err := p.cfg.Store.EraseAll(p.cfg.State); err != nil {
		return obdherr.PersistenceFailure(err.Error())
	}
	p.sendFeedback(caller, idEraseMemory)
	return nil
}

func (p *Processor) handleForceReset(caller callsign.Call, pkt []byte) error {
	if p.cfg.EPS != nil {
		_ = p.cfg.EPS.Reset()
	}
	if p.cfg.TTC0 != nil {
		_ = p.cfg.TTC0.Reset()
	}
	if p.cfg.TTC1 != nil {
		_ = p.cfg.TTC1.Reset()
	}
	p.sendFeedback(caller, idForceReset)
	if p.cfg.SelfReset != nil {
		p.cfg.SelfReset()
	}
	return nil
}

func (p *Processor) handleGetPayloadData(caller callsign.Call, pkt []byte) error {
	body := pkt[1+callsignLen : len(pkt)-hmacLen]
	if len(body) < 9 {
		return obdherr.ProtocolFailure("tc: get-payload-data payload too short")
	}
	dataID := int(body[0])
	startIdx := binary.BigEndian.Uint32(body[1:5])
	endIdx := binary.BigEndian.Uint32(body[5:9])

	pages, err := p.cfg.Store.ReadRange(p.cfg.State, dataID, startIdx, endIdx)
	if err != nil {
		return obdherr.PersistenceFailure(err.Error())
	}
	for _, page := range pages {
		if p.cfg.Sender == nil {
			continue
		}
		out := append([]byte{DownPLData, byte(dataID)}, page[:]...)
		_ = p.cfg.Sender.Send(out, 0)
		time.Sleep(5 * time.Millisecond)
	}
	p.sendFeedback(caller, idGetPLData)
	return nil
}

func (p *Processor) handleSetParameter(caller callsign.Call, pkt []byte) error {
	body := pkt[1+callsignLen : len(pkt)-hmacLen]
	if len(body) < 6 {
		return obdherr.ProtocolFailure("tc: set-parameter payload too short")
	}
	subsystem := body[0]
	paramID := body[1]
	value := binary.BigEndian.Uint32(body[2:6])

	if subsystem == satstate.DataOBDH {
		switch paramID {
		case 0: // mode
			ev := satstate.Event{Kind: satstate.EventModeChangeRequest, RequestedMode: satstate.Mode(value)}
			if err := p.requestModeChange(ev); err != nil {
				return err
			}
		case 1: // system_time
			if p.cfg.EPS != nil {
				_ = p.cfg.EPS.SetSystemTime(value)
			}
			if p.cfg.TTC0 != nil {
				_ = p.cfg.TTC0.SetSystemTime(value)
			}
			if p.cfg.TTC1 != nil {
				_ = p.cfg.TTC1.SetSystemTime(value)
			}
		}
	}
	p.sendFeedback(caller, idSetParam)
	return nil
}

func (p *Processor) handleGetParameter(caller callsign.Call, pkt []byte) error {
	body := pkt[1+callsignLen : len(pkt)-hmacLen]
	if len(body) < 2 {
		return obdherr.ProtocolFailure("tc: get-parameter payload too short")
	}
	subsystem := body[0]
	paramID := body[1]

	var value uint32
	if subsystem == satstate.DataOBDH && paramID == 0 {
		value = uint32(p.cfg.State.Snapshot().Mode)
	}

	if p.cfg.Sender != nil {
		reply := make([]byte, 2+4)
		reply[0] = subsystem
		reply[1] = paramID
		binary.BigEndian.PutUint32(reply[2:], value)
		_ = p.cfg.Sender.Send(append([]byte{DownParam}, reply...), 0)
	}
	return nil
}

func (p *Processor) handleUpdateTLE(caller callsign.Call, pkt []byte) error {
	body := pkt[1+callsignLen : len(pkt)-hmacLen]
	if len(body) < 1+69 {
		return obdherr.ProtocolFailure("tc: update-tle payload too short")
	}
	lineNumber := int(body[0])
	line := string(body[1:70])
	if err := p.cfg.Orbit.UpdateTLELine(lineNumber, line, nil); err != nil {
		return obdherr.ProtocolFailure(err.Error())
	}
	p.sendFeedback(caller, idUpdateTLE)
	return nil
}

func (p *Processor) handleTransmitPacket(caller callsign.Call, pkt []byte) error {
	body := pkt[1+callsignLen : len(pkt)-hmacLen]
	if p.cfg.Sender != nil {
		_ = p.cfg.Sender.Send(body, 0)
	}
	p.sendFeedback(caller, idTransmitPacket)
	return nil
}
