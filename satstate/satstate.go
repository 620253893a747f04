// Package satstate holds the process-wide satellite state struct (spec
// §3, §9 "Global satellite state"): the single resource Mission Manager
// owns for writes, and every other task reads through snapshots. It
// generalizes the teacher's LinkMgr registry pattern (npi_linkmgr.go) —
// one owner serializing mutation, many readers going through a lock —
// from a handler-list to a richer aggregate struct, and follows the
// critical-section discipline spec §4.4/§5 requires for multi-field
// updates (mode+timestamp, mode+duration).
package satstate

import (
	"sync"
	"time"
)

// Mode is the satellite's operational mode (spec §3).
type Mode int

const (
	ModeNormal Mode = iota
	ModeStandBy
	ModeHibernation
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "Normal"
	case ModeStandBy:
		return "StandBy"
	case ModeHibernation:
		return "Hibernation"
	default:
		return "Unknown"
	}
}

// PayloadID identifies a payload that can occupy a slot.
type PayloadID int

const (
	PayloadNone PayloadID = iota
	PayloadEDCA
	PayloadEDCB
	PayloadPX
)

// Slot indices (spec §3 "Payload slot").
const (
	SlotEDC = 0
	SlotPX  = 1
)

// Telemetry data IDs (spec §6).
const (
	DataOBDH = iota
	DataEPS
	DataTTC0
	DataTTC1
	DataANT
	DataEDCInfo
	DataSBCD
	DataPX
)

// MediaCursor is the next-write page index for one telemetry family
// (spec §3 "media-cursor sub-record", §4.2).
type MediaCursor struct {
	Cursor    uint32
	StartPage uint32
	EndPage   uint32
}

// Advance moves the cursor forward by one page, wrapping at EndPage per
// spec §4.2 ("if cursor > end_page, wrap to start_page").
func (c *MediaCursor) Advance() {
	c.Cursor++
	if c.Cursor > c.EndPage {
		c.Cursor = c.StartPage
	}
}

// Position is the propagated orbital position record (spec §3).
type Position struct {
	LatE7 int32 // degrees * 1e7
	LonE7 int32 // degrees * 1e7
	AltCm int64
	Epoch int64 // unix seconds
	TLE1  [69]byte
	TLE2  [69]byte
}

// TelemetrySnapshot is a generic per-subsystem raw-page holder; producers
// marshal their own fixed layouts into Raw (spec §6 marshalling).
type TelemetrySnapshot struct {
	Raw   [256]byte
	Epoch int64
}

// State is the full satellite state aggregate (spec §3). All fields are
// guarded by mu; use the accessor/mutator methods rather than touching
// fields directly so that multi-field updates stay atomic from a
// reader's perspective.
type State struct {
	mu sync.Mutex

	mode             Mode
	tsLastModeChange int64
	modeDuration     int64 // seconds, meaningful only in Hibernation
	inHibernation    bool

	inRegion bool
	manual   bool // manual EDC override, disables automatic InRegion/OutOfRegion handling

	active     [2]PayloadID // slot -> occupant
	edcActive  bool
	currentEDC PayloadID

	telemetry [8]TelemetrySnapshot
	position  Position
	media     [8]MediaCursor
}

// New returns a State with the memory map cursors seeded per spec §6
// (NOR pages, 256B each) and mode Normal.
func New() *State {
	s := &State{mode: ModeNormal}
	ranges := [8][2]uint32{
		DataOBDH:    {0, 56999},
		DataEPS:     {57000, 113999},
		DataTTC0:    {114000, 170999},
		DataTTC1:    {171000, 227999},
		DataANT:     {228000, 284999},
		DataEDCInfo: {285000, 341999},
		DataPX:      {342000, 398999},
		DataSBCD:    {399000, 499999},
	}
	for i, r := range ranges {
		s.media[i] = MediaCursor{Cursor: r[0], StartPage: r[0], EndPage: r[1]}
	}
	return s
}

// Snapshot is a read-only copy of the fields a reader cares about most
// often. Readers call Snapshot instead of reaching into State directly,
// matching spec §9's "immutable read-only snapshots" note.
type Snapshot struct {
	Mode             Mode
	TsLastModeChange int64
	ModeDuration     int64
	InHibernation    bool
	InRegion         bool
	Active           [2]PayloadID
	EDCActive        bool
	CurrentEDC       PayloadID
}

// Snapshot returns a consistent copy of the mode/payload fields under the
// critical section (spec §4.4 "Atomicity").
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Mode:             s.mode,
		TsLastModeChange: s.tsLastModeChange,
		ModeDuration:     s.modeDuration,
		InHibernation:    s.inHibernation,
		InRegion:         s.inRegion,
		Active:           s.active,
		EDCActive:        s.edcActive,
		CurrentEDC:       s.currentEDC,
	}
}

// SetMode sets mode and its change timestamp atomically (spec §4.4:
// "mode + timestamp" critical section).
func (s *State) SetMode(m Mode, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
	s.tsLastModeChange = now.Unix()
}

// EnterHibernation sets in_hibernation, mode_duration and mode together
// (spec §4.4: "Critical section covers in_hibernation, mode_duration,
// and mode change").
func (s *State) EnterHibernation(durationSeconds int64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inHibernation = true
	s.modeDuration = durationSeconds
	s.mode = ModeHibernation
	s.tsLastModeChange = now.Unix()
}

// LeaveHibernation clears in_hibernation and sets mode (spec §4.4
// WakeUp handling).
func (s *State) LeaveHibernation(m Mode, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inHibernation = false
	s.modeDuration = 0
	s.mode = m
	s.tsLastModeChange = now.Unix()
}

// HibernationDeadlinePassed reports whether now >= ts_last_mode_change +
// mode_duration while in Hibernation (spec §4.4 "Hibernation exit by
// timeout").
func (s *State) HibernationDeadlinePassed(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeHibernation {
		return false
	}
	return now.Unix() >= s.tsLastModeChange+s.modeDuration
}

// SetInRegion updates the in-region flag and reports whether it changed
// (spec §9 "keep previous boolean; only emit on change").
func (s *State) SetInRegion(v bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.inRegion != v
	s.inRegion = v
	return changed
}

func (s *State) Manual() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manual
}

func (s *State) SetManual(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manual = v
}

// SetSlot sets a payload slot's occupant.
func (s *State) SetSlot(slot int, id PayloadID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[slot] = id
}

func (s *State) Slot(slot int) PayloadID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[slot]
}

// ClearSlots empties both payload slots (spec §4.4 StandBy handling).
func (s *State) ClearSlots() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[SlotEDC] = PayloadNone
	s.active[SlotPX] = PayloadNone
	s.edcActive = false
}

func (s *State) SetEDCActive(v bool, tag PayloadID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edcActive = v
	s.currentEDC = tag
}

// UpdateTelemetry stores a subsystem's latest snapshot (spec §3 "latest
// telemetry snapshot per subsystem").
func (s *State) UpdateTelemetry(dataID int, snap TelemetrySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry[dataID] = snap
}

func (s *State) Telemetry(dataID int) TelemetrySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.telemetry[dataID]
}

// UpdatePosition stores the latest propagated position (spec §4.3).
func (s *State) UpdatePosition(p Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = p
}

func (s *State) PositionSnapshot() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Cursor returns a copy of a family's media cursor.
func (s *State) Cursor(dataID int) MediaCursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media[dataID]
}

// ResetCursor rewinds a family's cursor to its range start (used after
// a full NOR erase).
func (s *State) ResetCursor(dataID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media[dataID].Cursor = s.media[dataID].StartPage
}

// AdvanceCursor advances a family's cursor and returns the page index
// that was just written to (spec §4.2 "write the page at cursor *
// page_size, increment cursor").
func (s *State) AdvanceCursor(dataID int) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &s.media[dataID]
	written := c.Cursor
	c.Advance()
	return written
}
