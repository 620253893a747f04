// Package telemetry persists per-subsystem telemetry pages to a
// simulated NOR flash ring and mirrors the OBDH configuration record
// (including media cursors) to a simulated FRAM, surviving an arbitrary
// power cut mid-write (spec §4.2). The NOR/FRAM media themselves are
// backed by a NORMedia/FRAMMedia interface rather than real flash
// drivers, per spec §1's non-goal on device-level I²C/SPI chatter — the
// ring-buffer bookkeeping and atomic-write discipline above that
// interface is the part this package owns.
package telemetry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/spacelab-ufsc/obdh2-sub000/satstate"
)

func epochTime(sec int64) time.Time { return time.Unix(sec, 0) }

const pageSize = 256

// NORMedia is the simulated NOR flash surface: page-addressed
// read/write. A real driver would serialize this behind a SPI mutex
// (spec §5); the in-memory implementation below stands in for tests and
// the dry-run binary.
type NORMedia interface {
	WritePage(page uint32, data [pageSize]byte) error
	ReadPage(page uint32) ([pageSize]byte, error)
	Erase() error
}

// FRAMMedia is the simulated FRAM surface: byte-addressed read/write of
// arbitrary-length records.
type FRAMMedia interface {
	Write(addr uint32, data []byte) error
	Read(addr uint32, length int) ([]byte, error)
}

// FRAM addresses (spec §6).
const (
	framAddrMagic     = 0
	framAddrSysTime   = 256
	framAddrOBDHCfgA  = 512
	framOBDHCfgRecLen = 128 // BAK_DATA_SIZE-equivalent: mode, duration, ts, cursors
	framAddrOBDHCfgB  = framAddrOBDHCfgA + 4 + framOBDHCfgRecLen + 4
)

var framMagic = [8]byte{228, 80, 142, 227, 77, 121, 176, 244}

// Store is the telemetry persistence layer (component C2).
type Store struct {
	mu   sync.Mutex
	nor  NORMedia
	fram FRAMMedia

	corruptionCount uint32
}

// New wraps the given media. It does not itself check FRAM magic; call
// Recover (normally from package startup) once at boot.
func New(nor NORMedia, fram FRAMMedia) *Store {
	return &Store{nor: nor, fram: fram}
}

// WritePage writes one subsystem's 256-byte telemetry page at the
// family's current cursor and advances it (spec §4.2 "write the page at
// cursor * page_size, increment cursor").
func (s *Store) WritePage(st *satstate.State, dataID int, page [pageSize]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursor := st.Cursor(dataID)
	if err := s.nor.WritePage(cursor.Cursor, page); err != nil {
		return fmt.Errorf("telemetry: NOR write failed for family %d: %w", dataID, err)
	}
	st.AdvanceCursor(dataID)
	return nil
}

// ReadRange reads pages in [cursor-endIdx, cursor-startIdx) relative to
// the family's current cursor (spec §4.2 "Reads"), oldest first.
func (s *Store) ReadRange(st *satstate.State, dataID int, startIdx, endIdx uint32) ([][pageSize]byte, error) {
	if endIdx < startIdx {
		return nil, fmt.Errorf("telemetry: invalid range startIdx=%d endIdx=%d", startIdx, endIdx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cursor := st.Cursor(dataID)
	span := cursor.EndPage - cursor.StartPage + 1

	out := make([][pageSize]byte, 0, endIdx-startIdx)
	for i := endIdx; i > startIdx; i-- {
		offset := int64(cursor.Cursor) - int64(i)
		for offset < int64(cursor.StartPage) {
			offset += int64(span)
		}
		page, err := s.nor.ReadPage(uint32(offset))
		if err != nil {
			return nil, fmt.Errorf("telemetry: NOR read failed for family %d page %d: %w", dataID, offset, err)
		}
		out = append(out, page)
	}
	return out, nil
}

// obdhConfig is the FRAM-resident "last known good" record (spec §3
// "FRAM-resident last known good configuration").
type obdhConfig struct {
	Mode         uint8
	InHibernate  uint8
	ModeDuration int64
	TsModeChange int64
	Cursors      [8]uint32
}

func (c *obdhConfig) marshal() []byte {
	buf := make([]byte, framOBDHCfgRecLen)
	buf[0] = c.Mode
	buf[1] = c.InHibernate
	binary.BigEndian.PutUint64(buf[2:10], uint64(c.ModeDuration))
	binary.BigEndian.PutUint64(buf[10:18], uint64(c.TsModeChange))
	for i, cur := range c.Cursors {
		binary.BigEndian.PutUint32(buf[18+4*i:22+4*i], cur)
	}
	return buf
}

func (c *obdhConfig) unmarshal(buf []byte) {
	c.Mode = buf[0]
	c.InHibernate = buf[1]
	c.ModeDuration = int64(binary.BigEndian.Uint64(buf[2:10]))
	c.TsModeChange = int64(binary.BigEndian.Uint64(buf[10:18]))
	for i := range c.Cursors {
		c.Cursors[i] = binary.BigEndian.Uint32(buf[18+4*i : 22+4*i])
	}
}

// defaultConfig is the template seeded after a corrupted-magic recovery
// (spec §8 scenario 6: "mode=Normal, TLE = default, position timestamp =
// default value").
func defaultConfig() obdhConfig {
	var c obdhConfig
	c.Mode = uint8(satstate.ModeNormal)
	return c
}

// SaveConfig atomically mirrors the OBDH config record (mode, duration,
// timestamp, all media cursors) to FRAM using a two-region,
// sequence-stamped journal: the region with the higher valid sequence
// number on the next boot is the authoritative one, so a power cut
// mid-write to one region still leaves the other intact (spec §4.2
// "after an arbitrary power cut, the next boot either sees the prior
// valid image or the fully written new one").
func (s *Store) SaveConfig(st *satstate.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := st.Snapshot()
	cfg := obdhConfig{
		Mode:         uint8(snap.Mode),
		ModeDuration: snap.ModeDuration,
		TsModeChange: snap.TsLastModeChange,
	}
	if snap.InHibernation {
		cfg.InHibernate = 1
	}
	for i := 0; i < 8; i++ {
		cfg.Cursors[i] = st.Cursor(i).Cursor
	}

	seqA, okA := s.readJournalSeq(framAddrOBDHCfgA)
	seqB, okB := s.readJournalSeq(framAddrOBDHCfgB)

	// Write to whichever region currently holds the OLDER (or invalid)
	// sequence, so the other region remains a valid fallback throughout
	// the write. The new sequence number must exceed both regions' current
	// values so recovery can always tell which region is newer.
	var maxSeq uint32
	if okA && seqA > maxSeq {
		maxSeq = seqA
	}
	if okB && seqB > maxSeq {
		maxSeq = seqB
	}
	nextSeq := maxSeq + 1

	targetAddr := framAddrOBDHCfgA
	switch {
	case !okA:
		targetAddr = framAddrOBDHCfgA
	case !okB:
		targetAddr = framAddrOBDHCfgB
	case seqA <= seqB:
		targetAddr = framAddrOBDHCfgA
	default:
		targetAddr = framAddrOBDHCfgB
	}

	record := make([]byte, 4+framOBDHCfgRecLen+4)
	binary.BigEndian.PutUint32(record[0:4], nextSeq)
	copy(record[4:4+framOBDHCfgRecLen], cfg.marshal())
	binary.BigEndian.PutUint32(record[4+framOBDHCfgRecLen:], nextSeq) // trailing copy guards a torn write
	return s.fram.Write(uint32(targetAddr), record)
}

func (s *Store) readJournalSeq(addr int) (uint32, bool) {
	raw, err := s.fram.Read(uint32(addr), 4+framOBDHCfgRecLen+4)
	if err != nil || len(raw) != 4+framOBDHCfgRecLen+4 {
		return 0, false
	}
	head := binary.BigEndian.Uint32(raw[0:4])
	tail := binary.BigEndian.Uint32(raw[4+framOBDHCfgRecLen:])
	if head != tail {
		return 0, false // torn write: header and trailer sequence disagree
	}
	return head, true
}

// Recover checks the FRAM magic word; if present, it loads the
// newer-sequenced config region into st. If absent, it erases the NOR
// media, seeds default config, writes the magic, and returns
// recovered=false (spec §4.2, §8 scenario 6).
func (s *Store) Recover(st *satstate.State) (recovered bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	magic, rerr := s.fram.Read(framAddrMagic, len(framMagic))
	if rerr == nil && len(magic) == len(framMagic) && bytes.Equal(magic, framMagic[:]) {
		seqA, okA := s.readJournalSeq(framAddrOBDHCfgA)
		seqB, okB := s.readJournalSeq(framAddrOBDHCfgB)

		var chosenAddr int
		switch {
		case okA && (!okB || seqA >= seqB):
			chosenAddr = framAddrOBDHCfgA
		case okB:
			chosenAddr = framAddrOBDHCfgB
		default:
			// Magic present but both journal copies torn; fall through to
			// default-seed below as a last resort.
			return s.seedDefaults(st)
		}

		raw, rerr := s.fram.Read(uint32(chosenAddr), 4+framOBDHCfgRecLen+4)
		if rerr != nil {
			return s.seedDefaults(st)
		}
		var cfg obdhConfig
		cfg.unmarshal(raw[4 : 4+framOBDHCfgRecLen])
		s.applyConfig(st, cfg)
		return true, nil
	}

	return s.seedDefaults(st)
}

func (s *Store) seedDefaults(st *satstate.State) (bool, error) {
	if err := s.nor.Erase(); err != nil {
		return false, fmt.Errorf("telemetry: NOR erase failed during recovery: %w", err)
	}
	cfg := defaultConfig()
	s.applyConfig(st, cfg)
	if err := s.fram.Write(framAddrMagic, framMagic[:]); err != nil {
		return false, fmt.Errorf("telemetry: writing FRAM magic failed: %w", err)
	}
	return false, nil
}

func (s *Store) applyConfig(st *satstate.State, cfg obdhConfig) {
	mode := satstate.Mode(cfg.Mode)
	if cfg.InHibernate != 0 {
		st.EnterHibernation(cfg.ModeDuration, epochTime(cfg.TsModeChange))
	} else {
		st.SetMode(mode, epochTime(cfg.TsModeChange))
	}
}

// EraseAll wipes the NOR media and resets every family's cursor to its
// range start, the effect of the erase-memory telecommand (spec §6 TC
// ID 0x49).
func (s *Store) EraseAll(st *satstate.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.nor.Erase(); err != nil {
		return fmt.Errorf("telemetry: erase-memory failed: %w", err)
	}
	for i := 0; i < 8; i++ {
		st.ResetCursor(i)
	}
	return nil
}

// Scrub re-reads every family's current page and FRAM's two config
// regions, counting any read failure as corruption (spec's supplemental
// mem_check task). It returns the cumulative corruption count observed
// since the Store was created.
func (s *Store) Scrub(st *satstate.State) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < 8; i++ {
		cursor := st.Cursor(i)
		if _, err := s.nor.ReadPage(cursor.Cursor); err != nil {
			s.corruptionCount++
		}
	}
	if _, ok := s.readJournalSeq(framAddrOBDHCfgA); !ok {
		s.corruptionCount++
	}
	if _, ok := s.readJournalSeq(framAddrOBDHCfgB); !ok {
		s.corruptionCount++
	}
	return s.corruptionCount
}
