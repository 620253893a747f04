package satstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetModeAtomicTimestamp(t *testing.T) {
	s := New()
	now := time.Unix(1000, 0)
	s.SetMode(ModeStandBy, now)

	snap := s.Snapshot()
	require.Equal(t, ModeStandBy, snap.Mode)
	require.Equal(t, int64(1000), snap.TsLastModeChange)
}

func TestEnterLeaveHibernation(t *testing.T) {
	s := New()
	now := time.Unix(2000, 0)
	s.EnterHibernation(0x1111*3600, now)

	snap := s.Snapshot()
	require.Equal(t, ModeHibernation, snap.Mode)
	require.True(t, snap.InHibernation)
	require.Equal(t, int64(0x1111*3600), snap.ModeDuration)

	s.LeaveHibernation(ModeStandBy, time.Unix(2001, 0))
	snap = s.Snapshot()
	require.False(t, snap.InHibernation)
	require.Equal(t, ModeStandBy, snap.Mode)
}

func TestHibernationDeadlinePassed(t *testing.T) {
	s := New()
	s.EnterHibernation(60, time.Unix(1000, 0))

	require.False(t, s.HibernationDeadlinePassed(time.Unix(1059, 0)))
	require.True(t, s.HibernationDeadlinePassed(time.Unix(1060, 0)))
}

func TestSetInRegionReportsChangeOnly(t *testing.T) {
	s := New()
	require.True(t, s.SetInRegion(true))
	require.False(t, s.SetInRegion(true))
	require.True(t, s.SetInRegion(false))
}

func TestCursorWrapsAtEndPage(t *testing.T) {
	s := New()
	s.media[DataOBDH] = MediaCursor{Cursor: 56999, StartPage: 0, EndPage: 56999}

	written := s.AdvanceCursor(DataOBDH)
	require.Equal(t, uint32(56999), written)
	require.Equal(t, uint32(0), s.Cursor(DataOBDH).Cursor)
}

func TestClearSlots(t *testing.T) {
	s := New()
	s.SetSlot(SlotEDC, PayloadEDCA)
	s.SetSlot(SlotPX, PayloadPX)
	s.SetEDCActive(true, PayloadEDCA)

	s.ClearSlots()
	require.Equal(t, PayloadNone, s.Slot(SlotEDC))
	require.Equal(t, PayloadNone, s.Slot(SlotPX))
}
