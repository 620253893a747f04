package tc

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spacelab-ufsc/obdh2-sub000/callsign"
	"github.com/spacelab-ufsc/obdh2-sub000/devices"
	"github.com/spacelab-ufsc/obdh2-sub000/missionmgr"
	"github.com/spacelab-ufsc/obdh2-sub000/orbit"
	"github.com/spacelab-ufsc/obdh2-sub000/satstate"
	"github.com/spacelab-ufsc/obdh2-sub000/telemetry"
)

type fakeSender struct {
	mu  sync.Mutex
	out [][]byte
}

func (f *fakeSender) Send(payload []byte, flags uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.out = append(f.out, cp)
	return nil
}

func (f *fakeSender) last() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.out) == 0 {
		return nil
	}
	return f.out[len(f.out)-1]
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.out)
}

type fakeProp struct{}

func (fakeProp) Propagate(tle1, tle2 string, at time.Time) (float64, float64, float64, error) {
	return 0, 0, 400, nil
}

func newTestProcessor(t *testing.T) (*Processor, *fakeSender, *satstate.State) {
	st := satstate.New()
	mm := missionmgr.New(missionmgr.Config{
		EDCA: devices.NewSimEDC("A"), EDCB: devices.NewSimEDC("B"),
		PX: devices.NewSimPX(), TTC0: devices.NewSimTTC(), TTC1: devices.NewSimTTC(),
		MainEDCIsA: true,
	}, st)
	stop := make(chan struct{})
	go mm.Run(stop)
	t.Cleanup(func() { close(stop) })

	store := telemetry.New(telemetry.NewSimNOR(), telemetry.NewSimFRAM())
	_, _ = store.Recover(st)

	ob := orbit.New(fakeProp{})

	sender := &fakeSender{}
	own, err := callsign.Parse("OBDH1")
	require.NoError(t, err)

	keys := map[byte][]byte{
		idDataRequest:    []byte("k-data"),
		idEnterHibernate: []byte("k-hib-enter"),
		idLeaveHibernate: []byte("k-hib-leave"),
		idActivateMod:    []byte("k-act-mod"),
		idDeactivateMod:  []byte("k-deact-mod"),
		idActivatePL:     []byte("k-act-pl"),
		idDeactivatePL:   []byte("k-deact-pl"),
		idEraseMemory:    []byte("k-erase"),
		idForceReset:     []byte("k-reset"),
		idGetPLData:      []byte("k-getpl"),
		idSetParam:       []byte("k-set"),
		idGetParam:       []byte("k-get"),
		idUpdateTLE:      []byte("k-tle"),
		idTransmitPacket: []byte("k-tx"),
	}

	p := New(Config{
		OwnCallsign: own,
		Sender:      sender,
		MM:          mm,
		Store:       store,
		Orbit:       ob,
		State:       st,
		EPS:         devices.NewSimEPS(),
		TTC0:        devices.NewSimTTC(),
		TTC1:        devices.NewSimTTC(),
		Keys:        keys,
		MMTimeout:   time.Second,
	})
	return p, sender, st
}

func buildPacket(id byte, caller callsign.Call, body []byte, key []byte) []byte {
	pkt := []byte{id}
	cs := caller.Unpacked7()
	pkt = append(pkt, cs[:]...)
	pkt = append(pkt, body...)
	if key != nil {
		mac := hmac.New(sha1.New, key)
		mac.Write(pkt)
		pkt = append(pkt, mac.Sum(nil)...)
	}
	return pkt
}

func TestPingNeedsNoAuthAndEchoes(t *testing.T) {
	p, sender, _ := newTestProcessor(t)
	caller, _ := callsign.Parse("PY0EFS-1")
	pkt := buildPacket(idPing, caller, nil, nil)

	require.NoError(t, p.Handle(pkt))
	require.Equal(t, 1, sender.count())
	require.Equal(t, byte(DownPingAns), sender.last()[0])
}

func TestUnauthenticatedCommandRejectedOnBadHMAC(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	caller, _ := callsign.Parse("PY0EFS-1")
	pkt := buildPacket(idEraseMemory, caller, nil, []byte("wrong-key"))

	err := p.Handle(pkt)
	require.Error(t, err)
	require.Equal(t, byte(0), p.LastValidTC())
}

func TestEnterAndLeaveHibernationRoundTrip(t *testing.T) {
	p, sender, st := newTestProcessor(t)
	caller, _ := callsign.Parse("PY0EFS-1")

	enter := buildPacket(idEnterHibernate, caller, []byte{0x00, 0x01}, p.cfg.Keys[idEnterHibernate])
	require.NoError(t, p.Handle(enter))
	require.Equal(t, satstate.ModeHibernation, st.Snapshot().Mode)
	require.Equal(t, byte(idEnterHibernate), p.LastValidTC())

	leave := buildPacket(idLeaveHibernate, caller, nil, p.cfg.Keys[idLeaveHibernate])
	require.NoError(t, p.Handle(leave))
	require.NotEqual(t, satstate.ModeHibernation, st.Snapshot().Mode)
	_ = sender
}

func TestEraseMemoryResetsCursors(t *testing.T) {
	p, _, st := newTestProcessor(t)
	st.AdvanceCursor(satstate.DataOBDH)
	require.NotEqual(t, uint32(0), st.Cursor(satstate.DataOBDH).Cursor)

	caller, _ := callsign.Parse("PY0EFS-1")
	pkt := buildPacket(idEraseMemory, caller, nil, p.cfg.Keys[idEraseMemory])
	require.NoError(t, p.Handle(pkt))

	require.Equal(t, uint32(0), st.Cursor(satstate.DataOBDH).Cursor)
}

func TestSetAndGetModeParameter(t *testing.T) {
	p, _, st := newTestProcessor(t)
	caller, _ := callsign.Parse("PY0EFS-1")

	body := make([]byte, 6)
	body[0] = satstate.DataOBDH
	body[1] = 0 // mode param
	binary.BigEndian.PutUint32(body[2:], uint32(satstate.ModeStandBy))
	setPkt := buildPacket(idSetParam, caller, body, p.cfg.Keys[idSetParam])
	require.NoError(t, p.Handle(setPkt))
	require.Equal(t, satstate.ModeStandBy, st.Snapshot().Mode)

	getPkt := buildPacket(idGetParam, caller, []byte{satstate.DataOBDH, 0}, p.cfg.Keys[idGetParam])
	require.NoError(t, p.Handle(getPkt))
}

func TestUpdateTLEForwardsToOrbitTask(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	caller, _ := callsign.Parse("PY0EFS-1")

	line1 := make([]byte, 69)
	copy(line1, "1 25544U 98067A   20200.00000000  .00000000  00000-0  00000-0 0  9990")
	body := append([]byte{1}, line1...)
	pkt := buildPacket(idUpdateTLE, caller, body, p.cfg.Keys[idUpdateTLE])
	require.NoError(t, p.Handle(pkt))
}

func TestBroadcastRelaysWithoutAuth(t *testing.T) {
	p, sender, _ := newTestProcessor(t)
	caller, _ := callsign.Parse("PY0EFS-1")
	pkt := buildPacket(idBroadcast, caller, []byte("hello"), nil)

	require.NoError(t, p.Handle(pkt))
	require.Equal(t, byte(DownBroadcast), sender.last()[0])
}
