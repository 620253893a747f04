package radiolink

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spacelab-ufsc/obdh2-sub000/ngham"
)

// fakeTransport is an in-memory io.ReadWriteCloser, the radiolink
// counterpart of the teacher's TestLink (npi_test.go).
type fakeTransport struct {
	mu       sync.Mutex
	readBuf  []byte
	readMore chan struct{}
	written  bytes.Buffer
	closed   bool
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	f.mu.Lock()
	for len(f.readBuf) == 0 && !f.closed {
		f.mu.Unlock()
		<-f.readMore
		f.mu.Lock()
	}
	if f.closed {
		f.mu.Unlock()
		return 0, errors.New("fakeTransport: closed")
	}
	n := copy(p, f.readBuf)
	f.readBuf = f.readBuf[n:]
	f.mu.Unlock()
	return n, nil
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.Write(p)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) feed(b []byte) {
	f.mu.Lock()
	f.readBuf = append(f.readBuf, b...)
	f.mu.Unlock()
	select {
	case f.readMore <- struct{}{}:
	default:
	}
}

type collectingReceiver struct {
	mu     sync.Mutex
	frames []Frame
	got    chan struct{}
}

func (c *collectingReceiver) Receive(l *Link, fr Frame) bool {
	c.mu.Lock()
	c.frames = append(c.frames, fr)
	c.mu.Unlock()
	select {
	case c.got <- struct{}{}:
	default:
	}
	return true
}

func TestLinkReceivesEncodedFrame(t *testing.T) {
	transport := &fakeTransport{readMore: make(chan struct{}, 1)}
	link := New(transport)
	defer link.Close()

	recv := &collectingReceiver{got: make(chan struct{}, 1)}
	link.RegisterReceiver(recv)

	wire, err := ngham.Encode([]byte("PING1234"), 0x5)
	require.NoError(t, err)
	transport.feed(wire)

	select {
	case <-recv.got:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for decoded frame")
	}

	recv.mu.Lock()
	defer recv.mu.Unlock()
	require.Len(t, recv.frames, 1)
	require.Equal(t, []byte("PING1234"), recv.frames[0].Payload)
	require.Equal(t, uint8(0x5), recv.frames[0].Flags)
}

func TestLinkSendWritesEncodedFrame(t *testing.T) {
	transport := &fakeTransport{readMore: make(chan struct{}, 1)}
	link := New(transport)
	defer link.Close()

	require.NoError(t, link.Send([]byte("hello"), 0))

	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return transport.written.Len() > 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDeregisterReceiverStopsDelivery(t *testing.T) {
	transport := &fakeTransport{readMore: make(chan struct{}, 1)}
	link := New(transport)
	defer link.Close()

	recv := &collectingReceiver{got: make(chan struct{}, 1)}
	link.RegisterReceiver(recv)
	link.DeregisterReceiver(recv)

	wire, err := ngham.Encode([]byte("AFTERDEREG"), 0)
	require.NoError(t, err)
	transport.feed(wire)

	time.Sleep(200 * time.Millisecond)
	recv.mu.Lock()
	defer recv.mu.Unlock()
	require.Len(t, recv.frames, 0)
}
