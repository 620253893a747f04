// Package radiolink runs the NGHam-framed radio transport: a byte-stream
// reader that hunts for preamble+sync and feeds the rest through
// package ngham's decoder state machine, and a writer that serializes
// outbound frames. It generalizes the teacher's NPI PHY/LinkMgr pair
// (npi_phy.go's RunNPI/npiPhyReader/npiPhyWriter and
// npi_linkmgr.go's LinkMgr registry+Ctrl pattern) from SMac's
// fixed-checksum OTA frame to NGHam's FEC+CRC+scrambled frame, and from
// program-ID dispatch to flag-based dispatch (spec §4.1, §6).
package radiolink

import (
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/spacelab-ufsc/obdh2-sub000/ngham"
)

// Frame is a received, successfully decoded downlink/uplink payload
// along with the channel conditions at receipt.
type Frame struct {
	Payload []byte
	Flags   uint8
	Errors  int
	RSSI    int8
	Noise   int8
}

// Receiver handles one inbound Frame. Returning false stops the frame
// from reaching subsequent firehose receivers (mirrors the teacher's
// FrameReceiver.Receive contract in npi_linkmgr.go).
type Receiver interface {
	Receive(*Link, Frame) bool
}

// ReceiverFunc adapts a plain function to Receiver.
type ReceiverFunc func(*Link, Frame) bool

func (f ReceiverFunc) Receive(l *Link, fr Frame) bool { return f(l, fr) }

// Link owns one physical radio transport and fans decoded frames out to
// a registry of receivers, the same broker role the teacher's LinkMgr
// plays over SMac OTA frames.
type Link struct {
	transport io.ReadWriteCloser

	txQueue chan txRequest
	died    chan struct{}
	diedOne sync.Once

	mu        sync.Mutex
	firehose  []Receiver

	// RSSI/Noise are attached to the Decoder before each frame and
	// surfaced on the resulting Frame; a transport without channel
	// telemetry can leave these as the zero value.
	ReadRSSI  func() int8
	ReadNoise func() int8
}

type txRequest struct {
	payload []byte
	flags   uint8
}

// CtrlTimeout mirrors the teacher's error type for a stalled link
// (npi_linkmgr.go's CtrlTimeout), reused here for the rare case a Send
// blocks on a dead transport.
type CtrlTimeout string

func (c CtrlTimeout) Error() string { return string(c) }

// New opens transport and starts the reader/writer goroutines. The
// returned Link is ready to Send and receive frames immediately.
func New(transport io.ReadWriteCloser) *Link {
	l := &Link{
		transport: transport,
		txQueue:   make(chan txRequest, 8),
		died:      make(chan struct{}),
	}
	go l.runWriter()
	go l.runReader()
	return l
}

// Close tears down the link; safe to call more than once.
func (l *Link) Close() error {
	l.diedOne.Do(func() { close(l.died) })
	return l.transport.Close()
}

// Send queues payload for transmission with the given NGHam user flags.
// It returns an error if the link has died, or a CtrlTimeout if the
// transmit queue stays full for 3 seconds.
func (l *Link) Send(payload []byte, flags uint8) error {
	select {
	case <-l.died:
		return errors.New("radiolink: transport faulted")
	default:
	}
	select {
	case l.txQueue <- txRequest{payload: payload, flags: flags}:
		return nil
	case <-l.died:
		return errors.New("radiolink: transport faulted")
	case <-time.After(3 * time.Second):
		return CtrlTimeout("radiolink: Send TIMEOUT")
	}
}

// RegisterReceiver adds r to the firehose (spec: no program-ID concept
// at this layer, so every receiver sees every decoded frame until one
// returns false).
func (l *Link) RegisterReceiver(r Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.firehose = append(l.firehose, r)
}

// DeregisterReceiver removes r if present.
func (l *Link) DeregisterReceiver(r Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.firehose[:0]
	for _, h := range l.firehose {
		if h != r {
			out = append(out, h)
		}
	}
	l.firehose = out
}

func (l *Link) runWriter() {
	for {
		select {
		case <-l.died:
			return
		case req := <-l.txQueue:
			frame, err := ngham.Encode(req.payload, req.flags)
			if err != nil {
				log.Printf("radiolink: dropping oversized frame: %v", err)
				continue
			}
			if _, err := l.transport.Write(frame); err != nil {
				l.diedOne.Do(func() { close(l.died) })
				return
			}
		}
	}
}

// runReader hunts for preamble+sync in the incoming byte stream (the
// same StartChar-search idea as npiPhyReader, generalized from a
// 1-2-byte start char to NGHam's 8-byte preamble+sync), then hands the
// rest of the frame to a ngham.Decoder.
func (l *Link) runReader() {
	var syncPos int
	dec := ngham.NewDecoder()

	buf := make([]byte, 4096)
	for {
		n, err := l.transport.Read(buf)
		if err != nil {
			l.diedOne.Do(func() { close(l.died) })
			return
		}
		for _, b := range buf[:n] {
			if syncPos < len(ngham.Preamble)+len(ngham.Sync) {
				want := syncMarker(syncPos)
				if b == want {
					syncPos++
				} else if b == ngham.Preamble[0] {
					syncPos = 1
				} else {
					syncPos = 0
				}
				continue
			}

			if l.ReadRSSI != nil {
				dec.RSSI = l.ReadRSSI()
			}
			if l.ReadNoise != nil {
				dec.Noise = l.ReadNoise()
			}

			result := dec.Feed(b)
			if result == nil {
				continue
			}
			syncPos = 0
			if result.Condition != ngham.ConditionOk {
				continue
			}
			l.dispatch(Frame{
				Payload: result.Payload,
				Flags:   result.Flags,
				Errors:  result.Errors,
				RSSI:    result.RSSI,
				Noise:   result.Noise,
			})
		}
	}
}

func syncMarker(pos int) byte {
	if pos < len(ngham.Preamble) {
		return ngham.Preamble[pos]
	}
	return ngham.Sync[pos-len(ngham.Preamble)]
}

func (l *Link) dispatch(fr Frame) {
	l.mu.Lock()
	handlers := append([]Receiver{}, l.firehose...)
	l.mu.Unlock()
	for _, h := range handlers {
		if !h.Receive(l, fr) {
			return
		}
	}
}
