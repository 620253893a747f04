package main

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // spec-mandated HMAC-SHA1
	"fmt"
	"os"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/spacelab-ufsc/obdh2-sub000/callsign"
	"github.com/spacelab-ufsc/obdh2-sub000/radiolink"
)

var (
	serialPath = kingpin.Flag("device", "Path to serial port device for the radio transport").Required().String()
	baudRate   = kingpin.Flag("baud", "Serial port baudrate").Default("9600").Uint()
	fromCall   = kingpin.Flag("from", "Requester callsign, e.g. PY0EFS-11").Required().String()
	hmacKey    = kingpin.Flag("key", "HMAC-SHA1 key for this command").String()

	cmdPing = kingpin.Command("ping", "Send a Ping telecommand")

	cmdHibernate      = kingpin.Command("hibernate", "Send an EnterHibernation telecommand")
	hibernateDuration = cmdHibernate.Arg("hours", "Hibernation duration in hours (0-65535)").Required().Uint16()

	cmdWake = kingpin.Command("wake", "Send a LeaveHibernation telecommand")

	cmdErase = kingpin.Command("erase-memory", "Send an EraseMemory telecommand")
)

const (
	idPing           = 0x40
	idEnterHibernate = 0x43
	idLeaveHibernate = 0x44
	idEraseMemory    = 0x49
)

func main() {
	kingpin.Version("0.1")
	cmd := kingpin.Parse()

	from, err := callsign.Parse(*fromCall)
	if err != nil {
		fmt.Printf("Invalid callsign: %v\n", err)
		os.Exit(1)
	}

	transport, err := radiolink.OpenSerial(*serialPath, *baudRate)
	if err != nil {
		fmt.Printf("Error opening radio transport: %v\n", err)
		os.Exit(1)
	}
	link := radiolink.New(transport)
	defer link.Close()

	var pkt []byte
	switch cmd {
	case cmdPing.FullCommand():
		pkt = buildPacket(idPing, from, nil, nil)
	case cmdHibernate.FullCommand():
		body := []byte{byte(*hibernateDuration >> 8), byte(*hibernateDuration)}
		pkt = buildPacket(idEnterHibernate, from, body, []byte(*hmacKey))
	case cmdWake.FullCommand():
		pkt = buildPacket(idLeaveHibernate, from, nil, []byte(*hmacKey))
	case cmdErase.FullCommand():
		pkt = buildPacket(idEraseMemory, from, nil, []byte(*hmacKey))
	default:
		fmt.Printf("Unknown command %q\n", cmd)
		os.Exit(1)
	}

	if err := link.Send(pkt, 0); err != nil {
		fmt.Printf("Error sending telecommand: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("sent")
}

func buildPacket(id byte, from callsign.Call, body, key []byte) []byte {
	pkt := []byte{id}
	cs := from.Unpacked7()
	pkt = append(pkt, cs[:]...)
	pkt = append(pkt, body...)
	if key != nil {
		mac := hmac.New(sha1.New, key)
		mac.Write(pkt)
		pkt = append(pkt, mac.Sum(nil)...)
	}
	return pkt
}
