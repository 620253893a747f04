package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/spacelab-ufsc/obdh2-sub000/callsign"
	"github.com/spacelab-ufsc/obdh2-sub000/devices"
	"github.com/spacelab-ufsc/obdh2-sub000/missionmgr"
	"github.com/spacelab-ufsc/obdh2-sub000/orbit"
	"github.com/spacelab-ufsc/obdh2-sub000/producers"
	"github.com/spacelab-ufsc/obdh2-sub000/radiolink"
	"github.com/spacelab-ufsc/obdh2-sub000/satstate"
	"github.com/spacelab-ufsc/obdh2-sub000/startup"
	"github.com/spacelab-ufsc/obdh2-sub000/tc"
	"github.com/spacelab-ufsc/obdh2-sub000/telemetry"
)

var (
	serialPath  = kingpin.Flag("device", "Path to serial port device for the radio transport").Required().String()
	baudRate    = kingpin.Flag("baud", "Serial port baudrate").Default("9600").Uint()
	ownCallsign = kingpin.Flag("callsign", "Own station callsign (e.g. PY0EFS-11)").Default("OBDH1").String()
	dryRun      = kingpin.Flag("dry-run", "Skip opening a real serial port; drive the simulated devices only").Bool()
)

func main() {
	kingpin.Version("0.1")
	kingpin.Parse()

	own, err := callsign.Parse(*ownCallsign)
	if err != nil {
		fmt.Printf("Invalid callsign: %v\n", err)
		os.Exit(1)
	}

	st := satstate.New()
	store := telemetry.New(telemetry.NewSimNOR(), telemetry.NewSimFRAM())
	if _, err := startup.Bringup(store, st); err != nil {
		fmt.Printf("Bringup failed: %v\n", err)
		os.Exit(1)
	}

	eps := devices.NewSimEPS()
	ttc0, ttc1 := devices.NewSimTTC(), devices.NewSimTTC()
	edcA, edcB := devices.NewSimEDC("EDC-A"), devices.NewSimEDC("EDC-B")
	px := devices.NewSimPX()
	ant := devices.NewSimAntenna()

	mm := missionmgr.New(missionmgr.Config{
		EDCA: edcA, EDCB: edcB, PX: px, TTC0: ttc0, TTC1: ttc1,
		MainEDCIsA:           true,
		PxExperimentDuration: 5 * time.Minute,
	}, st)

	var link *radiolink.Link
	if !*dryRun {
		fmt.Printf("Opening radio transport on %s at %d baud...", *serialPath, *baudRate)
		transport, err := radiolink.OpenSerial(*serialPath, *baudRate)
		if err != nil {
			fmt.Printf("Error opening radio transport: %v\n", err)
			os.Exit(1)
		}
		link = radiolink.New(transport)
		fmt.Println("done")
	}

	ob := orbit.New(orbit.SGP4Propagator{})

	// link is a typed *radiolink.Link; only assign it to the Sender
	// interface fields below when it is actually non-nil, or the
	// "!= nil" checks inside tc/producers would see a non-nil interface
	// wrapping a nil pointer.
	var sender tc.Sender
	var beaconSender producers.BeaconSender
	if link != nil {
		sender = link
		beaconSender = link
	}

	keys := defaultKeys()
	proc := tc.New(tc.Config{
		OwnCallsign: own,
		Sender:      sender,
		MM:          mm,
		Store:       store,
		Orbit:       ob,
		State:       st,
		EPS:         eps,
		TTC0:        ttc0,
		TTC1:        ttc1,
		Keys:        keys,
	})

	if link != nil {
		link.RegisterReceiver(radiolink.ReceiverFunc(func(_ *radiolink.Link, fr radiolink.Frame) bool {
			if err := proc.Handle(fr.Payload); err != nil {
				fmt.Printf("tc: %v\n", err)
			}
			return true
		}))
	}

	prodRunner := producers.New(producers.Config{
		EPS: eps, TTC0: ttc0, TTC1: ttc1, Antenna: ant, EDCA: edcA, EDCB: edcB, PX: px,
		Store: store, State: st,
	})
	beacon := producers.NewBeacon(producers.BeaconConfig{Sender: beaconSender, State: st})
	sup := startup.New(startup.Config{Store: store, State: st})

	stop := make(chan struct{})
	go mm.Run(stop)
	prodRunner.Start(stop)
	beacon.Start(stop)
	sup.Start(stop)

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				now := time.Now()
				mm.CheckHibernationTimeout(now)
				if ev, err := ob.RunCycle(st, now); err != nil {
					fmt.Printf("orbit: %v\n", err)
				} else if ev != nil {
					_ = mm.Enqueue(*ev)
				}
			}
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	close(stop)
	if link != nil {
		link.Close()
	}
}

// defaultKeys returns placeholder per-command HMAC keys; production
// deployments load these from a provisioned key file rather than
// compiling them in.
func defaultKeys() map[byte][]byte {
	ids := []byte{0x41, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F}
	keys := make(map[byte][]byte, len(ids))
	for _, id := range ids {
		keys[id] = []byte(fmt.Sprintf("obdh-default-key-%02x", id))
	}
	return keys
}
