package radiolink

import (
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// OpenSerial opens a serial port for use as a Link transport (spec §6
// "Radio TX: one call at a time"), mirroring the teacher's
// NewSerialPHY (npi_phy.go) with the baud rate chosen for the radio's
// host-interface UART rather than the SMac NPI microcontroller's.
func OpenSerial(path string, baud uint) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              path,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
		MinimumReadSize:       1,
	}
	return serial.Open(opts)
}
