package counter

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Port is the subset of a serial port the codec uses. go.bug.st/serial
// ports satisfy it; tests substitute an in-memory fake.
//
// Read must return (0, nil) when the read timeout elapses with no data.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// PortOpener opens the serial device at path with the given baud rate.
type PortOpener func(path string, baudRate int) (Port, error)

// Ensure go.bug.st/serial ports implement Port.
var _ Port = serial.Port(nil)

// OpenSerialPort opens a real serial device at 8 data bits, no parity,
// one stop bit.
func OpenSerialPort(path string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return port, nil
}
