// Package spibus frames single request/response exchanges to a SPI NOR chip
// over a periph.io SPI port with a dedicated chip-select GPIO. Pure transport:
// no retries, no knowledge of the command set beyond the status read opcodes.
package spibus

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	cmdReadStatus1 = 0x05
	cmdReadStatus2 = 0x35

	// Settle margin between chip-select edges and the clocked transfer.
	csMargin = time.Microsecond

	// Largest single transaction, opcode and address included. Matches the
	// common kernel spidev buffer size.
	maxTransfer = 4096
)

type Config struct {
	// Port is a periph.io SPI port name, e.g. "SPI0.0". Empty selects the
	// first available port.
	Port string
	// CS is the chip-select GPIO name, e.g. "GPIO5".
	CS string
	// Speed is the bus clock. Zero defaults to 1 MHz.
	Speed physic.Frequency
}

type Bus struct {
	port spi.PortCloser
	conn spi.Conn
	cs   gpio.PinIO
}

var hostInitialized atomic.Bool

// Open initializes the periph.io host once per process, opens the SPI port
// and claims the chip-select line, leaving it deasserted.
func Open(cfg Config) (*Bus, error) {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("host initialization failed: %w", err)
		}
	}

	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("open SPI port %q: %w", cfg.Port, err)
	}

	speed := cfg.Speed
	if speed == 0 {
		speed = physic.MegaHertz
	}
	conn, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect SPI port: %w", err)
	}

	cs := gpioreg.ByName(cfg.CS)
	if cs == nil {
		port.Close()
		return nil, fmt.Errorf("chip select pin %q not found", cfg.CS)
	}
	if err := cs.Out(gpio.High); err != nil {
		port.Close()
		return nil, fmt.Errorf("deassert chip select: %w", err)
	}

	return &Bus{port: port, conn: conn, cs: cs}, nil
}

func (b *Bus) Close() error {
	return b.port.Close()
}

// tx wraps one full-duplex transfer with chip-select framing: assert, margin,
// transfer, margin, deassert.
func (b *Bus) tx(buf []byte) (err error) {
	if err = b.cs.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(csMargin)
	defer func() {
		time.Sleep(csMargin)
		if csErr := b.cs.Out(gpio.High); csErr != nil && err == nil {
			err = csErr
		}
	}()
	return b.conn.Tx(buf, buf)
}

// Command sends a single opcode with no payload.
func (b *Bus) Command(opcode byte) error {
	return b.tx([]byte{opcode})
}

// Exchange shifts out the given bytes, then keeps clocking for readLen more
// bytes and returns what the chip shifted back during that phase.
func (b *Bus) Exchange(out []byte, readLen int) ([]byte, error) {
	if len(out)+readLen > maxTransfer {
		return nil, errors.New("transaction exceeds bus transfer limit")
	}
	buf := make([]byte, len(out)+readLen)
	copy(buf, out)
	if err := b.tx(buf); err != nil {
		return nil, err
	}
	return buf[len(out):], nil
}

// ReadStatus reads status register 1 or 2.
func (b *Bus) ReadStatus(reg int) (byte, error) {
	opcode := byte(cmdReadStatus1)
	if reg == 2 {
		opcode = cmdReadStatus2
	}
	rx, err := b.Exchange([]byte{opcode}, 1)
	if err != nil {
		return 0, err
	}
	return rx[0], nil
}

func (b *Bus) MaxTransfer() int {
	return maxTransfer
}
