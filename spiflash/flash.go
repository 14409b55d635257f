// Package spiflash drives a SPI NOR flash chip with the classic command set:
// JEDEC identification, sequential read, 256-byte page program and 4 KiB
// sector erase, including a bounded recovery protocol for erases that never
// report completion.
package spiflash

import (
	"fmt"
	"time"

	"github.com/apex/log"
)

// Bus is the raw command transport. Implementations frame every exchange with
// chip-select assertion and deassertion and do no retrying of their own.
type Bus interface {
	// Command sends a single opcode with no payload.
	Command(opcode byte) error
	// Exchange shifts out the given bytes, then shifts in readLen bytes.
	Exchange(out []byte, readLen int) ([]byte, error)
	// ReadStatus reads status register 1 or 2.
	ReadStatus(reg int) (byte, error)
	// MaxTransfer is the largest single exchange the bus can carry, in bytes,
	// including opcode and address.
	MaxTransfer() int
}

type Device struct {
	bus Bus
	id  JEDECID

	// Busy-wait deadlines. Worst-case datasheet values with margin; tests
	// shorten them.
	programTimeout    time.Duration
	eraseTimeout      time.Duration
	eraseRetryTimeout time.Duration
	unprotectTimeout  time.Duration
	settleShort       time.Duration
	settleLong        time.Duration
}

func New(bus Bus) *Device {
	return &Device{
		bus:               bus,
		programTimeout:    10 * time.Second,
		eraseTimeout:      2 * time.Second,
		eraseRetryTimeout: 3 * time.Second,
		unprotectTimeout:  200 * time.Millisecond,
		settleShort:       time.Millisecond,
		settleLong:        10 * time.Millisecond,
	}
}

// BusyTimeoutError reports a command whose busy-wait deadline elapsed. SR1 and
// SR2 are the status registers as sampled after the deadline.
type BusyTimeoutError struct {
	Op   string
	Addr uint32
	SR1  byte
	SR2  byte
}

func (e *BusyTimeoutError) Error() string {
	return fmt.Sprintf("%s @0x%06x did not complete (SR1=0x%02x SR2=0x%02x)", e.Op, e.Addr, e.SR1, e.SR2)
}

// Init forces the controller into a clean state: clear all protection, then a
// soft reset sequence. Best effort; callers should re-probe the identity
// afterwards.
func (d *Device) Init() error {
	if err := d.softReset(); err != nil {
		return err
	}
	return d.globalUnprotect()
}

// ReadJEDEC reads the 3-byte identification response. The bytes are returned
// as-is, without validation.
func (d *Device) ReadJEDEC() (JEDECID, error) {
	rx, err := d.bus.Exchange([]byte{cmdReadJEDEC}, 3)
	if err != nil {
		return JEDECID{}, err
	}
	d.id = JEDECID{Manufacturer: rx[0], MemoryType: rx[1], Capacity: rx[2]}
	return d.id, nil
}

// JEDEC returns the identity from the last ReadJEDEC call.
func (d *Device) JEDEC() JEDECID {
	return d.id
}

// ProbeCapacitySFDP would read the capacity from the SFDP table. Not
// implemented; callers fall back to the JEDEC capacity code table.
func (d *Device) ProbeCapacitySFDP() (uint32, bool) {
	return 0, false
}

func cmdAddr(opcode byte, addr uint32) []byte {
	return []byte{opcode, byte(addr >> 16), byte(addr >> 8), byte(addr)}
}

func (d *Device) read(addr uint32, buf []byte) (int, error) {
	// opcode + 24-bit address per transaction
	if max := d.bus.MaxTransfer() - 4; len(buf) > max {
		buf = buf[:max]
	}

	rx, err := d.bus.Exchange(cmdAddr(cmdRead, addr), len(buf))
	if err != nil {
		return 0, err
	}
	copy(buf, rx)
	return len(buf), nil
}

// Read fills buf starting at addr, splitting the chip's sequential read into
// as many bus transactions as needed.
func (d *Device) Read(addr uint32, buf []byte) error {
	_, err := completeIO(addr, buf, d.read)
	return err
}

func (d *Device) writeEnable() error {
	return d.bus.Command(cmdWriteEnable)
}

// ProgramPage writes 1..256 bytes at addr. The write must not cross a 256-byte
// page boundary; callers split their runs first. No internal retry: a busy
// timeout surfaces as a BusyTimeoutError.
func (d *Device) ProgramPage(addr uint32, data []byte) error {
	if len(data) == 0 || len(data) > PageSize {
		return fmt.Errorf("program length %d out of range [1,%d]", len(data), PageSize)
	}
	if int(addr%PageSize)+len(data) > PageSize {
		return fmt.Errorf("program @0x%06x+%d crosses a page boundary", addr, len(data))
	}

	if err := d.writeEnable(); err != nil {
		return err
	}

	out := append(cmdAddr(cmdPageProgram, addr), data...)
	if _, err := d.bus.Exchange(out, 0); err != nil {
		return err
	}

	// usually well under a second; worst case is much longer
	return d.waitBusyOp("program", addr, d.programTimeout)
}

// EraseSector erases the 4 KiB sector containing addr.
//
// Some devices latch into a suspended or locked erase state after marginal
// power or bus noise. When the first attempt times out, the minimal recovery
// that does not need a power cycle is: resume, soft reset, clear protection,
// re-issue. One retry only; a second timeout means the sector's erase state is
// unknown to the caller.
func (d *Device) EraseSector(addr uint32) error {
	if err := d.globalUnprotect(); err != nil {
		return err
	}

	if err := d.issueErase(cmdSectorErase, addr); err != nil {
		return err
	}
	cleared, err := d.waitBusy(d.eraseTimeout)
	if err != nil {
		return err
	}
	if cleared {
		return nil
	}

	sr1, _ := d.bus.ReadStatus(1)
	sr2, _ := d.bus.ReadStatus(2)
	log.WithFields(log.Fields{
		"addr": fmt.Sprintf("0x%06x", addr),
		"sr1":  fmt.Sprintf("0x%02x", sr1),
		"sr2":  fmt.Sprintf("0x%02x", sr2),
	}).Warn("erase timed out, recovering")

	if err := d.bus.Command(cmdResume); err != nil {
		return err
	}
	if err := d.softReset(); err != nil {
		return err
	}
	if err := d.globalUnprotect(); err != nil {
		return err
	}

	if err := d.issueErase(cmdSectorErase, addr); err != nil {
		return err
	}
	return d.waitBusyOp("erase", addr, d.eraseRetryTimeout)
}

func (d *Device) issueErase(opcode byte, addr uint32) error {
	if err := d.writeEnable(); err != nil {
		return err
	}
	_, err := d.bus.Exchange(cmdAddr(opcode, addr), 0)
	return err
}

// EraseBlock erases the 64 KiB block containing addr. No recovery protocol.
func (d *Device) EraseBlock(addr uint32) error {
	if err := d.globalUnprotect(); err != nil {
		return err
	}
	if err := d.issueErase(cmdBlockErase, addr); err != nil {
		return err
	}
	return d.waitBusyOp("block erase", addr, 5*time.Second)
}

// EraseChip erases the whole chip. No recovery protocol.
func (d *Device) EraseChip() error {
	if err := d.globalUnprotect(); err != nil {
		return err
	}
	if err := d.writeEnable(); err != nil {
		return err
	}
	if err := d.bus.Command(cmdChipErase); err != nil {
		return err
	}
	return d.waitBusyOp("chip erase", 0, 200*time.Second)
}

// softReset: enable-reset, reset, each followed by a settle delay.
func (d *Device) softReset() error {
	if err := d.bus.Command(cmdResetEnable); err != nil {
		return err
	}
	time.Sleep(d.settleShort)
	if err := d.bus.Command(cmdReset); err != nil {
		return err
	}
	time.Sleep(d.settleLong)
	return nil
}

// globalUnprotect clears the block-protect bits twice over: the dedicated
// unlock-all command first, then an explicit status register write of zero.
// Idempotent.
func (d *Device) globalUnprotect() error {
	if err := d.bus.Command(cmdUnlockBlocks); err != nil {
		return err
	}
	time.Sleep(d.settleShort)

	if err := d.writeEnable(); err != nil {
		return err
	}
	if _, err := d.bus.Exchange([]byte{cmdWriteStatus, 0x00, 0x00}, 0); err != nil {
		return err
	}
	if _, err := d.waitBusy(d.unprotectTimeout); err != nil {
		return err
	}

	d.bus.ReadStatus(1)
	d.bus.ReadStatus(2)
	return nil
}

// waitBusy polls the write-in-progress bit until it clears or the wall-clock
// deadline elapses, and reports whether it cleared.
func (d *Device) waitBusy(timeout time.Duration) (bool, error) {
	return waitWithDeadline(timeout, func() (bool, error) {
		sr, err := d.bus.ReadStatus(1)
		if err != nil {
			return false, err
		}
		return !StatusRegister(sr).Busy(), nil
	})
}

func (d *Device) waitBusyOp(op string, addr uint32, timeout time.Duration) error {
	cleared, err := d.waitBusy(timeout)
	if err != nil {
		return err
	}
	if !cleared {
		sr1, _ := d.bus.ReadStatus(1)
		sr2, _ := d.bus.ReadStatus(2)
		return &BusyTimeoutError{Op: op, Addr: addr, SR1: sr1, SR2: sr2}
	}
	return nil
}

// waitWithDeadline polls pred at the bus's natural round-trip cadence until it
// reports done or the deadline elapses. This is the only suspension point in
// the driver, and it is strictly per command.
func waitWithDeadline(timeout time.Duration, pred func() (bool, error)) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		done, err := pred()
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
	}
}
