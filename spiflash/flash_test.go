package spiflash

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// simBus models a NOR chip behind the bus interface: erased bytes read 0xFF,
// programming only clears bits, and a configurable number of erase attempts
// hang with the busy bit latched until a soft reset.
type simBus struct {
	mem          []byte
	id           [3]byte
	busy         bool
	failErases   int
	writeEnabled bool
	maxTransfer  int

	eraseAttempts int
	resets        int
	resumes       int
	unprotects    int
}

func newSimBus(size int) *simBus {
	b := &simBus{
		mem:         make([]byte, size),
		id:          [3]byte{0xEF, 0x40, 0x10},
		maxTransfer: 4096,
	}
	for i := range b.mem {
		b.mem[i] = 0xFF
	}
	return b
}

func (b *simBus) Command(opcode byte) error {
	switch opcode {
	case cmdWriteEnable:
		b.writeEnabled = true
	case cmdWriteDisable:
		b.writeEnabled = false
	case cmdReset:
		b.resets++
		b.busy = false
	case cmdResume:
		b.resumes++
	case cmdUnlockBlocks:
		b.unprotects++
	}
	return nil
}

func (b *simBus) ReadStatus(reg int) (byte, error) {
	if reg == 1 && b.busy {
		return 0x01, nil
	}
	return 0x00, nil
}

func (b *simBus) MaxTransfer() int { return b.maxTransfer }

func addr24(out []byte) int {
	return int(out[1])<<16 | int(out[2])<<8 | int(out[3])
}

func (b *simBus) Exchange(out []byte, readLen int) ([]byte, error) {
	if len(out)+readLen > b.maxTransfer {
		return nil, errors.New("transaction exceeds bus transfer limit")
	}

	switch out[0] {
	case cmdReadJEDEC:
		return b.id[:readLen], nil

	case cmdRead:
		a := addr24(out)
		return append([]byte(nil), b.mem[a:a+readLen]...), nil

	case cmdPageProgram:
		if !b.writeEnabled {
			return nil, errors.New("program without write enable")
		}
		b.writeEnabled = false
		a := addr24(out)
		for i, v := range out[4:] {
			b.mem[a+i] &= v
		}
		return nil, nil

	case cmdSectorErase:
		if !b.writeEnabled {
			return nil, errors.New("erase without write enable")
		}
		b.writeEnabled = false
		b.eraseAttempts++
		if b.failErases > 0 {
			b.failErases--
			b.busy = true
			return nil, nil
		}
		a := addr24(out) &^ (SectorSize - 1)
		for i := 0; i < SectorSize; i++ {
			b.mem[a+i] = 0xFF
		}
		return nil, nil

	case cmdWriteStatus:
		return nil, nil
	}

	return make([]byte, readLen), nil
}

func newTestDevice(b Bus) *Device {
	d := New(b)
	d.programTimeout = 20 * time.Millisecond
	d.eraseTimeout = 20 * time.Millisecond
	d.eraseRetryTimeout = 20 * time.Millisecond
	d.unprotectTimeout = 5 * time.Millisecond
	d.settleShort = 0
	d.settleLong = 0
	return d
}

func TestReadJEDEC(t *testing.T) {
	bus := newSimBus(SectorSize)
	d := newTestDevice(bus)

	id, err := d.ReadJEDEC()
	if err != nil {
		t.Fatal(err)
	}
	want := JEDECID{Manufacturer: 0xEF, MemoryType: 0x40, Capacity: 0x10}
	if id != want {
		t.Errorf("JEDEC id %+v != %+v", id, want)
	}
	if d.JEDEC() != want {
		t.Error("cached id differs")
	}
}

func TestCapacityDecoding(t *testing.T) {
	cases := []struct {
		code byte
		want uint32
	}{
		{0x18, 2097152},
		{0x10, 8192},
		{0x20, 536870912},
		{0x0F, 0},
		{0x21, 0},
		{0x00, 0},
	}
	for _, c := range cases {
		if got := Capacity(c.code); got != c.want {
			t.Errorf("Capacity(0x%02x) = %d, want %d", c.code, got, c.want)
		}
	}
}

func TestProgramPageBounds(t *testing.T) {
	bus := newSimBus(SectorSize)
	d := newTestDevice(bus)

	if err := d.ProgramPage(0, nil); err == nil {
		t.Error("empty program accepted")
	}
	if err := d.ProgramPage(0, make([]byte, PageSize+1)); err == nil {
		t.Error("oversized program accepted")
	}
	if err := d.ProgramPage(250, make([]byte, 10)); err == nil {
		t.Error("page-crossing program accepted")
	}
}

func TestProgramReadRoundTrip(t *testing.T) {
	bus := newSimBus(SectorSize)
	d := newTestDevice(bus)

	data := []byte{0x01, 0x23, 0x45, 0x67, 0x89}
	if err := d.ProgramPage(0x100, data); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, len(data))
	if err := d.Read(0x100, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("read back %x != %x", got, data)
	}
}

func TestReadSplitsTransactions(t *testing.T) {
	bus := newSimBus(SectorSize)
	for i := range bus.mem {
		bus.mem[i] = byte(i)
	}
	bus.maxTransfer = 20 // 16 data bytes per transaction
	d := newTestDevice(bus)

	got := make([]byte, 100)
	if err := d.Read(5, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, bus.mem[5:105]) {
		t.Error("split read returned wrong data")
	}
}

func TestEraseRecovery(t *testing.T) {
	bus := newSimBus(SectorSize)
	bus.failErases = 1
	d := newTestDevice(bus)

	if err := d.EraseSector(0); err != nil {
		t.Fatalf("erase did not recover: %v", err)
	}

	if bus.eraseAttempts != 2 {
		t.Errorf("erase attempts = %d, want 2", bus.eraseAttempts)
	}
	if bus.resets != 1 {
		t.Errorf("soft resets = %d, want 1", bus.resets)
	}
	if bus.resumes != 1 {
		t.Errorf("resumes = %d, want 1", bus.resumes)
	}
	if bus.unprotects != 2 {
		t.Errorf("unprotects = %d, want 2", bus.unprotects)
	}
}

func TestEraseRetryFailure(t *testing.T) {
	bus := newSimBus(SectorSize)
	bus.failErases = 2
	d := newTestDevice(bus)

	err := d.EraseSector(0)
	var timeout *BusyTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("want BusyTimeoutError, got %v", err)
	}

	// exactly one recovery cycle, never more
	if bus.resets != 1 {
		t.Errorf("soft resets = %d, want 1", bus.resets)
	}
	if bus.eraseAttempts != 2 {
		t.Errorf("erase attempts = %d, want 2", bus.eraseAttempts)
	}
}

func TestWaitWithDeadline(t *testing.T) {
	calls := 0
	done, err := waitWithDeadline(time.Second, func() (bool, error) {
		calls++
		return calls >= 3, nil
	})
	if err != nil || !done {
		t.Errorf("predicate completion not seen (done=%v err=%v)", done, err)
	}
	if calls != 3 {
		t.Errorf("predicate called %d times, want 3", calls)
	}

	done, err = waitWithDeadline(time.Millisecond, func() (bool, error) {
		return false, nil
	})
	if err != nil || done {
		t.Error("deadline did not expire")
	}

	boom := errors.New("bus gone")
	if _, err := waitWithDeadline(time.Second, func() (bool, error) {
		return false, boom
	}); !errors.Is(err, boom) {
		t.Errorf("predicate error not propagated: %v", err)
	}
}

func TestPageRoom(t *testing.T) {
	cases := []struct {
		addr uint32
		want uint32
	}{
		{0, 256},
		{1, 255},
		{255, 1},
		{256, 256},
		{4095, 1},
	}
	for _, c := range cases {
		if got := PageRoom(c.addr); got != c.want {
			t.Errorf("PageRoom(%d) = %d, want %d", c.addr, got, c.want)
		}
	}
}
