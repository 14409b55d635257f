package spiflash

// Classic single-byte SPI NOR command set.
const (
	cmdWriteEnable  = 0x06
	cmdWriteDisable = 0x04
	cmdReadStatus1  = 0x05
	cmdReadStatus2  = 0x35
	cmdWriteStatus  = 0x01
	cmdRead         = 0x03
	cmdPageProgram  = 0x02
	cmdSectorErase  = 0x20 // 4 KiB
	cmdBlockErase   = 0xD8 // 64 KiB
	cmdChipErase    = 0xC7
	cmdReadJEDEC    = 0x9F
	cmdReadSFDP     = 0x5A
	cmdResetEnable  = 0x66
	cmdReset        = 0x99
	cmdUnlockBlocks = 0x98
	cmdResume       = 0x7A
)

// Protocol constants, not chip-reported.
const (
	PageSize   = 256
	SectorSize = 4096
	BlockSize  = 65536
)

// JEDECID is the 3-byte identification response. It is whatever the chip
// answered; with no chip on the bus it will be garbage (usually 0x00 or 0xFF).
type JEDECID struct {
	Manufacturer byte
	MemoryType   byte
	Capacity     byte
}

func (id JEDECID) String() string {
	const hex = "0123456789abcdef"
	b := []byte{
		hex[id.Manufacturer>>4], hex[id.Manufacturer&0xF],
		hex[id.MemoryType>>4], hex[id.MemoryType&0xF],
		hex[id.Capacity>>4], hex[id.Capacity&0xF],
	}
	return string(b)
}

// Capacity maps a JEDEC capacity code to a size in bytes. Codes outside
// [0x10,0x20] are not defined by the table and yield 0; callers supply their
// own fallback.
func Capacity(code byte) uint32 {
	if code < 0x10 || code > 0x20 {
		return 0
	}
	return uint32((uint64(1) << code) / 8)
}

// StatusRegister is status register 1 of the chip.
//
//	bit 7   SRP: status register protect
//	bit 6   SEC: sector protect
//	bit 5   TB:  top/bottom protect
//	bit 4:2 BP2-0: block protect
//	bit 1   WEL: write enable latch
//	bit 0   BUSY: erase/write in progress
type StatusRegister byte

func (sr StatusRegister) Busy() bool         { return sr&(1<<0) != 0 }
func (sr StatusRegister) WriteEnabled() bool { return sr&(1<<1) != 0 }
func (sr StatusRegister) BlockProtected() bool {
	return sr&(0x7<<2) != 0
}
