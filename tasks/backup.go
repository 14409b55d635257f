package tasks

import (
	"fmt"

	"github.com/flashimg/fimg/image"
	"github.com/flashimg/fimg/spiflash"
)

type BackupInfo struct {
	Name  string
	Size  uint32
	CRC32 uint32
}

// Backup streams the whole chip into a new image file on the volume. The
// header is first written with a zero checksum placeholder and backfilled in
// place once the payload checksum is known; a file abandoned before that point
// fails validation by construction. Failed backups are left on the volume.
func (r *Runner) Backup() (*BackupInfo, error) {
	if err := r.vol.Mount(); err != nil {
		return nil, err
	}

	id := r.flash.JEDEC()
	size := spiflash.Capacity(id.Capacity)
	if size == 0 {
		size = FallbackCapacity
	}

	name := fmt.Sprintf("%s_%s%s", r.now().Format("20060102-150405"), id, ImageExt)
	f, err := r.vol.Create(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdr := image.Header{
		JEDEC:     [3]byte{id.Manufacturer, id.MemoryType, id.Capacity},
		FlashSize: size,
		ChunkSize: r.chunk,
		ImageSize: size,
		CRC32:     0, // backfilled below
	}
	if err := image.WriteHeader(f, hdr); err != nil {
		return nil, err
	}

	sum := image.NewChecksum()
	buf := make([]byte, r.chunk)

	for addr := uint32(0); addr < size; {
		n := min(size-addr, r.chunk)
		if err := r.flash.Read(addr, buf[:n]); err != nil {
			return nil, fmt.Errorf("flash read @0x%06x: %w", addr, err)
		}
		sum.Update(buf[:n])
		if _, err := f.Write(buf[:n]); err != nil {
			return nil, fmt.Errorf("image write @0x%06x: %w", addr, err)
		}
		addr += n
		r.report(StageBackup, int64(addr), int64(size))
	}

	crc := sum.Final()
	if err := image.WriteTrailer(f, crc); err != nil {
		return nil, err
	}

	hdr.CRC32 = crc
	if err := image.RewriteHeader(f, hdr); err != nil {
		return nil, err
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close image: %w", err)
	}

	return &BackupInfo{Name: name, Size: size, CRC32: crc}, nil
}
