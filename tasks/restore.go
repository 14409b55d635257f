package tasks

import (
	"fmt"
	"io"

	"github.com/flashimg/fimg/image"
	"github.com/flashimg/fimg/spiflash"
	"github.com/flashimg/fimg/storage"
)

type RestoreInfo struct {
	Name  string
	Size  uint32
	CRC32 uint32
}

// Restore reprograms the chip from the named image, or from the newest image
// on the volume when name is empty.
//
// The image is fully validated before the first erase command: the header
// checksum, the trailer checksum and a recomputed payload checksum must all
// agree. A corrupted or truncated image therefore never reaches the chip.
// Once erasing has begun there is no rollback; an abort leaves the chip
// partially erased or programmed.
func (r *Runner) Restore(name string) (*RestoreInfo, error) {
	if err := r.vol.Mount(); err != nil {
		return nil, err
	}

	if name == "" {
		latest, err := r.vol.Latest(ImageExt)
		if err != nil {
			return nil, err
		}
		name = latest
	}

	f, err := r.vol.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdr, err := image.ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if err := r.validatePayload(f, hdr); err != nil {
		return nil, err
	}

	if err := r.eraseRange(hdr.FlashSize); err != nil {
		return nil, err
	}

	if err := r.program(f, hdr); err != nil {
		return nil, err
	}

	if err := r.verifyChip(hdr); err != nil {
		return nil, err
	}

	return &RestoreInfo{Name: name, Size: hdr.ImageSize, CRC32: hdr.CRC32}, nil
}

// validatePayload streams the payload once, recomputing its checksum, and
// requires header, trailer and recomputed values to agree.
func (r *Runner) validatePayload(f storage.File, hdr image.Header) error {
	sum := image.NewChecksum()
	buf := make([]byte, hdr.ChunkSize)

	for done := uint32(0); done < hdr.ImageSize; {
		n := min(hdr.ImageSize-done, hdr.ChunkSize)
		if _, err := io.ReadFull(f, buf[:n]); err != nil {
			return fmt.Errorf("image read @0x%06x: %w", image.HeaderSize+done, err)
		}
		sum.Update(buf[:n])
		done += n
		r.report(StageValidate, int64(done), int64(hdr.ImageSize))
	}

	trailer, err := image.ReadTrailer(f)
	if err != nil {
		return err
	}

	computed := sum.Final()
	if computed != trailer || computed != hdr.CRC32 {
		return &IntegrityError{Header: hdr.CRC32, Trailer: trailer, Computed: computed}
	}
	return nil
}

func (r *Runner) eraseRange(size uint32) error {
	for addr := uint32(0); addr < size; addr += spiflash.SectorSize {
		if err := r.flash.EraseSector(addr); err != nil {
			return fmt.Errorf("erase @0x%06x: %w", addr, err)
		}
		r.report(StageErase, int64(addr)+spiflash.SectorSize, int64(size))
	}
	return nil
}

// program seeks back to the payload and writes it out, splitting every chunk
// at 256-byte page boundaries so no single program command crosses one.
func (r *Runner) program(f storage.File, hdr image.Header) error {
	if _, err := f.Seek(image.HeaderSize, io.SeekStart); err != nil {
		return fmt.Errorf("seek to payload: %w", err)
	}

	buf := make([]byte, hdr.ChunkSize)
	addr := uint32(0)

	for addr < hdr.ImageSize {
		n := min(hdr.ImageSize-addr, hdr.ChunkSize)
		if _, err := io.ReadFull(f, buf[:n]); err != nil {
			return fmt.Errorf("image read @0x%06x: %w", image.HeaderSize+addr, err)
		}

		for off := uint32(0); off < n; {
			w := min(n-off, spiflash.PageRoom(addr+off))
			if err := r.flash.ProgramPage(addr+off, buf[off:off+w]); err != nil {
				return fmt.Errorf("program @0x%06x: %w", addr+off, err)
			}
			off += w
		}

		addr += n
		r.report(StageProgram, int64(addr), int64(hdr.ImageSize))
	}
	return nil
}

// verifyChip re-reads the programmed range and compares its checksum with the
// image header's. By this point the chip has already been rewritten.
func (r *Runner) verifyChip(hdr image.Header) error {
	sum := image.NewChecksum()
	buf := make([]byte, hdr.ChunkSize)

	for addr := uint32(0); addr < hdr.ImageSize; {
		n := min(hdr.ImageSize-addr, hdr.ChunkSize)
		if err := r.flash.Read(addr, buf[:n]); err != nil {
			return fmt.Errorf("flash read @0x%06x: %w", addr, err)
		}
		sum.Update(buf[:n])
		addr += n
		r.report(StageVerify, int64(addr), int64(hdr.ImageSize))
	}

	if live := sum.Final(); live != hdr.CRC32 {
		return &VerifyError{Expected: hdr.CRC32, Live: live}
	}
	return nil
}
