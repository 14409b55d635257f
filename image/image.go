// Package image implements the FIMGv1 backup container: a fixed little-endian
// header, the raw chip payload, and a duplicate CRC-32 trailer. The codec only
// checks structure (magic, nonzero sizes); checksum agreement is verified by
// the pipelines because it requires streaming the whole payload.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// File layout, all integers little-endian:
//
//	offset  size  field
//	0       8     magic "FIMGv1\0\0"
//	8       3     JEDEC id (manufacturer, memory type, capacity code)
//	11      1     reserved
//	12      4     flash size
//	16      4     chunk size
//	20      4     image size
//	24      4     payload CRC-32 (0 while a backup is in progress)
//	28      ...   payload (image size bytes)
//	28+n    4     trailer CRC-32, duplicate of the header field
const (
	HeaderSize  = 28
	TrailerSize = 4
)

var magic = [8]byte{'F', 'I', 'M', 'G', 'v', '1', 0, 0}

var (
	ErrorInvalidHeader = errors.New("image header is not valid")
	ErrorInvalidSize   = errors.New("image header contains a zero size field")
)

type Header struct {
	JEDEC     [3]byte
	FlashSize uint32
	ChunkSize uint32
	ImageSize uint32
	CRC32     uint32
}

func (h Header) marshal() [HeaderSize]byte {
	var buf [HeaderSize]byte
	copy(buf[0:], magic[:])
	copy(buf[8:], h.JEDEC[:])
	binary.LittleEndian.PutUint32(buf[12:], h.FlashSize)
	binary.LittleEndian.PutUint32(buf[16:], h.ChunkSize)
	binary.LittleEndian.PutUint32(buf[20:], h.ImageSize)
	binary.LittleEndian.PutUint32(buf[24:], h.CRC32)
	return buf
}

func unmarshalHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, ErrorInvalidHeader
	}
	for i := range magic {
		if buf[i] != magic[i] {
			return h, ErrorInvalidHeader
		}
	}
	copy(h.JEDEC[:], buf[8:11])
	h.FlashSize = binary.LittleEndian.Uint32(buf[12:])
	h.ChunkSize = binary.LittleEndian.Uint32(buf[16:])
	h.ImageSize = binary.LittleEndian.Uint32(buf[20:])
	h.CRC32 = binary.LittleEndian.Uint32(buf[24:])

	if h.ImageSize == 0 || h.ChunkSize == 0 {
		return h, ErrorInvalidSize
	}
	return h, nil
}

func WriteHeader(w io.Writer, h Header) error {
	buf := h.marshal()
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	return unmarshalHeader(buf[:])
}

// RewriteHeader backfills the header in place once a backup has completed and
// the real payload checksum is known. The stream position afterwards is
// unspecified.
func RewriteHeader(ws io.WriteSeeker, h Header) error {
	if _, err := ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek to header: %w", err)
	}
	return WriteHeader(ws, h)
}

func WriteTrailer(w io.Writer, crc32 uint32) error {
	var buf [TrailerSize]byte
	binary.LittleEndian.PutUint32(buf[:], crc32)
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("write trailer: %w", err)
	}
	return nil
}

func ReadTrailer(r io.Reader) (uint32, error) {
	var buf [TrailerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("read trailer: %w", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
