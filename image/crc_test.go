package image

import (
	"crypto/rand"
	"testing"
)

func TestChecksumVectors(t *testing.T) {
	if got := ChecksumOf(nil); got != 0 {
		t.Errorf("checksum of empty input: %08x != 0", got)
	}

	if got := ChecksumOf([]byte("123456789")); got != 0xCBF43926 {
		t.Errorf("checksum of check string: %08x != cbf43926", got)
	}
}

func TestChecksumChunkingInvariance(t *testing.T) {
	buf := make([]byte, 8192)
	rand.Read(buf)

	want := ChecksumOf(buf)

	for _, chunk := range []int{1, 3, 7, 256, 4095, 4096, len(buf)} {
		c := NewChecksum()
		for off := 0; off < len(buf); off += chunk {
			end := off + chunk
			if end > len(buf) {
				end = len(buf)
			}
			c.Update(buf[off:end])
		}
		if got := c.Final(); got != want {
			t.Errorf("chunk size %d: %08x != %08x", chunk, got, want)
		}
	}
}

func TestChecksumRestartable(t *testing.T) {
	a := NewChecksum()
	a.Update([]byte("hello"))

	b := NewChecksum()
	b.Update([]byte("hello"))

	if a.Final() != b.Final() {
		t.Error("two streams over the same input disagree")
	}
}
