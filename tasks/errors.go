package tasks

import "fmt"

// IntegrityError means the three stored/recomputed image checksums disagree.
// The chip has not been touched.
type IntegrityError struct {
	Header   uint32
	Trailer  uint32
	Computed uint32
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("image checksum mismatch (header=0x%08x trailer=0x%08x recomputed=0x%08x)",
		e.Header, e.Trailer, e.Computed)
}

// VerifyError means the chip contents after programming do not match the
// image. The chip has already been rewritten; there is no rollback.
type VerifyError struct {
	Expected uint32
	Live     uint32
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("flash does not match image after restore (image=0x%08x flash=0x%08x)",
		e.Expected, e.Live)
}
