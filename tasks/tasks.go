// Package tasks orchestrates the flash driver, the checksum stream and the
// image codec into full-chip backup and restore pipelines.
package tasks

import (
	"time"

	"github.com/flashimg/fimg/spiflash"
	"github.com/flashimg/fimg/storage"
)

const (
	// ChunkSize is the streaming granularity of both pipelines. Independent of
	// the chip's page and sector sizes.
	ChunkSize = 4096

	// ImageExt is the backup file extension.
	ImageExt = ".fimg"

	// FallbackCapacity is assumed when the JEDEC capacity code is outside the
	// table range.
	FallbackCapacity = 16 << 20
)

// Flash is the device surface the pipelines need.
type Flash interface {
	JEDEC() spiflash.JEDECID
	Read(addr uint32, buf []byte) error
	ProgramPage(addr uint32, data []byte) error
	EraseSector(addr uint32) error
}

// Stage identifies a pipeline phase in progress reports.
type Stage int

const (
	StageBackup Stage = iota
	StageValidate
	StageErase
	StageProgram
	StageVerify
)

func (s Stage) String() string {
	switch s {
	case StageBackup:
		return "backup"
	case StageValidate:
		return "validate"
	case StageErase:
		return "erase"
	case StageProgram:
		return "program"
	case StageVerify:
		return "verify"
	}
	return "unknown"
}

// ProgressFunc receives byte counts as a pipeline stage advances. done and
// total are in bytes of the current stage.
type ProgressFunc func(stage Stage, done, total int64)

type Runner struct {
	flash    Flash
	vol      storage.Volume
	chunk    uint32
	progress ProgressFunc
	now      func() time.Time
}

type Option func(*Runner)

// WithChunkSize overrides the streaming chunk size.
func WithChunkSize(n uint32) Option {
	return func(r *Runner) {
		if n > 0 {
			r.chunk = n
		}
	}
}

// WithProgress installs a progress observer.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) { r.progress = fn }
}

// WithClock overrides the timestamp source used in backup names.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func New(flash Flash, vol storage.Volume, opts ...Option) *Runner {
	r := &Runner{
		flash: flash,
		vol:   vol,
		chunk: ChunkSize,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) report(stage Stage, done, total int64) {
	if r.progress != nil {
		r.progress(stage, done, total)
	}
}

// List returns the backup images on the volume.
func (r *Runner) List() ([]string, error) {
	if err := r.vol.Mount(); err != nil {
		return nil, err
	}
	return r.vol.List(ImageExt)
}
