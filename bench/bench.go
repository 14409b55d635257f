// Package bench measures wall-clock durations of driver operations. The
// averages feed the chip-identification heuristic.
package bench

import (
	"time"
)

// Flash is the driver surface exercised by the trials.
type Flash interface {
	Read(addr uint32, buf []byte) error
	ProgramPage(addr uint32, data []byte) error
	EraseSector(addr uint32) error
}

// Trial counts, matching the original tool.
const (
	EraseTrials   = 30
	ProgramTrials = 30
	ReadTrials    = 100
)

const targetAddr = 0

type Result struct {
	Trials int
	Min    time.Duration
	Max    time.Duration
	Avg    time.Duration
}

type Report struct {
	Erase   Result
	Program Result
	Read    Result
}

func trials(n int, op func() error) (Result, error) {
	r := Result{Trials: n}
	var total time.Duration

	for i := 0; i < n; i++ {
		start := time.Now()
		err := op()
		elapsed := time.Since(start)
		if err != nil {
			return r, err
		}

		total += elapsed
		if i == 0 || elapsed < r.Min {
			r.Min = elapsed
		}
		if elapsed > r.Max {
			r.Max = elapsed
		}
	}

	r.Avg = total / time.Duration(n)
	return r, nil
}

// Run times erase, program and read against sector 0. Destructive: the sector
// is erased and overwritten with a counting pattern.
func Run(flash Flash) (*Report, error) {
	page := make([]byte, 256)
	for i := range page {
		page[i] = byte(i)
	}

	var rep Report
	var err error

	rep.Erase, err = trials(EraseTrials, func() error {
		return flash.EraseSector(targetAddr)
	})
	if err != nil {
		return nil, err
	}

	rep.Program, err = trials(ProgramTrials, func() error {
		return flash.ProgramPage(targetAddr, page)
	})
	if err != nil {
		return nil, err
	}

	rep.Read, err = trials(ReadTrials, func() error {
		return flash.Read(targetAddr, page)
	})
	if err != nil {
		return nil, err
	}

	return &rep, nil
}
