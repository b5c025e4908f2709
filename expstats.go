package mpsgemm

import (
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mixprec/mpsgemm/cublas"
	"github.com/mixprec/mpsgemm/stream"
)

// EnableExpStats arms the statistics engine: subsequent hijacked calls
// consume a buffer id and are measured.
func (r *Runtime) EnableExpStats() {
	r.statsEnabled.Store(true)
}

// DisableExpStats disarms the engine: subsequent calls skip measurement
// and do not advance the buffer id sequence. Previously recorded slots
// remain queryable until overwritten by ring wrap-around.
func (r *Runtime) DisableExpStats() {
	r.statsEnabled.Store(false)
}

// IsExpStatsEnabled reports whether the engine is armed.
func (r *Runtime) IsExpStatsEnabled() bool {
	return r.statsEnabled.Load()
}

// GetCurrentBufferID returns the most recently assigned buffer id,
// regardless of whether its stream work has completed. Zero means no id
// has been assigned.
func (r *Runtime) GetCurrentBufferID() uint64 {
	return r.ring.current()
}

// ResetBufferID invalidates all recorded slots and restarts the id
// sequence from the beginning. Outstanding ids become invalid. Not
// intended to run concurrently with armed calls.
func (r *Runtime) ResetBufferID() {
	r.ring.reset()
}

// GetLostRatio returns lost/total for the given buffer id. It fails with
// an InvalidBufferId error if the id was never assigned or its slot has
// been overwritten by wrap-around, and blocks only long enough for the
// owning stream's queued work to finish if queried before completion. A
// measurement whose owning call failed reports a Device error.
func (r *Runtime) GetLostRatio(id uint64) (float64, error) {
	m, err := r.waitMeasurement("GetLostRatio", id)
	if err != nil {
		return 0, err
	}
	return m.ratio(), nil
}

// GetExpStats returns the raw (lost, total) counts for a buffer id,
// under the same completion and validity rules as GetLostRatio.
func (r *Runtime) GetExpStats(id uint64) (lost, total uint64, err error) {
	m, err := r.waitMeasurement("GetExpStats", id)
	if err != nil {
		return 0, 0, err
	}
	return m.lost, m.total, nil
}

func (r *Runtime) waitMeasurement(op string, id uint64) (*measurement, error) {
	m, ev, ok := r.ring.lookup(id)
	if !ok {
		return nil, NewInvalidBufferError(op,
			fmt.Sprintf("buffer id %d was never assigned or has been overwritten", id))
	}
	ev.Wait()
	if !m.completed {
		if m.err != nil {
			return nil, NewDeviceError(op, "measured call failed", m.err)
		}
		return nil, NewDeviceError(op, "measurement did not complete", nil)
	}
	return m, nil
}

// ExpStats measures a single rows x cols matrix with leading dimension
// ld on the given stream, claiming a buffer id exactly as a hijacked
// call would. The engine must be armed. A nil stream uses the default
// stream.
func (r *Runtime) ExpStats(s *stream.Stream, rows, cols int, a []float32, ld int) (uint64, error) {
	if !r.statsEnabled.Load() {
		return 0, ErrStatsDisabled
	}
	if rows < 0 || cols < 0 {
		return 0, NewInvalidArgError("ExpStats", fmt.Sprintf("negative shape %dx%d", rows, cols))
	}
	if ld < 1 || ld < cols {
		return 0, NewInvalidArgError("ExpStats", fmt.Sprintf("ld=%d too small for %d columns", ld, cols))
	}
	if rows > 0 && len(a) < (rows-1)*ld+cols {
		return 0, NewInvalidArgError("ExpStats", fmt.Sprintf("operand shorter than %dx%d with ld=%d", rows, cols, ld))
	}
	if s == nil {
		s = stream.Default()
	}
	rng := r.params.Load().ranges[r.GetComputeMode()]
	m := &measurement{}
	s.Submit(func() {
		measureOperand(m, a, rows, cols, ld, rng)
		m.completed = m.err == nil
	})
	return r.ring.publish(m, s.Record()), nil
}

// measureCall enqueues classification of both input operands on the
// same stream as the multiply it instruments, then claims the next ring
// slot. Must only be called while the engine is armed.
func (r *Runtime) measureCall(call *Call) uint64 {
	aRows, aCols := call.M, call.K
	if call.TransA == cublas.Trans {
		aRows, aCols = call.K, call.M
	}
	bRows, bCols := call.K, call.N
	if call.TransB == cublas.Trans {
		bRows, bCols = call.N, call.K
	}
	rng := r.params.Load().ranges[call.Mode]
	m := &measurement{}
	a, b := call.A, call.B
	lda, ldb := call.Lda, call.Ldb
	call.Stream.Submit(func() {
		measureOperand(m, a, aRows, aCols, lda, rng)
		if m.err == nil {
			measureOperand(m, b, bRows, bCols, ldb, rng)
		}
		m.completed = m.err == nil
	})
	return r.ring.publish(m, call.Stream.Record())
}

// measureOperand classifies one operand's elements and accumulates the
// counts. Runs inside a stream task; large operands are split across
// worker goroutines.
func measureOperand(m *measurement, a []float32, rows, cols, ld int, rng expRange) {
	defer func() {
		if p := recover(); p != nil {
			m.err = fmt.Errorf("exponent classification: %v", p)
		}
	}()
	if rows == 0 || cols == 0 {
		return
	}

	if rows*cols < classifyParallelThreshold {
		lost, total := classifyExponents(a, 0, rows, cols, ld, rng)
		m.lost += lost
		m.total += total
		return
	}

	workers := runtime.NumCPU()
	if workers > classifyMaxWorkers {
		workers = classifyMaxWorkers
	}
	if workers > rows {
		workers = rows
	}
	rowsPerWorker := (rows + workers - 1) / workers

	var lost, total atomic.Uint64
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		lo := w * rowsPerWorker
		hi := lo + rowsPerWorker
		if hi > rows {
			hi = rows
		}
		g.Go(func() error {
			l, t := classifyExponents(a, lo, hi, cols, ld, rng)
			lost.Add(l)
			total.Add(t)
			return nil
		})
	}
	g.Wait()
	m.lost += lost.Load()
	m.total += total.Load()
}

// classifyExponents counts, over rows [rowLo, rowHi), the elements whose
// unbiased float32 exponent falls outside the safe range. Zeros count
// toward the total only; subnormals, infinities and NaNs classify by
// their exponent field and always land outside a format-derived range.
func classifyExponents(a []float32, rowLo, rowHi, cols, ld int, rng expRange) (lost, total uint64) {
	for i := rowLo; i < rowHi; i++ {
		row := a[i*ld : i*ld+cols]
		for _, v := range row {
			bits := math.Float32bits(v)
			total++
			if bits&0x7FFFFFFF == 0 {
				continue
			}
			e := int32(bits>>23&0xFF) - 127
			if e < rng.lo || e > rng.hi {
				lost++
			}
		}
	}
	return lost, total
}
