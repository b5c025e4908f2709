package mpsgemm

import (
	"sync"
	"sync/atomic"

	"github.com/mixprec/mpsgemm/stream"
)

// measurement holds one armed call's counts. The stream task that
// services the measurement is its only writer; readers may look at the
// fields only after waiting on the slot's event, whose completion
// happens-after the task.
type measurement struct {
	lost      uint64
	total     uint64
	completed bool
	err       error
}

// Ratio returns lost/total. A zero total reports no loss.
func (m *measurement) ratio() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.lost) / float64(m.total)
}

// statsSlot is one ring entry. A new claim of the same index overwrites
// the prior occupant; lookups therefore verify the stored id.
type statsSlot struct {
	mu    sync.Mutex
	valid bool
	id    uint64
	m     *measurement
	event *stream.Event
}

// statsRing is the fixed-capacity rotating store of measurement results.
// Buffer ids are monotonic and never reused; slot index is id modulo
// capacity.
type statsRing struct {
	slots  []statsSlot
	nextID atomic.Uint64
	lastID atomic.Uint64
}

func newStatsRing(capacity int) *statsRing {
	if capacity < 1 {
		capacity = 1
	}
	return &statsRing{slots: make([]statsSlot, capacity)}
}

// publish claims the next buffer id for a measurement whose work has
// already been enqueued, overwriting whatever previously occupied the
// target slot.
func (r *statsRing) publish(m *measurement, ev *stream.Event) uint64 {
	id := r.nextID.Add(1)
	slot := &r.slots[id%uint64(len(r.slots))]
	slot.mu.Lock()
	slot.valid = true
	slot.id = id
	slot.m = m
	slot.event = ev
	slot.mu.Unlock()
	r.lastID.Store(id)
	return id
}

// lookup resolves an id to its measurement and completion event. Ids
// never assigned, invalidated by reset, or overwritten by wrap-around
// fail the lookup.
func (r *statsRing) lookup(id uint64) (*measurement, *stream.Event, bool) {
	if id == 0 {
		return nil, nil, false
	}
	slot := &r.slots[id%uint64(len(r.slots))]
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if !slot.valid || slot.id != id {
		return nil, nil, false
	}
	return slot.m, slot.event, true
}

// current returns the most recently assigned buffer id, zero if none.
func (r *statsRing) current() uint64 {
	return r.lastID.Load()
}

// reset invalidates every slot and restarts the id sequence.
func (r *statsRing) reset() {
	for i := range r.slots {
		slot := &r.slots[i]
		slot.mu.Lock()
		slot.valid = false
		slot.m = nil
		slot.event = nil
		slot.mu.Unlock()
	}
	r.nextID.Store(0)
	r.lastID.Store(0)
}
