// Package debounce coalesces bursts of keyed values, keeping only the latest.
package debounce

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Debouncer delays values per key until the key has been quiet for the
// window, then fires the latest value. Each key has its own timer, so keys
// never delay one another.
//
// With a group function, keys of one group are released in the order of
// their latest Submit: firing a key first fires every earlier pending key of
// its group.
type Debouncer[K comparable, V any] struct {
	mu           sync.Mutex
	window       time.Duration
	fire         func(K, V)
	pending      map[K]*entry[K, V]
	maxPending   int
	groupOf      func(K, V) string
	onSuperseded func(K)
	stopped      bool
	seq          uint64
	fired        atomic.Int64

	// emitMu serializes taking entries and firing them when keys are grouped.
	emitMu sync.Mutex
}

type entry[K comparable, V any] struct {
	key   K
	value V
	group string
	seq   uint64
	timer *time.Timer
	gen   uint64
}

// New creates a debouncer calling fire after window of quiet per key.
// A non-positive window fires synchronously on every Submit.
func New[K comparable, V any](window time.Duration, fire func(K, V), opts ...Option[K, V]) *Debouncer[K, V] {
	d := &Debouncer[K, V]{
		window:  window,
		fire:    fire,
		pending: make(map[K]*entry[K, V]),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Debouncer[K, V]) group(key K, v V) string {
	if d.groupOf == nil {
		return ""
	}
	return d.groupOf(key, v)
}

// Submit schedules v for key, replacing any pending value. It reports whether
// a pending value was superseded.
func (d *Debouncer[K, V]) Submit(key K, v V) bool {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return false
	}
	e, ok := d.pending[key]
	if d.window <= 0 || (!ok && d.maxPending > 0 && len(d.pending) >= d.maxPending) {
		d.mu.Unlock()
		d.fireNow(key, v)
		return false
	}
	if !ok {
		e = &entry[K, V]{key: key}
		d.pending[key] = e
	} else {
		e.timer.Stop()
	}
	d.seq++
	e.value = v
	e.group = d.group(key, v)
	e.seq = d.seq
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(d.window, func() { d.expire(key, gen) })
	d.mu.Unlock()

	if ok && d.onSuperseded != nil {
		d.onSuperseded(key)
	}
	return ok
}

// fireNow fires v for key without waiting, after the pending keys of its
// group.
func (d *Debouncer[K, V]) fireNow(key K, v V) {
	defer d.lockEmit()()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.seq++
	var batch []*entry[K, V]
	if d.groupOf != nil {
		batch = d.takeLocked(d.group(key, v), d.seq)
	}
	d.mu.Unlock()

	for _, e := range batch {
		d.emit(e.key, e.value)
	}
	d.emit(key, v)
}

// expire fires key if no newer submit or cancel happened since gen was issued.
func (d *Debouncer[K, V]) expire(key K, gen uint64) {
	d.release(key, func(e *entry[K, V]) bool { return e.gen == gen })
}

// release fires key's pending entry, preceded by the earlier entries of its
// group, when match accepts it.
func (d *Debouncer[K, V]) release(key K, match func(*entry[K, V]) bool) bool {
	defer d.lockEmit()()

	d.mu.Lock()
	e, ok := d.pending[key]
	if !ok || d.stopped || !match(e) {
		d.mu.Unlock()
		return false
	}
	var batch []*entry[K, V]
	if d.groupOf != nil {
		batch = d.takeLocked(e.group, e.seq)
	} else {
		e.timer.Stop()
		delete(d.pending, key)
		batch = []*entry[K, V]{e}
	}
	d.mu.Unlock()

	for _, b := range batch {
		d.emit(b.key, b.value)
	}
	return true
}

// takeLocked removes the entries of group submitted at or before seq and
// returns them oldest first.
func (d *Debouncer[K, V]) takeLocked(group string, seq uint64) []*entry[K, V] {
	var batch []*entry[K, V]
	for k, e := range d.pending {
		if e.group != group || e.seq > seq {
			continue
		}
		e.timer.Stop()
		delete(d.pending, k)
		batch = append(batch, e)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].seq < batch[j].seq })
	return batch
}

// lockEmit takes emitMu for grouped debouncers and returns its release.
// Ungrouped keys fire concurrently.
func (d *Debouncer[K, V]) lockEmit() func() {
	if d.groupOf == nil {
		return func() {}
	}
	d.emitMu.Lock()
	return d.emitMu.Unlock
}

func (d *Debouncer[K, V]) emit(key K, v V) {
	d.fired.Add(1)
	d.fire(key, v)
}

// Flush fires key's pending value now, after the earlier pending values of
// its group. It reports whether anything was pending.
func (d *Debouncer[K, V]) Flush(key K) bool {
	return d.release(key, func(*entry[K, V]) bool { return true })
}

// Cancel drops key's pending value without firing. It reports whether
// anything was pending.
func (d *Debouncer[K, V]) Cancel(key K) bool {
	d.mu.Lock()
	e, ok := d.pending[key]
	if ok {
		e.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if ok && d.onSuperseded != nil {
		d.onSuperseded(key)
	}
	return ok
}

// CancelGroup drops every pending value of group without firing and returns
// how many were dropped. A release of the group already in progress finishes
// before CancelGroup returns.
func (d *Debouncer[K, V]) CancelGroup(group string) int {
	unlock := d.lockEmit()
	d.mu.Lock()
	var dropped []K
	for k, e := range d.pending {
		if e.group != group {
			continue
		}
		e.timer.Stop()
		delete(d.pending, k)
		dropped = append(dropped, k)
	}
	d.mu.Unlock()
	unlock()

	if d.onSuperseded != nil {
		for _, k := range dropped {
			d.onSuperseded(k)
		}
	}
	return len(dropped)
}

// Stop cancels every pending value. Later submits are ignored.
func (d *Debouncer[K, V]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for k, e := range d.pending {
		e.timer.Stop()
		delete(d.pending, k)
	}
}

// Pending returns the number of keys waiting to fire.
func (d *Debouncer[K, V]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// PendingGroup returns the number of keys of group waiting to fire.
func (d *Debouncer[K, V]) PendingGroup(group string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.pending {
		if e.group == group {
			n++
		}
	}
	return n
}

// Fired returns how many values have been delivered.
func (d *Debouncer[K, V]) Fired() int64 {
	return d.fired.Load()
}
