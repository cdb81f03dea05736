// Package intern implements the VM's string intern pool.
//
// Contract: Intern(bytes) returns a handle equal by identity to any
// prior interned equal byte sequence. Backing storage is a
// separate-chaining hash table (FNV-1a) with load factor capped at
// 0.75, growing by doubling. Entries are GC-tracked: each carries a
// mark bit that the collector clears at the start of a cycle, sets
// during marking (through Traceable.SetMarked, same as any other heap
// value), and consults during sweep.
//
// The pool, not the caller, owns entry storage — consumers only ever
// hold a non-owning *Entry handle. State is threaded through
// explicitly: there is no process-wide pool, every VM constructs its
// own.
package intern

import (
	"hash/fnv"

	"github.com/kristofer/smogvm/pkg/value"
)

// Entry is a single interned string. Two byte-equal strings interned
// in the same Pool are always represented by the same *Entry.
type Entry struct {
	bytes  []byte
	hash   uint64
	marked bool
}

// Bytes returns the entry's immutable byte content.
func (e *Entry) Bytes() []byte { return e.bytes }

// String returns the entry's content as a Go string.
func (e *Entry) String() string { return string(e.bytes) }

// Kind/Truthy/GoString let *Entry satisfy value.Value.
func (e *Entry) Kind() value.Kind { return value.KindString }
func (e *Entry) Truthy() bool     { return true }
func (e *Entry) GoString() string { return string(e.bytes) }

// Marked reports the entry's current GC mark bit.
func (e *Entry) Marked() bool { return e.marked }

// SetMarked sets the entry's GC mark bit. Only the GC calls this.
func (e *Entry) SetMarked(m bool) { e.marked = m }

// Children is always empty: strings hold no outgoing references. This
// satisfies gc.Traceable so the mark phase can treat a string constant
// like any other heap value instead of special-casing it.
func (e *Entry) Children() []interface{} { return nil }

const maxLoadFactor = 0.75

// Pool is a VM-scoped string intern table.
type Pool struct {
	buckets []*bucket
	count   int
}

type bucket struct {
	entries []*Entry
}

// New creates an empty pool with a small initial table.
func New() *Pool {
	return &Pool{buckets: make([]*bucket, 16)}
}

func fnv1a(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

// Intern returns the canonical *Entry for the given bytes, allocating
// a new one only if no equal sequence has been interned yet.
func (p *Pool) Intern(b []byte) *Entry {
	h := fnv1a(b)
	idx := h % uint64(len(p.buckets))
	bk := p.buckets[idx]
	if bk == nil {
		bk = &bucket{}
		p.buckets[idx] = bk
	}
	for _, e := range bk.entries {
		if e.hash == h && string(e.bytes) == string(b) {
			return e
		}
	}

	owned := make([]byte, len(b))
	copy(owned, b)
	e := &Entry{bytes: owned, hash: h}
	bk.entries = append(bk.entries, e)
	p.count++

	if float64(p.count)/float64(len(p.buckets)) > maxLoadFactor {
		p.grow()
	}
	return e
}

// InternString is a convenience wrapper around Intern for Go strings.
func (p *Pool) InternString(s string) *Entry {
	return p.Intern([]byte(s))
}

func (p *Pool) grow() {
	old := p.buckets
	p.buckets = make([]*bucket, len(old)*2)
	for _, bk := range old {
		if bk == nil {
			continue
		}
		for _, e := range bk.entries {
			idx := e.hash % uint64(len(p.buckets))
			nb := p.buckets[idx]
			if nb == nil {
				nb = &bucket{}
				p.buckets[idx] = nb
			}
			nb.entries = append(nb.entries, e)
		}
	}
}

// MarkSweepBegin clears every entry's mark bit, preparing for a new GC
// mark phase.
func (p *Pool) MarkSweepBegin() {
	for _, bk := range p.buckets {
		if bk == nil {
			continue
		}
		for _, e := range bk.entries {
			e.marked = false
		}
	}
}

// Sweep removes every entry whose mark bit is still clear, returning
// the count of entries freed and the count still live.
func (p *Pool) Sweep() (freed, live int) {
	for _, bk := range p.buckets {
		if bk == nil {
			continue
		}
		kept := bk.entries[:0]
		for _, e := range bk.entries {
			if e.marked {
				kept = append(kept, e)
				live++
			} else {
				freed++
				p.count--
			}
		}
		bk.entries = kept
	}
	return freed, live
}

// Len returns the number of live interned strings.
func (p *Pool) Len() int { return p.count }
