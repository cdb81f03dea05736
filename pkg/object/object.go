// Package object implements the property-bag object model: prototype
// chains, dense/sparse arrays, and (in struct.go) value-semantics
// structs.
package object

import (
	"strconv"

	"github.com/kristofer/smogvm/pkg/value"
)

// Lookup is the three-way result of a prototype-chain Get: a value was
// found, the key is absent everywhere on the chain, or the chain was
// too deep to safely traverse (a cyclic prototype graph is tolerated,
// bounded rather than followed forever).
type Lookup byte

const (
	Found Lookup = iota
	NotFound
	ChainTooDeep
)

// Object is a property bag: a prototype reference, an is-array flag,
// and either a hash-backed property set or (when IsArray and the
// access pattern stays dense) a contiguous element buffer.
//
// Per the Open Question in SPEC_FULL.md, this implementation picks the
// open-addressed (map-backed) representation over an ordered linked
// list; insertion order is preserved separately via `order` so
// iteration/printing stays deterministic.
type Object struct {
	props map[string]value.Value
	order []string

	Prototype *Object
	IsArray   bool

	dense  []value.Value
	sparse bool
	length int

	marked bool
}

// New creates a plain object with the given prototype (nil allowed).
func New(proto *Object) *Object {
	return &Object{props: make(map[string]value.Value), Prototype: proto}
}

// NewArray creates an empty dense array with the given prototype.
func NewArray(proto *Object) *Object {
	return &Object{props: make(map[string]value.Value), Prototype: proto, IsArray: true}
}

func (o *Object) Kind() value.Kind { return value.KindObject }
func (o *Object) Truthy() bool     { return true }
func (o *Object) GoString() string {
	if o.IsArray {
		return "[Array]"
	}
	return "[Object]"
}

// Get performs a prototype-chain property lookup, own properties first
// then each prototype in turn, up to hopLimit hops.
func (o *Object) Get(key string, hopLimit int) (value.Value, Lookup) {
	cur := o
	hops := 0
	for cur != nil {
		if cur.IsArray {
			if key == "length" {
				return value.Integer(cur.length), Found
			}
			if idx, ok := arrayIndex(key); ok {
				if v, ok := cur.at(idx); ok {
					return v, Found
				}
			}
		}
		if v, ok := cur.props[key]; ok {
			return v, Found
		}
		cur = cur.Prototype
		hops++
		if hops > hopLimit {
			return nil, ChainTooDeep
		}
	}
	return nil, NotFound
}

// Set always writes to the receiver, never a prototype.
func (o *Object) Set(key string, v value.Value) {
	if o.IsArray {
		if idx, ok := arrayIndex(key); ok {
			o.SetIndex(idx, v)
			return
		}
	}
	if o.props == nil {
		o.props = make(map[string]value.Value)
	}
	if _, exists := o.props[key]; !exists {
		o.order = append(o.order, key)
	}
	o.props[key] = v
}

// Keys returns own property names in insertion order. A dense array's
// elements are not listed (use Length/At for those); once an array has
// switched to the sparse representation its element indices are
// listed as decimal strings, and an index removed by Pop stays listed.
func (o *Object) Keys() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// Length returns the array length (largest integer index + 1). Zero
// for non-arrays.
func (o *Object) Length() int { return o.length }

func arrayIndex(key string) (int, bool) {
	n, err := strconv.Atoi(key)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (o *Object) at(idx int) (value.Value, bool) {
	if idx < 0 {
		return nil, false
	}
	if !o.sparse {
		if idx < len(o.dense) {
			return o.dense[idx], true
		}
		return nil, false
	}
	v, ok := o.props[strconv.Itoa(idx)]
	return v, ok
}

// At returns the array element at idx, or false if absent.
func (o *Object) At(idx int) (value.Value, bool) { return o.at(idx) }

// SetIndex writes an array element at idx, growing the array and
// switching to the sparse (hash-backed) representation if idx would
// leave a gap in the dense buffer.
func (o *Object) SetIndex(idx int, v value.Value) {
	if idx < 0 {
		return
	}
	if !o.sparse {
		switch {
		case idx < len(o.dense):
			o.dense[idx] = v
			return
		case idx == len(o.dense):
			o.dense = append(o.dense, v)
			o.length = len(o.dense)
			return
		default:
			o.migrateToSparse()
		}
	}
	key := strconv.Itoa(idx)
	if _, exists := o.props[key]; !exists {
		o.order = append(o.order, key)
	}
	o.props[key] = v
	if idx+1 > o.length {
		o.length = idx + 1
	}
}

func (o *Object) migrateToSparse() {
	if o.props == nil {
		o.props = make(map[string]value.Value)
	}
	for i, v := range o.dense {
		key := strconv.Itoa(i)
		o.props[key] = v
		o.order = append(o.order, key)
	}
	o.dense = nil
	o.sparse = true
}

// Push appends to a dense array in O(1) amortized time, or falls back
// to the sparse path once the array has migrated.
func (o *Object) Push(v value.Value) {
	if !o.sparse {
		o.dense = append(o.dense, v)
		o.length = len(o.dense)
		return
	}
	o.SetIndex(o.length, v)
}

// Pop removes and returns the last array element.
func (o *Object) Pop() (value.Value, bool) {
	if o.length == 0 {
		return nil, false
	}
	if !o.sparse {
		v := o.dense[len(o.dense)-1]
		o.dense = o.dense[:len(o.dense)-1]
		o.length--
		return v, true
	}
	key := strconv.Itoa(o.length - 1)
	v, ok := o.props[key]
	if ok {
		delete(o.props, key)
	}
	o.length--
	return v, ok
}

// Elements returns a snapshot slice of array contents in order, for
// iteration primitives (map, filter, reduce).
func (o *Object) Elements() []value.Value {
	if !o.sparse {
		out := make([]value.Value, len(o.dense))
		copy(out, o.dense)
		return out
	}
	out := make([]value.Value, o.length)
	for i := range out {
		if v, ok := o.props[strconv.Itoa(i)]; ok {
			out[i] = v
		} else {
			out[i] = value.Nil{}
		}
	}
	return out
}

// Marked/SetMarked/Children satisfy gc.Traceable structurally. Children
// returns []interface{} (rather than []value.Value) so the collector's
// worklist can carry GC-internal types like upvalues alongside
// language-level values without this package depending on them.
func (o *Object) Marked() bool     { return o.marked }
func (o *Object) SetMarked(m bool) { o.marked = m }

func (o *Object) Children() []interface{} {
	out := make([]interface{}, 0, len(o.props)+len(o.dense)+1)
	if o.Prototype != nil {
		out = append(out, o.Prototype)
	}
	for _, v := range o.props {
		out = append(out, v)
	}
	for _, v := range o.dense {
		out = append(out, v)
	}
	return out
}
