// Package table implements the open-addressed, string-keyed hash table
// used across loxvm. It backs string interning, the VM's global variable
// table, class method tables, and instance field tables.
//
// Probing is linear over a power-of-two capacity with a 0.75 load
// factor limit. Deletion leaves a tombstone (a slot with a nil key and
// a true value) so later probes for other keys still find their way
// past it; Set reuses the first tombstone it encounters on the way to
// confirming a key is new, so repeated insert/delete cycles do not leak
// slots. Resizing rebuilds the table from scratch and does not carry
// tombstones forward.
package table

import "github.com/kristofer/loxvm/internal/value"

const (
	initialCapacity = 8
	maxLoad         = 0.75
)

type entry struct {
	key   *value.StringObject // nil key + Nil value => empty; nil key + true value => tombstone
	value value.Value
}

// Table is an open-addressed hash map from interned strings to Values.
// The zero Table is not usable; construct one with New.
type Table struct {
	count   int // live entries + tombstones
	entries []entry
}

// New returns an empty Table.
func New() *Table {
	return &Table{}
}

// Count returns the number of occupied slots, including tombstones: a
// slot that a tombstone already occupies still counts even before a new
// key fills it.
func (t *Table) Count() int { return t.count }

// Get looks up key and reports whether it was present.
func (t *Table) Get(key *value.StringObject) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.Nil, false
	}
	e := t.find(key)
	if e.key == nil {
		return value.Nil, false
	}
	return e.value, true
}

// Set inserts or overwrites key -> val, returning true if key was not
// already present (i.e. this call grew the logical entry count). Filling
// a tombstone counts as "new" for this return value but does not
// increment Count, since the tombstone already occupied a counted slot.
func (t *Table) Set(key *value.StringObject, val value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.grow()
	}

	e := t.find(key)
	wasNew := e.key == nil
	if wasNew && e.value.IsNil() {
		// Truly empty slot (not a tombstone): count grows.
		t.count++
	}
	e.key = key
	e.value = val
	return wasNew
}

// Delete removes key, leaving a tombstone so later probes for other
// keys are not broken. Reports whether key was present.
func (t *Table) Delete(key *value.StringObject) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.find(key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = value.Bool(true) // tombstone marker
	return true
}

// FindString locates an already-interned string with the given bytes
// and hash without allocating a new StringObject first — the one
// operation the string intern table needs that a generic Get cannot
// provide, since Get requires a *StringObject key to compare by pointer
// and interning needs to search by content.
func (t *Table) FindString(chars string, hash uint32) *value.StringObject {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	index := hash & mask
	for {
		e := &t.entries[index]
		if e.key == nil {
			// Stop at a true empty slot (not a tombstone: keep probing past those).
			if e.value.IsNil() {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		index = (index + 1) & mask
	}
}

// Each calls fn for every live (non-tombstone) entry. Iteration order is
// unspecified.
func (t *Table) Each(fn func(key *value.StringObject, val value.Value)) {
	for _, e := range t.entries {
		if e.key != nil {
			fn(e.key, e.value)
		}
	}
}

// AddAll inserts every live entry of src into dst — used when a
// subclass inherits its superclass's methods.
func AddAll(src, dst *Table) {
	src.Each(func(key *value.StringObject, val value.Value) {
		dst.Set(key, val)
	})
}

// Intern returns the canonical *value.StringObject for chars, allocating
// and registering a new one only if an equal string isn't already
// interned in strings. This is the content-level interning primitive for
// hosts that don't need the VM's GC bookkeeping around the allocation;
// the VM layers its object-list tracking and stack-rooting on top of the
// same FindString-then-Set sequence.
func Intern(strings *Table, chars string) *value.StringObject {
	hash := value.HashString(chars)
	if existing := strings.FindString(chars, hash); existing != nil {
		return existing
	}
	s := &value.StringObject{Chars: chars, Hash: hash}
	strings.Set(s, value.Bool(true))
	return s
}

// RemoveUnless deletes every entry whose key fails keep, in place. Used
// by the collector to drop interned strings with no other surviving
// reference before the general sweep reclaims them: an unmarked key is
// removed from the intern table before the general sweep, or it would
// keep the string alive forever.
func (t *Table) RemoveUnless(keep func(key *value.StringObject) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !keep(e.key) {
			e.key = nil
			e.value = value.Bool(true)
		}
	}
}

func (t *Table) find(key *value.StringObject) *entry {
	mask := uint32(len(t.entries) - 1)
	index := key.Hash & mask
	var tombstone *entry
	for {
		e := &t.entries[index]
		if e.key == nil {
			if e.value.IsNil() {
				// Empty slot: return the tombstone we passed, if any,
				// so a subsequent Set reuses it.
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			// Tombstone.
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key || (e.key.Hash == key.Hash && e.key.Chars == key.Chars) {
			return e
		}
		index = (index + 1) & mask
	}
}

func (t *Table) grow() {
	newCap := initialCapacity
	if len(t.entries) > 0 {
		newCap = len(t.entries) * 2
	}
	old := t.entries
	t.entries = make([]entry, newCap)
	t.count = 0
	for _, e := range old {
		if e.key == nil {
			continue
		}
		dst := t.find(e.key)
		dst.key = e.key
		dst.value = e.value
		t.count++
	}
}
