// Package vclock implements the causality-tracking primitives used by the
// record store: a strictly positive global change counter and a per-record
// vector clock mapping client ids to the last counter value seen from them.
//
// Counters are minted by the storage layer (persisted in the metadata table
// and bumped once per committed mutation); this package only defines the
// value types and their database encoding.
package vclock

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Counter is a single logical-clock reading. Valid counters are strictly
// positive; the zero value means "never seen".
type Counter int64

// VClock maps a client id to the highest counter value observed from that
// client. A nil VClock behaves like an empty one for reads.
//
// Clocks are treated as immutable: Apply returns a new clock rather than
// mutating the receiver, so a clock read from a row can be shared freely.
type VClock map[string]Counter

// New returns a clock containing a single entry for clientID.
func New(clientID string, c Counter) VClock {
	return VClock{clientID: c}
}

// Get returns the counter recorded for clientID, or 0 if absent.
func (v VClock) Get(clientID string) Counter {
	return v[clientID]
}

// Apply returns a copy of v with clientID's entry set to c.
//
// Counters are globally monotonic, so in practice this never moves an entry
// backwards; it still writes c unconditionally, matching the stamp the
// caller just minted.
func (v VClock) Apply(clientID string, c Counter) VClock {
	out := make(VClock, len(v)+1)
	for id, n := range v {
		out[id] = n
	}
	out[clientID] = c
	return out
}

// Ordering is the result of comparing two vector clocks.
type Ordering int

const (
	// Equal: both clocks have identical entries.
	Equal Ordering = iota
	// Before: the receiver is strictly dominated by the argument.
	Before
	// After: the receiver strictly dominates the argument.
	After
	// Concurrent: neither clock dominates; the edits happened concurrently.
	Concurrent
)

// Compare determines the causal relationship between v and other. The sync
// engine uses Concurrent to detect conflicting edits.
func (v VClock) Compare(other VClock) Ordering {
	var less, greater bool
	for id, n := range v {
		switch o := other[id]; {
		case n < o:
			less = true
		case n > o:
			greater = true
		}
	}
	for id, o := range other {
		if _, ok := v[id]; !ok && o > 0 {
			less = true
		}
	}
	switch {
	case less && greater:
		return Concurrent
	case less:
		return Before
	case greater:
		return After
	default:
		return Equal
	}
}

// Dominates reports whether every entry in other is present in v with an
// equal or greater counter.
func (v VClock) Dominates(other VClock) bool {
	ord := v.Compare(other)
	return ord == After || ord == Equal
}

// Value encodes the clock as a JSON object for storage in a TEXT column.
func (v VClock) Value() (driver.Value, error) {
	if v == nil {
		v = VClock{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode vector clock: %w", err)
	}
	return string(b), nil
}

// Scan decodes a clock previously written by Value. Accepts TEXT or BLOB.
func (v *VClock) Scan(src any) error {
	var data []byte
	switch s := src.(type) {
	case string:
		data = []byte(s)
	case []byte:
		data = s
	case nil:
		*v = VClock{}
		return nil
	default:
		return fmt.Errorf("decode vector clock: unsupported type %T", src)
	}
	out := VClock{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decode vector clock: %w", err)
	}
	*v = out
	return nil
}
