package runflow

import (
	"github.com/mohae/deepcopy"
)

// State is the mutable key/value document threaded through a run.
// Values are whatever JSON or YAML decoding produces, plus anything node
// functions choose to store.
type State map[string]any

// Clone returns a deep copy of s. Nested maps and slices are copied so the
// clone shares no mutable structure with s. A nil State clones to an empty
// one.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	c, ok := deepcopy.Copy(s).(State)
	if !ok || c == nil {
		return State{}
	}
	return c
}

// Merge overwrites the top-level keys of s with those of update.
// Nested values are replaced, not merged.
func (s State) Merge(update State) {
	for k, v := range update {
		s[k] = v
	}
}
