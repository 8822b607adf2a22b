// Package consensus aggregates per-frame MRZ results across a rolling window
// to suppress transient OCR flicker: a digit that resolves differently frame
// to frame loses the vote instead of corrupting the final result.
package consensus

import (
	"time"

	"github.com/example/id-verify/internal/mrz"
)

// Entry is one frame's validated contribution to a document side.
type Entry struct {
	FrameSeq  uint64
	Candidate mrz.Candidate
	Checksum  mrz.ChecksumResult
	Fields    mrz.Fields
	At        time.Time
}

// Result is the majority-voted view over the current window.
type Result struct {
	Fields    mrz.Fields
	Checksum  mrz.ChecksumResult
	Candidate mrz.Candidate
	// Agreement counts window entries whose fields fully match the vote.
	Agreement int
}

// Window is a bounded FIFO history of frame results for one document side.
// It is not safe for concurrent use; the scan engine serializes access
// through its run loop.
type Window struct {
	capacity  int
	stability int
	minPasses int
	entries   []Entry
}

// NewWindow builds a window. Capacity bounds the history, stability is the
// number of consecutive agreeing frames required, and minPasses the checksum
// passes required of the majority candidate.
func NewWindow(capacity, stability, minPasses int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	if stability < 1 {
		stability = 1
	}
	if minPasses < 1 {
		minPasses = 1
	}
	return &Window{capacity: capacity, stability: stability, minPasses: minPasses}
}

// Add appends a frame result, evicting the oldest entry once full.
func (w *Window) Add(e Entry) {
	if len(w.entries) == w.capacity {
		copy(w.entries, w.entries[1:])
		w.entries = w.entries[:w.capacity-1]
	}
	w.entries = append(w.entries, e)
}

// Len returns the number of buffered entries.
func (w *Window) Len() int {
	return len(w.entries)
}

// Reset discards all accumulated history.
func (w *Window) Reset() {
	w.entries = w.entries[:0]
}

// Majority computes the per-field majority vote over the window. Ties are
// broken in favor of the most recent observation. The checksum and candidate
// of the returned result come from the newest entry whose fields fully match
// the vote, falling back to the newest entry.
func (w *Window) Majority() (Result, bool) {
	if len(w.entries) == 0 {
		return Result{}, false
	}

	type tally struct {
		count    int
		lastSeen int
	}
	votes := make(map[mrz.FieldName]map[string]*tally)
	for i, e := range w.entries {
		for name, value := range e.Fields.VoteMap() {
			byValue := votes[name]
			if byValue == nil {
				byValue = make(map[string]*tally)
				votes[name] = byValue
			}
			t := byValue[value]
			if t == nil {
				t = &tally{}
				byValue[value] = t
			}
			t.count++
			t.lastSeen = i
		}
	}

	var fields mrz.Fields
	for name, byValue := range votes {
		var best string
		var bestTally *tally
		for value, t := range byValue {
			if bestTally == nil || t.count > bestTally.count ||
				(t.count == bestTally.count && t.lastSeen > bestTally.lastSeen) {
				best = value
				bestTally = t
			}
		}
		fields.Set(name, best)
	}
	fields.NationalIDValid = mrz.ValidateNationalID(fields.NationalID)

	result := Result{Fields: fields}
	wanted := fields.VoteMap()
	for i := len(w.entries) - 1; i >= 0; i-- {
		if voteMapsEqual(w.entries[i].Fields.VoteMap(), wanted) {
			result.Agreement++
		}
	}
	for i := len(w.entries) - 1; i >= 0; i-- {
		if voteMapsEqual(w.entries[i].Fields.VoteMap(), wanted) {
			result.Checksum = w.entries[i].Checksum
			result.Candidate = w.entries[i].Candidate
			return result, true
		}
	}
	newest := w.entries[len(w.entries)-1]
	result.Checksum = newest.Checksum
	result.Candidate = newest.Candidate
	return result, true
}

// Stable reports whether the side has settled: the last `stability` frames
// agree on every extracted field and the majority-voted candidate carries at
// least the configured number of passing checksums.
func (w *Window) Stable() bool {
	if len(w.entries) < w.stability {
		return false
	}
	last := w.entries[len(w.entries)-w.stability:]
	for i := 1; i < len(last); i++ {
		if last[i].Fields != last[0].Fields {
			return false
		}
	}
	result, ok := w.Majority()
	if !ok {
		return false
	}
	return result.Checksum.Passed >= w.minPasses
}

func voteMapsEqual(a, b map[mrz.FieldName]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
