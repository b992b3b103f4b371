// Package triage deduplicates crash reports by fuzzy-hashing their
// crash_info text, so a fuzzing campaign that keeps tripping the same
// underlying bug doesn't pile up thousands of near-identical reports.
// This is scoped to bucketing, not a triage UI — spec.md's non-goals
// exclude "crash triage UIs," not crash bucketing — and is used by
// cmd/execstatefuzzer to summarize a campaign's crashes, never by the
// core.
// Grounded on the teacher's internal/analyzer.TLSHAnalyzer.
package triage

import (
	"sync"

	"github.com/glaslos/tlsh"
)

// DefaultSimilarityThreshold mirrors the teacher's DefaultTLSHConfig:
// a TLSH distance at or below this is treated as "the same crash."
const DefaultSimilarityThreshold = 100

// DefaultMinDataSize mirrors the teacher's MinDataSize: TLSH needs a
// reasonable amount of content to produce a meaningful hash.
const DefaultMinDataSize = 50

// Bucket is one distinct crash cluster: the first crash_info seen for
// it, its hash, and how many subsequent crashes matched it.
type Bucket struct {
	Representative string
	Hash           *tlsh.TLSH
	Count          int
}

// Deduper buckets crash_info strings by TLSH distance. It is safe for
// concurrent use: every method holds its own mutex — unlike
// internal/corpus, whose AddSample relies on a caller-held lock, this
// type is self-synchronizing since it has no natural caller-held
// critical section to join.
type Deduper struct {
	mu                  sync.Mutex
	threshold           int
	minDataSize         int
	buckets             []*Bucket
}

// New builds a Deduper with the teacher's default thresholds.
func New() *Deduper {
	return &Deduper{threshold: DefaultSimilarityThreshold, minDataSize: DefaultMinDataSize}
}

// SetThreshold overrides the similarity distance threshold.
func (d *Deduper) SetThreshold(threshold int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = threshold
}

// Classify buckets crashInfo: if it's within the similarity threshold
// of an existing bucket's representative, that bucket's count is
// incremented and its id (0-based) is returned with isNew=false.
// Otherwise a new bucket is created and isNew=true. Content shorter
// than minDataSize can't be meaningfully hashed and always starts a
// new bucket (every short crash_info is treated as novel — there's no
// reliable way to compare them).
func (d *Deduper) Classify(crashInfo string) (bucketID int, isNew bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(crashInfo) < d.minDataSize {
		d.buckets = append(d.buckets, &Bucket{Representative: crashInfo, Count: 1})
		return len(d.buckets) - 1, true
	}

	hash, err := tlsh.HashBytes([]byte(crashInfo))
	if err != nil {
		d.buckets = append(d.buckets, &Bucket{Representative: crashInfo, Count: 1})
		return len(d.buckets) - 1, true
	}

	for i, b := range d.buckets {
		if b.Hash == nil {
			continue
		}
		if b.Hash.Diff(hash) <= d.threshold {
			b.Count++
			return i, false
		}
	}

	d.buckets = append(d.buckets, &Bucket{Representative: crashInfo, Hash: hash, Count: 1})
	return len(d.buckets) - 1, true
}

// Buckets returns a snapshot of every distinct crash cluster seen so far.
func (d *Deduper) Buckets() []Bucket {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Bucket, len(d.buckets))
	for i, b := range d.buckets {
		out[i] = *b
	}
	return out
}
