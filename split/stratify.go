package split

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// FoldIndices is one cross-validation fold over a label vector: the
// positions held out for testing and the complementary training positions.
// Both slices are sorted ascending.
type FoldIndices struct {
	Train []int
	Test  []int
}

// StratifiedKFold assigns every position of a label vector to exactly one
// test fold so that each fold's per-label count differs from an even share
// by at most one.
type StratifiedKFold struct {
	nSplits int
	shuffle bool
	rng     *rand.Rand
}

// NewStratifiedKFold returns a K-fold splitter. With shuffle set, positions
// are shuffled within each label before they are dealt out to folds; seed
// makes the shuffle reproducible and is ignored otherwise.
func NewStratifiedKFold(nSplits int, shuffle bool, seed int64) *StratifiedKFold {
	return &StratifiedKFold{
		nSplits: nSplits,
		shuffle: shuffle,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Split partitions the positions of labels into folds. Every label must
// occur at least nSplits times.
func (s *StratifiedKFold) Split(labels []string) ([]FoldIndices, error) {
	if s.nSplits < 2 {
		return nil, fmt.Errorf("need at least 2 folds, got %d", s.nSplits)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("empty label vector")
	}
	classes, byClass := labelClasses(labels)

	testSets := make([][]int, s.nSplits)
	for _, class := range classes {
		idx := byClass[class]
		if len(idx) < s.nSplits {
			return nil, &InsufficientSamplesError{Label: class, Count: len(idx), Needed: s.nSplits}
		}
		if s.shuffle {
			idx = shuffled(s.rng, idx)
		}
		// Chunks differ in size by at most one; earlier folds absorb the
		// remainder.
		base, rem := len(idx)/s.nSplits, len(idx)%s.nSplits
		start := 0
		for k := 0; k < s.nSplits; k++ {
			size := base
			if k < rem {
				size++
			}
			testSets[k] = append(testSets[k], idx[start:start+size]...)
			start += size
		}
	}

	folds := make([]FoldIndices, s.nSplits)
	for k, test := range testSets {
		sort.Ints(test)
		folds[k] = FoldIndices{Train: complement(len(labels), test), Test: test}
	}
	return folds, nil
}

// StratifiedShuffleSplit draws one randomized holdout that preserves
// per-label proportions.
type StratifiedShuffleSplit struct {
	testSize float64
	rng      *rand.Rand
}

// NewStratifiedShuffleSplit returns a holdout splitter that moves testSize
// of each label's positions, rounded to the nearest whole sample, into the
// test side. Equal seeds reproduce equal draws.
func NewStratifiedShuffleSplit(testSize float64, seed int64) *StratifiedShuffleSplit {
	return &StratifiedShuffleSplit{
		testSize: testSize,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Split draws the holdout over the positions of labels. Every label must
// occur at least twice so each side keeps at least one sample per label.
// Both returned slices are sorted ascending.
func (s *StratifiedShuffleSplit) Split(labels []string) (train, test []int, err error) {
	if s.testSize <= 0 || s.testSize >= 1 {
		return nil, nil, fmt.Errorf("holdout fraction must be in (0, 1), got %v", s.testSize)
	}
	if len(labels) == 0 {
		return nil, nil, fmt.Errorf("empty label vector")
	}
	classes, byClass := labelClasses(labels)
	for _, class := range classes {
		idx := byClass[class]
		if len(idx) < 2 {
			return nil, nil, &InsufficientSamplesError{Label: class, Count: len(idx), Needed: 2}
		}
		take := int(math.Round(s.testSize * float64(len(idx))))
		if take < 1 {
			take = 1
		}
		if take > len(idx)-1 {
			take = len(idx) - 1
		}
		pick := shuffled(s.rng, idx)
		test = append(test, pick[:take]...)
		train = append(train, pick[take:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// labelClasses maps a label vector to its sorted distinct values and the
// per-value positions. The sorted order doubles as the deterministic label
// index, so identical inputs always stratify identically.
func labelClasses(labels []string) ([]string, map[string][]int) {
	byClass := make(map[string][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]string, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes, byClass
}

// shuffled returns a shuffled copy of idx, leaving idx itself untouched.
func shuffled(rng *rand.Rand, idx []int) []int {
	out := make([]int, len(idx))
	copy(out, idx)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// complement returns the positions of [0, n) missing from the sorted slice
// test, in ascending order.
func complement(n int, test []int) []int {
	out := make([]int, 0, n-len(test))
	next := 0
	for i := 0; i < n; i++ {
		if next < len(test) && test[next] == i {
			next++
			continue
		}
		out = append(out, i)
	}
	return out
}
