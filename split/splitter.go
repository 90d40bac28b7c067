package split

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/exascience/pargo/parallel"
)

// Role names used in persisted split filenames.
const (
	RoleTrain = "train"
	RoleTest  = "test"
	RoleValid = "valid"
)

// Fold is one cross-validation fold expanded back to session level: every
// subject assigned to a side contributes all of its sessions there.
type Fold struct {
	Train *Table
	Valid *Table
	Test  *Table
}

// Splitter partitions the subjects of a session table into stratified
// train/valid/test folds.
//
// Subjects are first collapsed to their earliest session, so the diagnosis
// that stratifies each subject is the baseline one and every subject lands
// on exactly one side per fold. Each fold's training pool then loses a
// validation holdout, and all three sides are expanded back to full session
// level.
type Splitter struct {
	// NSplits is the number of cross-validation folds.
	NSplits int

	// ValFraction is the share of each fold's training pool moved into the
	// validation set, rounded per diagnosis.
	ValFraction float64

	// Seed drives the K-fold shuffle and, via a per-fold offset, each fold's
	// holdout draw. Equal seeds reproduce identical folds.
	Seed int64

	// Parallel writes fold files concurrently. Contents and names do not
	// depend on it.
	Parallel bool
}

// NewSplitter returns a Splitter with validated parameters.
func NewSplitter(nSplits int, valFraction float64, seed int64) (*Splitter, error) {
	if nSplits < 2 {
		return nil, fmt.Errorf("nSplits must be at least 2, got %d", nSplits)
	}
	if valFraction <= 0 || valFraction >= 1 {
		return nil, fmt.Errorf("valFraction must be in (0, 1), got %v", valFraction)
	}
	return &Splitter{NSplits: nSplits, ValFraction: valFraction, Seed: seed}, nil
}

// Split computes the folds of t in memory. The input table is not modified.
func (s *Splitter) Split(t *Table) ([]Fold, error) {
	reduced, err := Reduce(t)
	if err != nil {
		return nil, err
	}
	labels, err := diagnosisLabels(reduced)
	if err != nil {
		return nil, err
	}

	kf := NewStratifiedKFold(s.NSplits, true, s.Seed)
	indices, err := kf.Split(labels)
	if err != nil {
		return nil, err
	}

	folds := make([]Fold, len(indices))
	for k := range indices {
		fold, err := s.materializeFold(t, reduced, labels, indices[k], k)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", k, err)
		}
		folds[k] = fold
	}
	return folds, nil
}

// materializeFold carves the validation holdout out of one fold's training
// pool and expands all three sides back to session level.
func (s *Splitter) materializeFold(full, reduced *Table, labels []string, idx FoldIndices, k int) (Fold, error) {
	poolLabels := make([]string, len(idx.Train))
	for i, ri := range idx.Train {
		poolLabels[i] = labels[ri]
	}
	holdout := NewStratifiedShuffleSplit(s.ValFraction, s.foldSeed(k))
	trainPos, validPos, err := holdout.Split(poolLabels)
	if err != nil {
		return Fold{}, err
	}

	var fold Fold
	sides := []struct {
		idx []int
		dst **Table
	}{
		{pick(idx.Train, trainPos), &fold.Train},
		{pick(idx.Train, validPos), &fold.Valid},
		{idx.Test, &fold.Test},
	}
	for _, side := range sides {
		subset, err := reduced.Subset(side.idx)
		if err != nil {
			return Fold{}, err
		}
		expanded, err := Expand(full, subset)
		if err != nil {
			return Fold{}, err
		}
		*side.dst = expanded
	}
	return fold, nil
}

// foldSeed derives the holdout seed for fold k. Offsetting by the fold index
// keeps draws independent across folds and stable no matter which order the
// folds are materialized in.
func (s *Splitter) foldSeed(k int) int64 {
	return s.Seed + int64(k) + 1
}

// SplitFile reads a tab-separated session table, computes the folds, and
// writes three files per fold next to the source file, named
// <base>_iteration-<k>_{train,test,valid}.tsv. Files already written when a
// later fold fails are left in place.
func (s *Splitter) SplitFile(dataFile string) error {
	t, err := ReadTable(dataFile)
	if err != nil {
		return err
	}
	return s.WriteFolds(t, dataFile)
}

// WriteFolds computes the folds of t and persists them, deriving the output
// directory and base name from dataFile.
func (s *Splitter) WriteFolds(t *Table, dataFile string) error {
	folds, err := s.Split(t)
	if err != nil {
		return err
	}
	if s.Parallel {
		errs := make([]error, len(folds))
		parallel.Range(0, len(folds), 0, func(low, high int) {
			for k := low; k < high; k++ {
				errs[k] = writeFold(dataFile, k, folds[k])
			}
		})
		for _, err := range errs {
			if err != nil {
				return err
			}
		}
		return nil
	}
	for k, fold := range folds {
		if err := writeFold(dataFile, k, fold); err != nil {
			return err
		}
	}
	return nil
}

// writeFold persists one fold's three sides using the shared path scheme.
func writeFold(dataFile string, k int, fold Fold) error {
	train, test, valid := SplitPaths(dataFile, k)
	if err := fold.Train.WriteTSV(train); err != nil {
		return fmt.Errorf("fold %d train: %w", k, err)
	}
	if err := fold.Test.WriteTSV(test); err != nil {
		return fmt.Errorf("fold %d test: %w", k, err)
	}
	if err := fold.Valid.WriteTSV(valid); err != nil {
		return fmt.Errorf("fold %d valid: %w", k, err)
	}
	return nil
}

// SplitPaths returns the train, test, and valid file paths for one fold of
// the given source file. It is a pure path computation; writers and readers
// both use it, so the two can never disagree about names.
func SplitPaths(dataFile string, fold int) (train, test, valid string) {
	dir := filepath.Dir(dataFile)
	base := strings.TrimSuffix(filepath.Base(dataFile), filepath.Ext(dataFile))
	name := func(role string) string {
		return filepath.Join(dir, fmt.Sprintf("%s_iteration-%d_%s.tsv", base, fold, role))
	}
	return name(RoleTrain), name(RoleTest), name(RoleValid)
}

// diagnosisLabels copies the diagnosis column of a table.
func diagnosisLabels(t *Table) ([]string, error) {
	col, ok := t.ColumnIndex(ColDiagnosis)
	if !ok {
		return nil, &MissingColumnError{Column: ColDiagnosis}
	}
	out := make([]string, t.Len())
	for i := range out {
		out[i] = t.rows[i][col]
	}
	return out, nil
}

// pick maps holdout positions back to positions in the reduced table.
func pick(src, pos []int) []int {
	out := make([]int, len(pos))
	for i, p := range pos {
		out[i] = src[p]
	}
	return out
}
