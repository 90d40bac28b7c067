// Package datasets adapts persisted split files for model training.
package datasets

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/adnitools/foldsplit/split"
)

// Diagnosis labels used for supervised training. The vocabulary is closed;
// anything else fails with UnknownDiagnosisError.
const (
	LabelCN  = 0
	LabelAD  = 1
	LabelMCI = 2
)

// UnknownDiagnosisError reports a diagnosis outside the supported vocabulary.
type UnknownDiagnosisError struct {
	Diagnosis string
}

func (e *UnknownDiagnosisError) Error() string {
	return fmt.Sprintf("unknown diagnosis %q (want CN, AD or MCI)", e.Diagnosis)
}

// EncodeDiagnosis maps a diagnosis string to its training label.
func EncodeDiagnosis(diagnosis string) (int, error) {
	switch diagnosis {
	case "CN":
		return LabelCN, nil
	case "AD":
		return LabelAD, nil
	case "MCI":
		return LabelMCI, nil
	}
	return 0, &UnknownDiagnosisError{Diagnosis: diagnosis}
}

// T1wImagePath resolves the anatomical image belonging to one session under
// the layout <imgDir>/<participant>/<session>/anat/
// <participant>_<session>_T1w.nii.gz. Existence is not checked.
func T1wImagePath(imgDir, participantID, sessionID string) string {
	return filepath.Join(imgDir, participantID, sessionID, "anat",
		participantID+"_"+sessionID+"_T1w.nii.gz")
}

// Sample is one session row of a split file prepared for training.
type Sample struct {
	ParticipantID string
	SessionID     string
	Diagnosis     string
	Label         int
	ImagePath     string
}

// MRIDataset serves the rows of one train/test/valid split file. The file is
// parsed once at construction and every diagnosis is encoded eagerly, so a
// bad label fails construction instead of a training step.
type MRIDataset struct {
	// ImgDir is the root directory of the imaging data.
	ImgDir string

	// DataFile is the split file backing the dataset.
	DataFile string

	// BatchSize used by Yield.
	BatchSize int

	table  *split.Table
	labels []int

	// Feature column names and their table positions, in caller order.
	featureCols []string
	featureIdx  []int

	// Positions of the fixed columns.
	pcol, scol, dcol int

	// perm maps dataset positions to table rows; Shuffle permutes it.
	perm   []int
	cursor int
	rand   *rand.Rand
}

// NewMRIDataset parses a split file and prepares it for training access.
// featureCols name numeric columns to expose as model inputs; the list may
// be empty when only samples and image paths are needed.
func NewMRIDataset(imgDir, dataFile string, featureCols ...string) (*MRIDataset, error) {
	table, err := split.ReadTable(dataFile)
	if err != nil {
		return nil, err
	}
	if err := table.Require(split.ColParticipant, split.ColSession, split.ColDiagnosis); err != nil {
		return nil, err
	}

	d := &MRIDataset{
		ImgDir:      imgDir,
		DataFile:    dataFile,
		BatchSize:   32,
		table:       table,
		featureCols: featureCols,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	d.pcol, _ = table.ColumnIndex(split.ColParticipant)
	d.scol, _ = table.ColumnIndex(split.ColSession)
	d.dcol, _ = table.ColumnIndex(split.ColDiagnosis)

	d.featureIdx = make([]int, len(featureCols))
	for i, name := range featureCols {
		j, ok := table.ColumnIndex(name)
		if !ok {
			return nil, &split.MissingColumnError{Column: name}
		}
		d.featureIdx[i] = j
	}

	d.labels = make([]int, table.Len())
	for i := 0; i < table.Len(); i++ {
		label, err := EncodeDiagnosis(table.Row(i)[d.dcol])
		if err != nil {
			return nil, fmt.Errorf("row %d of %s: %w", i, dataFile, err)
		}
		d.labels[i] = label
	}

	d.perm = make([]int, table.Len())
	for i := range d.perm {
		d.perm[i] = i
	}
	return d, nil
}

// Len returns the number of sessions in the dataset.
func (d *MRIDataset) Len() int {
	return d.table.Len()
}

// Sample returns the session at position i of the current order.
func (d *MRIDataset) Sample(i int) (Sample, error) {
	if i < 0 || i >= d.Len() {
		return Sample{}, fmt.Errorf("index %d out of range [0, %d)", i, d.Len())
	}
	row := d.table.Row(d.perm[i])
	return Sample{
		ParticipantID: row[d.pcol],
		SessionID:     row[d.scol],
		Diagnosis:     row[d.dcol],
		Label:         d.labels[d.perm[i]],
		ImagePath:     T1wImagePath(d.ImgDir, row[d.pcol], row[d.scol]),
	}, nil
}

// Example returns the configured feature columns and the encoded diagnosis
// for the session at position i.
func (d *MRIDataset) Example(i int) (inputs []float32, labels []float32, err error) {
	if len(d.featureIdx) == 0 {
		return nil, nil, fmt.Errorf("no feature columns configured")
	}
	if i < 0 || i >= d.Len() {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", i, d.Len())
	}
	row := d.table.Row(d.perm[i])
	inputs = make([]float32, len(d.featureIdx))
	for k, j := range d.featureIdx {
		val, err := parseFloat32(row[j])
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse %s: %w", d.featureCols[k], err)
		}
		inputs[k] = val
	}
	return inputs, []float32{float32(d.labels[d.perm[i]])}, nil
}

// Batch reads multiple examples by their positions.
func (d *MRIDataset) Batch(indices []int) ([][]float32, [][]float32, error) {
	inputs := make([][]float32, len(indices))
	labels := make([][]float32, len(indices))
	for pos, idx := range indices {
		in, lab, err := d.Example(idx)
		if err != nil {
			return nil, nil, err
		}
		inputs[pos] = in
		labels[pos] = lab
	}
	return inputs, labels, nil
}

// Shuffle re-orders the dataset with a seeded permutation and rewinds the
// epoch cursor.
func (d *MRIDataset) Shuffle(seed int64) {
	d.rand.Seed(seed)
	d.rand.Shuffle(len(d.perm), func(i, j int) { d.perm[i], d.perm[j] = d.perm[j], d.perm[i] })
	d.cursor = 0
}
