package datasets

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/adnitools/foldsplit/split"
)

// writeTSV writes a tab-separated file with the given header and rows to path.
func writeTSV(t *testing.T, path, header string, rows []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create tsv %s: %v", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(header + "\n"); err != nil {
		t.Fatalf("failed to write header: %v", err)
	}
	for _, r := range rows {
		if _, err := f.WriteString(r + "\n"); err != nil {
			t.Fatalf("failed to write row: %v", err)
		}
	}
}

const splitHeader = "participant_id\tsession_id\tdiagnosis\tage\tmmse"

func writeSplitFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "participants_iteration-0_train.tsv")
	writeTSV(t, path, splitHeader, []string{
		"sub-01\tses-M00\tCN\t74.5\t29",
		"sub-01\tses-M06\tCN\t75.0\t28",
		"sub-02\tses-M00\tAD\t81.2\t21",
		"sub-03\tses-M00\tMCI\t68.1\t26",
		"sub-03\tses-M12\tMCI\t69.2\t25",
	})
	return path
}

func TestEncodeDiagnosis(t *testing.T) {
	cases := map[string]int{"CN": LabelCN, "AD": LabelAD, "MCI": LabelMCI}
	for diagnosis, want := range cases {
		got, err := EncodeDiagnosis(diagnosis)
		if err != nil {
			t.Errorf("EncodeDiagnosis(%q) error: %v", diagnosis, err)
			continue
		}
		if got != want {
			t.Errorf("EncodeDiagnosis(%q) = %d, expected %d", diagnosis, got, want)
		}
	}

	_, err := EncodeDiagnosis("Other")
	if err == nil {
		t.Fatalf("expected error for unknown diagnosis, got nil")
	}
	var unknown *UnknownDiagnosisError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownDiagnosisError, got %T: %v", err, err)
	}
	if unknown.Diagnosis != "Other" {
		t.Fatalf("error carries diagnosis %q, expected Other", unknown.Diagnosis)
	}
}

func TestT1wImagePath(t *testing.T) {
	got := T1wImagePath("/data/adni", "sub-01", "ses-M06")
	want := filepath.Join("/data/adni", "sub-01", "ses-M06", "anat", "sub-01_ses-M06_T1w.nii.gz")
	if got != want {
		t.Fatalf("unexpected image path:\ngot:  %s\nwant: %s", got, want)
	}
}

// TestMRIDataset_LoadAndRead creates a temporary split file and verifies that
// NewMRIDataset, Sample, Example, Batch, MakeFeatureBatchFlat and
// ToGomlxTensors behave as expected.
func TestMRIDataset_LoadAndRead(t *testing.T) {
	tmp := t.TempDir()
	file := writeSplitFile(t, tmp)

	ds, err := NewMRIDataset("/data/adni", file, "age", "mmse")
	if err != nil {
		t.Fatalf("NewMRIDataset failed: %v", err)
	}
	if got := ds.Len(); got != 5 {
		t.Fatalf("expected len 5, got %d", got)
	}

	// Sample 2 is sub-02's baseline visit.
	s, err := ds.Sample(2)
	if err != nil {
		t.Fatalf("Sample(2) error: %v", err)
	}
	if s.ParticipantID != "sub-02" || s.SessionID != "ses-M00" || s.Diagnosis != "AD" || s.Label != LabelAD {
		t.Fatalf("unexpected sample: %+v", s)
	}
	wantPath := filepath.Join("/data/adni", "sub-02", "ses-M00", "anat", "sub-02_ses-M00_T1w.nii.gz")
	if s.ImagePath != wantPath {
		t.Fatalf("unexpected image path %s, expected %s", s.ImagePath, wantPath)
	}

	// Example 0 carries age and mmse as inputs and the encoded label.
	in0, lab0, err := ds.Example(0)
	if err != nil {
		t.Fatalf("Example(0) error: %v", err)
	}
	if len(in0) != 2 || len(lab0) != 1 {
		t.Fatalf("unexpected dims for Example(0): inputs=%d labels=%d", len(in0), len(lab0))
	}
	if in0[0] != 74.5 || in0[1] != 29 || lab0[0] != float32(LabelCN) {
		t.Fatalf("unexpected values for Example(0): in=%v lab=%v", in0, lab0)
	}

	// Batch read indices [0,2,3]
	indices := []int{0, 2, 3}
	inputs, labels, err := ds.Batch(indices)
	if err != nil {
		t.Fatalf("Batch error: %v", err)
	}
	if len(inputs) != len(indices) || len(labels) != len(indices) {
		t.Fatalf("Batch returned unexpected sizes: inputs=%d labels=%d", len(inputs), len(labels))
	}
	wantLabels := []float32{float32(LabelCN), float32(LabelAD), float32(LabelMCI)}
	for i := range wantLabels {
		if labels[i][0] != wantLabels[i] {
			t.Fatalf("Batch label mismatch at %d: got %v expected %v", i, labels[i][0], wantLabels[i])
		}
	}

	// Make flat batch and verify dimensions
	flat, err := MakeFeatureBatchFlat(inputs, labels)
	if err != nil {
		t.Fatalf("MakeFeatureBatchFlat error: %v", err)
	}
	if flat.BatchSize != len(indices) || flat.InputDim != 2 || flat.LabelDim != 1 {
		t.Fatalf("unexpected FeatureBatchFlat dims: %+v", flat)
	}
	if len(flat.Inputs) != flat.BatchSize*flat.InputDim {
		t.Fatalf("flat inputs length mismatch: %d vs %d", len(flat.Inputs), flat.BatchSize*flat.InputDim)
	}

	// Convert to gomlx tensors (ensure call doesn't panic and tensors non-nil)
	inT, labT, err := flat.ToGomlxTensors()
	if err != nil {
		t.Fatalf("ToGomlxTensors error: %v", err)
	}
	if inT == nil || labT == nil {
		t.Fatalf("ToGomlxTensors returned nil tensor(s)")
	}
}

// TestMRIDataset_UnknownDiagnosis ensures construction fails eagerly when a
// row carries a diagnosis outside the vocabulary.
func TestMRIDataset_UnknownDiagnosis(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "bad.tsv")
	writeTSV(t, file, "participant_id\tsession_id\tdiagnosis", []string{
		"sub-01\tses-M00\tCN",
		"sub-02\tses-M00\tLMCI",
	})

	_, err := NewMRIDataset("/data/adni", file)
	if err == nil {
		t.Fatalf("expected error for unknown diagnosis, got nil")
	}
	var unknown *UnknownDiagnosisError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownDiagnosisError, got %T: %v", err, err)
	}
	if unknown.Diagnosis != "LMCI" {
		t.Fatalf("error carries diagnosis %q, expected LMCI", unknown.Diagnosis)
	}
}

// TestMRIDataset_MissingColumns ensures NewMRIDataset returns an error when
// required or feature columns are absent.
func TestMRIDataset_MissingColumns(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "nodiag.tsv")
	writeTSV(t, file, "participant_id\tsession_id", []string{
		"sub-01\tses-M00",
	})
	if _, err := NewMRIDataset("/data/adni", file); err == nil {
		t.Fatalf("expected error when diagnosis column missing, got nil")
	}

	good := writeSplitFile(t, tmp)
	_, err := NewMRIDataset("/data/adni", good, "age", "apoe4")
	if err == nil {
		t.Fatalf("expected error for missing feature column, got nil")
	}
	var missing *split.MissingColumnError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingColumnError, got %T: %v", err, err)
	}
	if missing.Column != "apoe4" {
		t.Fatalf("expected missing column apoe4, got %q", missing.Column)
	}
}

func TestMRIDataset_ShuffleDeterministic(t *testing.T) {
	tmp := t.TempDir()
	file := writeSplitFile(t, tmp)

	a, err := NewMRIDataset("/data/adni", file)
	if err != nil {
		t.Fatalf("NewMRIDataset failed: %v", err)
	}
	b, err := NewMRIDataset("/data/adni", file)
	if err != nil {
		t.Fatalf("NewMRIDataset failed: %v", err)
	}
	a.Shuffle(99)
	b.Shuffle(99)
	for i := 0; i < a.Len(); i++ {
		sa, err := a.Sample(i)
		if err != nil {
			t.Fatalf("Sample(%d) error: %v", i, err)
		}
		sb, err := b.Sample(i)
		if err != nil {
			t.Fatalf("Sample(%d) error: %v", i, err)
		}
		if sa != sb {
			t.Fatalf("same seed produced different orders at %d: %+v vs %+v", i, sa, sb)
		}
	}
}

// TestMRIDataset_YieldEpoch walks a full epoch through the gomlx Dataset
// interface and checks the io.EOF / Restart cycle.
func TestMRIDataset_YieldEpoch(t *testing.T) {
	tmp := t.TempDir()
	file := writeSplitFile(t, tmp)

	ds, err := NewMRIDataset("/data/adni", file, "age")
	if err != nil {
		t.Fatalf("NewMRIDataset failed: %v", err)
	}
	ds.BatchSize = 2

	// 5 examples at batch size 2 give batches of 2, 2 and 1.
	batches := 0
	for {
		_, inputs, labels, err := ds.Yield()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Yield error: %v", err)
		}
		if len(inputs) != 1 || len(labels) != 1 {
			t.Fatalf("unexpected tensor counts: inputs=%d labels=%d", len(inputs), len(labels))
		}
		batches++
		if batches > 3 {
			t.Fatalf("epoch did not terminate after 3 batches")
		}
	}
	if batches != 3 {
		t.Fatalf("expected 3 batches per epoch, got %d", batches)
	}

	if err := ds.Restart(); err != nil {
		t.Fatalf("Restart error: %v", err)
	}
	if _, _, _, err := ds.Yield(); err != nil {
		t.Fatalf("Yield after Restart error: %v", err)
	}
}
