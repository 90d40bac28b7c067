package main

// Example command that loads one persisted split file as an MRIDataset,
// prints a few samples with their resolved image paths, and converts a small
// batch into gomlx tensors using the helpers provided in the package.
//
// Usage:
//   go run ./example -data path/to/participants_iteration-0_train.tsv
//
// Point -data at any file the splitter wrote. Feature columns are optional;
// pass them when the split file carries numeric covariates.

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/adnitools/foldsplit/datasets"
)

func main() {
	dataFile := flag.String("data", "", "path to a split tsv written by the splitter")
	imgDir := flag.String("img-dir", "/data/adni", "root directory of the imaging data")
	features := flag.String("features", "", "comma-separated numeric feature columns, e.g. 'age,mmse'")
	flag.Parse()

	if *dataFile == "" {
		log.Fatalf("missing -data: path to a split tsv is required")
	}

	var featureCols []string
	if *features != "" {
		featureCols = strings.Split(*features, ",")
	}

	ds, err := datasets.NewMRIDataset(*imgDir, *dataFile, featureCols...)
	if err != nil {
		log.Fatalf("failed to load split file: %v", err)
	}
	fmt.Printf("Loaded %s: %d sessions\n", *dataFile, ds.Len())

	// Show the first few samples with their resolved image paths.
	n := min(4, ds.Len())
	for i := range n {
		s, err := ds.Sample(i)
		if err != nil {
			log.Fatalf("failed to read sample %d: %v", i, err)
		}
		fmt.Printf("  %s %s %s (label %d)\n    %s\n", s.ParticipantID, s.SessionID, s.Diagnosis, s.Label, s.ImagePath)
	}

	if len(featureCols) == 0 {
		fmt.Println("\nNo feature columns given; skipping tensor conversion.")
		return
	}

	// Build a small batch and convert it to gomlx tensors.
	indices := make([]int, n)
	for i := range n {
		indices[i] = i
	}
	inputs, labels, err := ds.Batch(indices)
	if err != nil {
		log.Fatalf("failed to build batch: %v", err)
	}
	flat, err := datasets.MakeFeatureBatchFlat(inputs, labels)
	if err != nil {
		log.Fatalf("failed to make batch flat: %v", err)
	}
	inT, labT, err := flat.ToGomlxTensors()
	if err != nil {
		log.Fatalf("failed to convert batch to gomlx tensors: %v", err)
	}

	// We don't depend on any particular tensor API here; just show we have tensors.
	fmt.Printf("\nCreated tensors: input=%T label=%T\n", inT, labT)
	fmt.Printf("  Input shape: [%d, %d]\n", flat.BatchSize, flat.InputDim)
	fmt.Printf("  Label shape: [%d, %d]\n", flat.BatchSize, flat.LabelDim)
}
