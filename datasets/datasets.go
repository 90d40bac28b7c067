package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// This file defines the dataset contract the package's types satisfy.
//
// Split files written by the split package are small tabular TSVs, so unlike
// image data they are parsed once up front and served from memory. Image
// volumes referenced by each row stay on disk; Sample only resolves their
// paths.
//
// Notes on gomlx tensors:
//   - Batches move into training code as contiguous float32 buffers plus
//     shape metadata (FeatureBatchFlat); converting those into gomlx tensors
//     is a small final step so the rest of the package stays independent of
//     any particular tensor API.

// Dataset is the batching contract shared with gomlx training loops.
type Dataset interface {
	Len() int
	Example(i int) (inputs []float32, labels []float32, err error)
	Batch(indices []int) (inputs [][]float32, labels [][]float32, err error)
	Shuffle(seed int64)

	// To implement gomlx's train.Dataset interface
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
}

var _ Dataset = (*MRIDataset)(nil)
