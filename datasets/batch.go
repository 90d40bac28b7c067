package datasets

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// FeatureBatchFlat stores a training batch in flat contiguous buffers.
type FeatureBatchFlat struct {
	Inputs    []float32
	Labels    []float32
	BatchSize int
	InputDim  int
	LabelDim  int
}

// MakeFeatureBatchFlat flattens a batch into contiguous buffers.
func MakeFeatureBatchFlat(inputs, labels [][]float32) (*FeatureBatchFlat, error) {
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", len(inputs), len(labels))
	}
	if len(inputs) == 0 {
		return &FeatureBatchFlat{}, nil
	}

	batchSize := len(inputs)
	inputDim := len(inputs[0])
	labelDim := len(labels[0])

	flatInputs := make([]float32, batchSize*inputDim)
	flatLabels := make([]float32, batchSize*labelDim)
	for i := range batchSize {
		if len(inputs[i]) != inputDim {
			return nil, fmt.Errorf("inconsistent input dimensions at example %d: expected %d, got %d",
				i, inputDim, len(inputs[i]))
		}
		if len(labels[i]) != labelDim {
			return nil, fmt.Errorf("inconsistent label dimensions at example %d: expected %d, got %d",
				i, labelDim, len(labels[i]))
		}
		copy(flatInputs[i*inputDim:], inputs[i])
		copy(flatLabels[i*labelDim:], labels[i])
	}

	return &FeatureBatchFlat{
		Inputs:    flatInputs,
		Labels:    flatLabels,
		BatchSize: batchSize,
		InputDim:  inputDim,
		LabelDim:  labelDim,
	}, nil
}

// ToGomlxTensors converts the flat batch to gomlx tensors.
func (b *FeatureBatchFlat) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	// handle empty batch gracefully
	if b.BatchSize == 0 || b.InputDim == 0 || b.LabelDim == 0 {
		inT := tensors.FromAnyValue(make([][]float32, 0))
		labT := tensors.FromAnyValue(make([][]float32, 0))
		return inT, labT, nil
	}
	inputs := make([][]float32, b.BatchSize)
	labels := make([][]float32, b.BatchSize)
	for i := range b.BatchSize {
		inputs[i] = b.Inputs[i*b.InputDim : (i+1)*b.InputDim]
		labels[i] = b.Labels[i*b.LabelDim : (i+1)*b.LabelDim]
	}
	return tensors.FromAnyValue(inputs), tensors.FromAnyValue(labels), nil
}

// Tensors reads a batch of examples and returns them as gomlx tensors.
func (d *MRIDataset) Tensors(indices []int) (*tensors.Tensor, *tensors.Tensor, error) {
	inData, labData, err := d.Batch(indices)
	if err != nil {
		return nil, nil, err
	}
	flat, err := MakeFeatureBatchFlat(inData, labData)
	if err != nil {
		return nil, nil, err
	}
	return flat.ToGomlxTensors()
}

// Name returns the name of the dataset for the gomlx Dataset interface.
func (d *MRIDataset) Name() string {
	return "MRIDataset(" + filepath.Base(d.DataFile) + ")"
}

// Yield returns the next BatchSize examples as gomlx tensors for the gomlx
// Dataset interface. Once the epoch is exhausted it returns io.EOF.
func (d *MRIDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if d.cursor >= d.Len() {
		return nil, nil, nil, io.EOF
	}
	size := d.BatchSize
	if size <= 0 {
		size = 32
	}
	end := d.cursor + size
	if end > d.Len() {
		end = d.Len()
	}
	indices := make([]int, 0, end-d.cursor)
	for i := d.cursor; i < end; i++ {
		indices = append(indices, i)
	}
	d.cursor = end

	in, lab, err := d.Tensors(indices)
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, []*tensors.Tensor{in}, []*tensors.Tensor{lab}, nil
}

// Restart rewinds the epoch cursor for the gomlx Dataset interface.
func (d *MRIDataset) Restart() error {
	d.cursor = 0
	return nil
}
