package samples

import (
	"fmt"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// Stack concatenates equally shaped Float32 tensors along a new leading
// axis, turning per-sample tensors into one batch tensor.
func Stack(parts []*tensors.Tensor) (*tensors.Tensor, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("nothing to stack")
	}
	base := parts[0].Shape()
	if base.DType != dtypes.Float32 {
		return nil, fmt.Errorf("can only stack Float32 tensors, got %s", base.DType)
	}
	flat := make([]float32, 0, len(parts)*base.Size())
	for i, part := range parts {
		shape := part.Shape()
		if shape.DType != base.DType || !slices.Equal(shape.Dimensions, base.Dimensions) {
			return nil, fmt.Errorf("tensor %d has shape %s, want %s", i, shape, base)
		}
		part.ConstFlatData(func(partAny any) {
			flat = append(flat, partAny.([]float32)...)
		})
	}
	dims := append([]int{len(parts)}, base.Dimensions...)
	return tensors.FromFlatDataAndDimensions(flat, dims...), nil
}

// TokenTensors flattens an encoding into its id and mask tensors, both
// Int32 of shape [rows, cols].
func TokenTensors(enc *Encoding) (ids, mask *tensors.Tensor, err error) {
	rows := len(enc.IDs)
	if rows == 0 || len(enc.Mask) != rows {
		return nil, nil, fmt.Errorf("encoding has %d id rows and %d mask rows", rows, len(enc.Mask))
	}
	cols := len(enc.IDs[0])
	flatIDs := make([]int32, 0, rows*cols)
	flatMask := make([]int32, 0, rows*cols)
	for i := range enc.IDs {
		if len(enc.IDs[i]) != cols || len(enc.Mask[i]) != cols {
			return nil, nil, fmt.Errorf("ragged encoding at row %d: %d ids, %d mask entries, want %d",
				i, len(enc.IDs[i]), len(enc.Mask[i]), cols)
		}
		flatIDs = append(flatIDs, enc.IDs[i]...)
		flatMask = append(flatMask, enc.Mask[i]...)
	}
	return tensors.FromFlatDataAndDimensions(flatIDs, rows, cols),
		tensors.FromFlatDataAndDimensions(flatMask, rows, cols), nil
}
