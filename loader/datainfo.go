package loader

import (
	"github.com/gomlx/gomlx/pkg/ml/train"

	"github.com/webshard/webshard/stream"
)

// DataInfo bundles one built pipeline: the dataset the trainer iterates,
// the epoch clock its stages read, the sampler when one exists
// (instruction tuning only) and the planned epoch accounting.
type DataInfo struct {
	Dataset train.Dataset
	Epoch   *stream.SharedEpoch
	Sampler Sampler

	NumBatches int
	NumSamples int
}

// SetEpoch moves the pipeline to epoch. Call between epochs, before
// resetting the dataset, so the next pass reshuffles with the new seeds.
func (d *DataInfo) SetEpoch(epoch int) {
	if d.Epoch != nil {
		d.Epoch.Set(epoch)
	}
}
