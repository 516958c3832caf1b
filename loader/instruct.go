package loader

import (
	"fmt"
	"iter"
	"math"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"

	"github.com/webshard/webshard/stream"
)

// Instruction tuning consumes indexed datasets rather than shard streams:
// a sampler picks indices per epoch, worker goroutines load items and the
// dataset's own collate turns them into tensors. The heavy lifting (meta
// parsing, image lookup, collation) lives in the dataset collaborator;
// this file only orchestrates it.

// InstructDataset is the contract an instruction tuning dataset
// implements. Items stay opaque here; Collate turns a batch of them into
// model tensors.
type InstructDataset interface {
	Len() int
	At(i int) (any, error)
	Collate(items []any) (inputs, labels []*tensors.Tensor, err error)
}

// GroupSpec names one source group to open: parallel lists of metadata,
// image and task-config files, plus a status tag per metadata file
// distinguishing current data from replayed ("past") data.
type GroupSpec struct {
	Name     string
	Meta     []string
	Images   []string
	Configs  []string
	Statuses []string
}

// InstructOpener loads one source group.
type InstructOpener func(spec GroupSpec) (InstructDataset, error)

// NewInstructData builds one loader per configured source group, training
// and validation. When several groups are present each epoch draws the
// same target count from every one of them with replacement; a single
// group is permuted without replacement instead. The target defaults to
// the median group length and must not exceed the largest group.
func NewInstructData(cfg *Config, open InstructOpener, epoch int) (train, val []*DataInfo, err error) {
	if open == nil {
		return nil, nil, fmt.Errorf("instruct: no dataset opener provided")
	}
	c := cfg.withDefaults()
	if c.InstructBatch < 1 {
		return nil, nil, fmt.Errorf("instruct: batch size must be positive")
	}

	names, dsets, err := openGroups(open, []namedFiles{
		{"in_context", c.Instruct.InContext},
		{"image_text", c.Instruct.ImageText},
		{"text_only", c.Instruct.TextOnly},
		{"video_text", c.Instruct.VideoText},
	})
	if err != nil {
		return nil, nil, err
	}
	if len(dsets) == 0 {
		return nil, nil, fmt.Errorf("instruct: no source groups configured")
	}
	train, err = buildInstructLoaders(&c, names, dsets, c.InstructSamples, epoch)
	if err != nil {
		return nil, nil, err
	}

	valNames, valDsets, err := openGroups(open, []namedFiles{
		{"in_context_val", c.Instruct.ValInContext},
		{"image_text_val", c.Instruct.ValImageText},
	})
	if err != nil {
		return nil, nil, err
	}
	if len(valDsets) > 0 {
		val, err = buildInstructLoaders(&c, valNames, valDsets, c.InstructValSamples, epoch)
		if err != nil {
			return nil, nil, err
		}
	}
	return train, val, nil
}

type namedFiles struct {
	name  string
	files SourceFiles
}

func openGroups(open InstructOpener, groups []namedFiles) (names []string, dsets []InstructDataset, err error) {
	for _, g := range groups {
		if g.files.empty() {
			continue
		}
		ds, err := open(g.files.spec(g.name))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s sources: %w", g.name, err)
		}
		names = append(names, g.name)
		dsets = append(dsets, ds)
	}
	return names, dsets, nil
}

func buildInstructLoaders(c *Config, names []string, dsets []InstructDataset, target, epoch int) ([]*DataInfo, error) {
	lens := make([]int, len(dsets))
	maxLen := 0
	for i, ds := range dsets {
		lens[i] = ds.Len()
		maxLen = max(maxLen, lens[i])
	}
	if target == 0 {
		target = medianLen(lens)
	}
	if target > maxLen {
		return nil, fmt.Errorf("instruct: target sample count %d exceeds the largest source group (%d samples)", target, maxLen)
	}

	infos := make([]*DataInfo, 0, len(dsets))
	for i, ds := range dsets {
		var smp Sampler
		if len(dsets) == 1 {
			smp = NewRandomSampler(ds.Len(), c.Seed)
		} else {
			// one draw stream per group, aligned across ranks
			smp = NewReplacementSampler(ds.Len(), target, c.Seed+int64(i))
		}
		if c.Distributed {
			smp = &DistributedProxySampler{Base: smp, WorldSize: c.WorldSize, Rank: c.Rank}
		}
		shared := stream.NewSharedEpoch(epoch)
		l := newLoader("instruct/"+names[i], c.Workers,
			instructPass(ds, smp, shared, c.InstructBatch, c.Workers))
		perRank := smp.Len() / c.InstructBatch // ragged tail dropped
		l.NumBatches = perRank
		l.NumSamples = perRank * c.InstructBatch * c.WorldSize
		klog.V(1).Infof("instruct/%s: %d items, drawing %d per epoch in %d batches",
			names[i], ds.Len(), smp.Len(), perRank)
		infos = append(infos, &DataInfo{
			Dataset:    l,
			Epoch:      shared,
			Sampler:    smp,
			NumBatches: l.NumBatches,
			NumSamples: l.NumSamples,
		})
	}
	return infos, nil
}

// instructPass deals whole batches of the epoch's index list round robin
// across workers. Loading or collation failures surface through Yield
// rather than being skipped: indexed datasets are curated, so a broken
// item is a bug, not dirt to route around.
func instructPass(ds InstructDataset, smp Sampler, shared *stream.SharedEpoch, batchSize, workers int) func(worker int) iter.Seq[batch] {
	return func(worker int) iter.Seq[batch] {
		return func(yield func(batch) bool) {
			idx := smp.Indices(int64(shared.Get()))
			numBatches := len(idx) / batchSize
			for bi := worker; bi < numBatches; bi += workers {
				cut := idx[bi*batchSize : (bi+1)*batchSize]
				items := make([]any, len(cut))
				for j, i := range cut {
					item, err := ds.At(i)
					if err != nil {
						yield(batch{err: fmt.Errorf("failed to load item %d: %w", i, err)})
						return
					}
					items[j] = item
				}
				inputs, labels, err := ds.Collate(items)
				if err != nil {
					yield(batch{err: fmt.Errorf("failed to collate batch: %w", err)})
					return
				}
				if !yield(batch{inputs: inputs, labels: labels}) {
					return
				}
			}
		}
	}
}

// medianLen is the rounded median of the group lengths, the default
// target when configuration does not pin one.
func medianLen(lens []int) int {
	xs := make([]float64, len(lens))
	for i, l := range lens {
		xs[i] = float64(l)
	}
	sort.Float64s(xs)
	return int(math.Round(stat.Quantile(0.5, stat.LinInterp, xs, nil)))
}
