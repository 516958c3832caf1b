package loader

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInstruct is an indexed dataset whose items are their own indices
// and whose collate packs them into one Float32 vector per batch.
type fakeInstruct struct {
	n      int
	failAt int // index whose load fails; -1 disables
}

func (f *fakeInstruct) Len() int { return f.n }

func (f *fakeInstruct) At(i int) (any, error) {
	if i == f.failAt {
		return nil, fmt.Errorf("item %d is broken", i)
	}
	if i < 0 || i >= f.n {
		return nil, fmt.Errorf("index %d out of range", i)
	}
	return i, nil
}

func (f *fakeInstruct) Collate(items []any) (inputs, labels []*tensors.Tensor, err error) {
	vals := make([]float32, len(items))
	for j, item := range items {
		vals[j] = float32(item.(int))
	}
	return []*tensors.Tensor{tensors.FromFlatDataAndDimensions(vals, len(items))}, nil, nil
}

// fakeOpener returns datasets with fixed lengths per group name and
// records the specs it got.
type fakeOpener struct {
	lens  map[string]int
	specs map[string]GroupSpec
}

func (o *fakeOpener) open(spec GroupSpec) (InstructDataset, error) {
	if o.specs == nil {
		o.specs = map[string]GroupSpec{}
	}
	o.specs[spec.Name] = spec
	n, ok := o.lens[spec.Name]
	if !ok {
		return nil, fmt.Errorf("unexpected group %s", spec.Name)
	}
	return &fakeInstruct{n: n, failAt: -1}, nil
}

func metaFiles(n string) SourceFiles {
	return SourceFiles{Meta: []string{n + ".json"}, Images: []string{n + ".img"}, Configs: []string{n + ".cfg"}}
}

// TestInstructMedianTarget defaults the shared draw count to the median
// group length when no explicit count is configured.
func TestInstructMedianTarget(t *testing.T) {
	cfg := &Config{
		InstructBatch: 5,
		Instruct: InstructSources{
			InContext: metaFiles("ic"),
			ImageText: metaFiles("it"),
			TextOnly:  metaFiles("to"),
		},
	}
	opener := &fakeOpener{lens: map[string]int{"in_context": 10, "image_text": 100, "text_only": 20}}

	train, val, err := NewInstructData(cfg, opener.open, 0)
	require.NoError(t, err)
	assert.Empty(t, val)
	require.Len(t, train, 3)

	for _, info := range train {
		assert.Equal(t, 20, info.Sampler.Len(), "%s should draw the median count", info.Dataset.Name())
		assert.Equal(t, 4, info.NumBatches)
		assert.Equal(t, 20, info.NumSamples)
	}
}

// TestInstructSingleGroupPermutes uses a plain permutation when only one
// group exists.
func TestInstructSingleGroupPermutes(t *testing.T) {
	cfg := &Config{
		InstructBatch: 2,
		Instruct:      InstructSources{ImageText: metaFiles("it")},
	}
	opener := &fakeOpener{lens: map[string]int{"image_text": 10}}

	train, _, err := NewInstructData(cfg, opener.open, 0)
	require.NoError(t, err)
	require.Len(t, train, 1)

	idx := train[0].Sampler.Indices(0)
	require.Len(t, idx, 10)
	sorted := slices.Clone(idx)
	slices.Sort(sorted)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, sorted)
}

// TestInstructTargetTooLarge refuses a draw count no group can satisfy
// without repeating more than sampling with replacement already does.
func TestInstructTargetTooLarge(t *testing.T) {
	cfg := &Config{
		InstructBatch:   2,
		InstructSamples: 200,
		Instruct: InstructSources{
			InContext: metaFiles("ic"),
			ImageText: metaFiles("it"),
		},
	}
	opener := &fakeOpener{lens: map[string]int{"in_context": 50, "image_text": 100}}

	_, _, err := NewInstructData(cfg, opener.open, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds the largest")
}

// TestInstructSpecMerging appends the past lists behind the current ones
// and tags each metadata file's origin.
func TestInstructSpecMerging(t *testing.T) {
	files := metaFiles("ic")
	files.PastMeta = []string{"old.json"}
	files.PastImages = []string{"old.img"}
	files.PastConfigs = []string{"old.cfg"}
	cfg := &Config{
		InstructBatch: 2,
		Instruct:      InstructSources{InContext: files},
	}
	opener := &fakeOpener{lens: map[string]int{"in_context": 4}}

	_, _, err := NewInstructData(cfg, opener.open, 0)
	require.NoError(t, err)

	spec := opener.specs["in_context"]
	assert.Equal(t, []string{"ic.json", "old.json"}, spec.Meta)
	assert.Equal(t, []string{"ic.img", "old.img"}, spec.Images)
	assert.Equal(t, []string{"ic.cfg", "old.cfg"}, spec.Configs)
	assert.Equal(t, []string{"new", "past"}, spec.Statuses)
}

// TestInstructDistributedCoverage wraps samplers in the rank slicer and
// keeps the rank shares covering the whole permutation.
func TestInstructDistributedCoverage(t *testing.T) {
	build := func(rank int) *DataInfo {
		cfg := &Config{
			InstructBatch: 2,
			WorldSize:     2,
			Rank:          rank,
			Distributed:   true,
			Instruct:      InstructSources{ImageText: metaFiles("it")},
		}
		opener := &fakeOpener{lens: map[string]int{"image_text": 10}}
		train, _, err := NewInstructData(cfg, opener.open, 0)
		require.NoError(t, err)
		require.Len(t, train, 1)
		return train[0]
	}

	r0, r1 := build(0), build(1)
	assert.Equal(t, 5, r0.Sampler.Len())

	seen := map[int]bool{}
	for _, i := range append(r0.Sampler.Indices(0), r1.Sampler.Indices(0)...) {
		seen[i] = true
	}
	assert.Len(t, seen, 10, "rank shares should cover every index")
}

// TestInstructLoaderYields runs one group's loader for an epoch: whole
// batches dealt across workers, ragged tail dropped, counts matching the
// metadata.
func TestInstructLoaderYields(t *testing.T) {
	cfg := &Config{
		InstructBatch: 4,
		Workers:       2,
		Instruct:      InstructSources{TextOnly: metaFiles("to")},
	}
	opener := &fakeOpener{lens: map[string]int{"text_only": 14}}

	train, _, err := NewInstructData(cfg, opener.open, 0)
	require.NoError(t, err)
	require.Len(t, train, 1)
	info := train[0]
	assert.Equal(t, "instruct/text_only", info.Dataset.Name())
	assert.Equal(t, 3, info.NumBatches, "14 samples at batch 4 give 3 whole batches")
	assert.Equal(t, 12, info.NumSamples)

	elements, batches, err := CountSamples(info.Dataset)
	require.NoError(t, err)
	assert.Equal(t, 3, batches)
	assert.Equal(t, 12, elements)
}

// TestInstructEpochReshuffle yields different batch contents after the
// epoch clock moves.
func TestInstructEpochReshuffle(t *testing.T) {
	cfg := &Config{
		InstructBatch: 5,
		Instruct:      InstructSources{TextOnly: metaFiles("to")},
	}
	opener := &fakeOpener{lens: map[string]int{"text_only": 10}}

	train, _, err := NewInstructData(cfg, opener.open, 0)
	require.NoError(t, err)
	info := train[0]

	first := info.Sampler.Indices(0)
	info.SetEpoch(1)
	second := info.Sampler.Indices(int64(info.Epoch.Get()))
	assert.NotEqual(t, first, second)
}

// TestInstructLoadFailure surfaces a broken item through Yield and ends
// that worker's pass.
func TestInstructLoadFailure(t *testing.T) {
	cfg := &Config{
		InstructBatch: 2,
		Instruct:      InstructSources{ImageText: metaFiles("it")},
	}
	broken := &fakeInstruct{n: 8, failAt: 3}
	open := func(GroupSpec) (InstructDataset, error) { return broken, nil }

	train, _, err := NewInstructData(cfg, open, 0)
	require.NoError(t, err)

	var failures int
	for {
		_, _, _, err := train[0].Dataset.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			failures++
			assert.Contains(t, err.Error(), "failed to load item")
		}
	}
	assert.Equal(t, 1, failures)
}

// TestInstructConfigErrors rejects missing collaborators and bad
// configuration outright.
func TestInstructConfigErrors(t *testing.T) {
	_, _, err := NewInstructData(&Config{InstructBatch: 2}, nil, 0)
	require.Error(t, err)

	opener := &fakeOpener{lens: map[string]int{"in_context": 4}}
	_, _, err = NewInstructData(&Config{Instruct: InstructSources{InContext: metaFiles("ic")}}, opener.open, 0)
	require.Error(t, err, "zero batch size")

	_, _, err = NewInstructData(&Config{InstructBatch: 2}, opener.open, 0)
	require.Error(t, err, "no groups configured")

	failing := func(GroupSpec) (InstructDataset, error) { return nil, errors.New("cannot open") }
	_, _, err = NewInstructData(&Config{InstructBatch: 2, Instruct: InstructSources{InContext: metaFiles("ic")}}, failing, 0)
	require.Error(t, err)
}

// TestInstructValLoaders builds the validation side from its own groups
// and counts.
func TestInstructValLoaders(t *testing.T) {
	cfg := &Config{
		InstructBatch:      2,
		InstructValSamples: 4,
		Instruct: InstructSources{
			ImageText:    metaFiles("it"),
			ValInContext: metaFiles("vic"),
			ValImageText: metaFiles("vit"),
		},
	}
	opener := &fakeOpener{lens: map[string]int{"image_text": 10, "in_context_val": 6, "image_text_val": 8}}

	train, val, err := NewInstructData(cfg, opener.open, 0)
	require.NoError(t, err)
	require.Len(t, train, 1)
	require.Len(t, val, 2)
	for _, info := range val {
		assert.Equal(t, 4, info.Sampler.Len(), "val groups draw the configured count")
	}
}
