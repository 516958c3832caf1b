package loader

import "github.com/webshard/webshard/samples"

// DefaultSimThreshold is the image-sentence match score below which
// interleaved images are dropped when the config leaves it unset.
const DefaultSimThreshold = 0.24

// Config collects everything the pipeline constructors need. One Config
// serves all dataset kinds; each constructor reads only its own fields
// plus the shared geometry.
type Config struct {
	// Shard patterns per stream kind, brace-expandable paths like
	// "data/shard-{000000..000999}.tar".
	CaptionedShards   string
	InterleavedShards string
	CuratedShards     string

	// Per-kind batch sizes (samples per batch per node).
	CaptionedBatch   int
	InterleavedBatch int
	CuratedBatch     int
	InstructBatch    int

	// Explicit per-epoch sample counts. For stream kinds zero means read
	// the shard size sidecar, and configuration must step in when no
	// sidecar exists. For instruction tuning zero targets the median
	// dataset length.
	CaptionedSamples   int
	InterleavedSamples int
	CuratedSamples     int
	InstructSamples    int
	InstructValSamples int

	// Distributed geometry: this process is node Rank of WorldSize and
	// runs Workers loader goroutines per pipeline.
	WorldSize int
	Rank      int
	Workers   int

	// Seed fixes shard shuffling across nodes. A negative seed derives
	// per-worker seeds instead, which breaks the partition alignment and
	// only suits single-node runs.
	Seed int64
	// Resampled draws shards with replacement instead of splitting the
	// shard list across nodes and workers.
	Resampled bool
	// FloorBatches rounds the batch plan down instead of up, trimming
	// the ragged tail instead of repeating samples.
	FloorBatches bool
	// SimThreshold drops interleaved images whose text match scores
	// lower; zero picks DefaultSimThreshold.
	SimThreshold float64
	// Format selects the caption prompt rendering.
	Format samples.PromptFormat
	// Distributed wraps instruction samplers in the rank slicer. Stream
	// kinds split by rank regardless.
	Distributed bool

	// Instruct lists the instruction tuning sources per group.
	Instruct InstructSources
}

// withDefaults returns a copy with the zero values every constructor
// assumes filled in.
func (c *Config) withDefaults() Config {
	out := *c
	if out.WorldSize < 1 {
		out.WorldSize = 1
	}
	if out.Workers < 1 {
		out.Workers = 1
	}
	if out.SimThreshold == 0 {
		out.SimThreshold = DefaultSimThreshold
	}
	return out
}

// InstructSources names the instruction tuning inputs per group kind. A
// group with no metadata files is skipped. Validation sources exist for
// the in-context and image-text groups only.
type InstructSources struct {
	InContext SourceFiles
	ImageText SourceFiles
	TextOnly  SourceFiles
	VideoText SourceFiles

	ValInContext SourceFiles
	ValImageText SourceFiles
}

// SourceFiles is one group's file lists: instruction metadata, image
// archives and task configs, each with an optional "past" set that gets
// merged in behind the current one.
type SourceFiles struct {
	Meta    []string
	Images  []string
	Configs []string

	PastMeta    []string
	PastImages  []string
	PastConfigs []string
}

func (f SourceFiles) empty() bool { return len(f.Meta) == 0 }

// spec merges the current and past lists into one GroupSpec, tagging each
// metadata file with its origin so the dataset can weight recent data
// differently from replayed data.
func (f SourceFiles) spec(name string) GroupSpec {
	spec := GroupSpec{
		Name:    name,
		Meta:    append(append([]string{}, f.Meta...), f.PastMeta...),
		Images:  append(append([]string{}, f.Images...), f.PastImages...),
		Configs: append(append([]string{}, f.Configs...), f.PastConfigs...),
	}
	for range f.Meta {
		spec.Statuses = append(spec.Statuses, "new")
	}
	for range f.PastMeta {
		spec.Statuses = append(spec.Statuses, "past")
	}
	return spec
}
