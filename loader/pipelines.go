package loader

import (
	"fmt"
	"image"
	"iter"
	"math/rand"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"k8s.io/klog/v2"

	"github.com/webshard/webshard/samples"
	"github.com/webshard/webshard/shards"
	"github.com/webshard/webshard/stream"
)

// The three stream kinds share one pipeline skeleton: resolve shards,
// shuffle-and-split them (or resample), read samples, shuffle those,
// assemble tensors, cap each worker at its planned batch count. The kinds
// differ only in how a raw sample becomes tensors, which the assemble
// callback captures.

// NewCaptionedData builds the web-scale caption pipeline: samples hold a
// base64 png and a txt caption.
func NewCaptionedData(cfg *Config, tok samples.Tokenizer, proc samples.ImageProcessor, epoch int) (*DataInfo, error) {
	c := cfg.withDefaults()
	return newStreamData(&c, "captioned", c.CaptionedShards, c.CaptionedSamples, c.CaptionedBatch, epoch,
		func(src iter.Seq[stream.Sample], rng *rand.Rand) iter.Seq[batch] {
			return captionBatches(&c, tok, proc, rng, c.CaptionedBatch, src, decodeBase64Pair)
		})
}

// NewCuratedData builds the curated caption pipeline, identical to the
// captioned one except images arrive as ordinary encoded files.
func NewCuratedData(cfg *Config, tok samples.Tokenizer, proc samples.ImageProcessor, epoch int) (*DataInfo, error) {
	c := cfg.withDefaults()
	return newStreamData(&c, "curated", c.CuratedShards, c.CuratedSamples, c.CuratedBatch, epoch,
		func(src iter.Seq[stream.Sample], rng *rand.Rand) iter.Seq[batch] {
			return captionBatches(&c, tok, proc, rng, c.CuratedBatch, src, decodeRawPair)
		})
}

// NewInterleavedData builds the interleaved-document pipeline: samples
// hold a json document mixing sentences and matched images.
func NewInterleavedData(cfg *Config, tok samples.Tokenizer, proc samples.ImageProcessor, epoch int) (*DataInfo, error) {
	c := cfg.withDefaults()
	return newStreamData(&c, "interleaved", c.InterleavedShards, c.InterleavedSamples, c.InterleavedBatch, epoch,
		func(src iter.Seq[stream.Sample], rng *rand.Rand) iter.Seq[batch] {
			asm := &samples.InterleavedAssembler{Tok: tok, Proc: proc, SimThreshold: c.SimThreshold, Rng: rng}
			docs := stream.Map(src, func(s stream.Sample) (*samples.DocTensors, error) {
				raw, ok := s.Data["json"]
				if !ok {
					return nil, fmt.Errorf("sample %s has no json document", s.Key)
				}
				return asm.Assemble(raw)
			}, stream.LogAndContinue)
			return stream.Map(stream.Batched(docs, c.InterleavedBatch, false),
				func(ds []*samples.DocTensors) (batch, error) {
					images, ids, mask, err := samples.BatchDocs(ds)
					if err != nil {
						return batch{}, err
					}
					return batch{inputs: []*tensors.Tensor{images, ids, mask}}, nil
				}, stream.LogAndContinue)
		})
}

// newStreamData wires the shared skeleton. makeBatches receives the
// shuffled sample stream of one worker plus that worker's RNG and must
// return the finished batch stream; the worker cap is applied here.
func newStreamData(c *Config, name, pattern string, override, batchSize, epoch int,
	makeBatches func(src iter.Seq[stream.Sample], rng *rand.Rand) iter.Seq[batch]) (*DataInfo, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%s: no shard pattern configured", name)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("%s: batch size must be positive", name)
	}
	set, err := shards.FromPattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	numSamples := override
	if numSamples == 0 {
		if !set.Sized {
			return nil, fmt.Errorf("%s: dataset length must be specified; shards carry no size sidecar and no explicit sample count is configured", name)
		}
		numSamples = set.Samples
	}
	if !c.Resampled {
		if err := shards.CheckSplit(len(set.URLs), c.WorldSize, c.Workers); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	plan := PlanBatches(numSamples, batchSize, c.WorldSize, c.Workers, c.FloorBatches)
	klog.V(1).Infof("%s: %d shards, %d samples per epoch, %d batches (%d per worker)",
		name, len(set.URLs), plan.NumSamples, plan.NumBatches, plan.WorkerBatches)

	shared := stream.NewSharedEpoch(epoch)
	l := newLoader(name, c.Workers, func(worker int) iter.Seq[batch] {
		return func(yield func(batch) bool) {
			workerSeeds := stream.SeedPolicy{Base: -1, Rank: c.Rank, Worker: worker, Workers: c.Workers}
			rng := rand.New(rand.NewSource(workerSeeds.Seed(int64(shared.Get()))))

			urls := shardStream(c, set, shared, worker)
			sampleShuffle := &stream.Detshuffle[stream.Sample]{
				Buf:     stream.SampleShuffleBuffer,
				Initial: stream.SampleShuffleInitial,
				Seeds:   workerSeeds,
				Epoch:   stream.EpochTracker{Shared: shared},
			}
			shuffled := sampleShuffle.Run(stream.Samples(urls, stream.LogAndContinue))
			for b := range stream.Limit(makeBatches(shuffled, rng), plan.WorkerBatches) {
				if !yield(b) {
					return
				}
			}
		}
	})
	l.NumBatches = plan.NumBatches
	l.NumSamples = plan.NumSamples
	return &DataInfo{
		Dataset:    l,
		Epoch:      shared,
		NumBatches: plan.NumBatches,
		NumSamples: plan.NumSamples,
	}, nil
}

// shardStream gives one worker its per-epoch shard order: either endless
// resampled draws, or the aligned shuffle of the full list split by node
// and then by worker.
func shardStream(c *Config, set *shards.Set, shared *stream.SharedEpoch, worker int) iter.Seq[string] {
	if c.Resampled {
		r := &shards.Resampler{
			URLs:  set.URLs,
			Seeds: stream.SeedPolicy{Base: -1, Rank: c.Rank, Worker: worker, Workers: c.Workers},
			Epoch: stream.EpochTracker{Shared: shared},
		}
		return r.Shards()
	}
	shuffle := &stream.Detshuffle[string]{
		Buf:     stream.ShardShuffleBuffer,
		Initial: stream.ShardShuffleInitial,
		Seeds:   stream.SeedPolicy{Base: c.Seed, Rank: c.Rank, Worker: worker, Workers: c.Workers},
		Epoch:   stream.EpochTracker{Shared: shared},
	}
	urls := shuffle.Run(slices.Values(set.URLs))
	urls = shards.SplitByNode(urls, c.Rank, c.WorldSize)
	return shards.SplitByWorker(urls, worker, c.Workers)
}

// captionBatches is the caption tail shared by the captioned and curated
// kinds: filter samples missing their keys, decode, batch raw pairs, then
// assemble each batch into tensors.
func captionBatches(c *Config, tok samples.Tokenizer, proc samples.ImageProcessor, rng *rand.Rand,
	batchSize int, src iter.Seq[stream.Sample], decode func(stream.Sample) (samples.Pair, error)) iter.Seq[batch] {
	asm := &samples.CaptionAssembler{Tok: tok, Proc: proc, Format: c.Format, Rng: rng}
	usable := stream.Filter(src, func(s stream.Sample) bool {
		return s.Has("txt") && s.Has("png", "jpg", "jpeg")
	})
	pairs := stream.Map(usable, decode, stream.LogAndContinue)
	return stream.Map(stream.Batched(pairs, batchSize, false), func(ps []samples.Pair) (batch, error) {
		images, ids, mask, err := asm.Assemble(ps)
		if err != nil {
			return batch{}, err
		}
		return batch{inputs: []*tensors.Tensor{images, ids, mask}}, nil
	}, stream.LogAndContinue)
}

// decodeBase64Pair reads a web-scale caption sample: png entries hold
// base64 text, other image entries plain bytes.
func decodeBase64Pair(s stream.Sample) (samples.Pair, error) {
	var (
		img image.Image
		err error
	)
	if raw, ok := s.Data["png"]; ok {
		img, err = samples.DecodeBase64Image(raw)
	} else {
		raw, _ := s.First("jpg", "jpeg")
		img, err = samples.DecodeImage(raw)
	}
	if err != nil {
		return samples.Pair{}, fmt.Errorf("sample %s: %w", s.Key, err)
	}
	return samples.Pair{Image: img, Text: string(s.Data["txt"])}, nil
}

// decodeRawPair reads a curated caption sample with plainly encoded
// images.
func decodeRawPair(s stream.Sample) (samples.Pair, error) {
	raw, _ := s.First("jpg", "png", "jpeg")
	img, err := samples.DecodeImage(raw)
	if err != nil {
		return samples.Pair{}, fmt.Errorf("sample %s: %w", s.Key, err)
	}
	return samples.Pair{Image: img, Text: string(s.Data["txt"])}, nil
}
