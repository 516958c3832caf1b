package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/webshard/webshard/shards"
	"github.com/webshard/webshard/stream"
)

// shardstat scans a set of webdataset shards, counts the samples in each
// and writes the sizes.json sidecar the loaders read at startup. It also
// reports corrupt members, so it doubles as a shard linter after a
// download or a re-pack.

var args struct {
	workers int
	out     string
	plotOut string
	strict  bool
	verbose bool
}

// shardStat is one shard's scan result.
type shardStat struct {
	url     string
	samples int
	bytes   int64
	errs    int
}

func main() {
	cmd := &cobra.Command{
		Use:   "shardstat PATTERN...",
		Short: "Count samples per shard and write the sizes.json sidecar",
		Long: `
Expands each brace pattern ("shard-{000000..000099}.tar"), scans the
matching shards and writes a sizes.json sidecar next to them mapping
shard name to sample count. Loaders use the sidecar to plan epochs
without touching the shards.
	`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, patterns []string) error {
			return run(patterns)
		},
	}
	cmd.Flags().IntVarP(&args.workers, "workers", "w", runtime.NumCPU(), "shards scanned in parallel")
	cmd.Flags().StringVarP(&args.out, "out", "o", "", "sidecar path (default: sizes.json next to the first shard)")
	cmd.Flags().StringVar(&args.plotOut, "plot", "", "write a samples-per-shard histogram PNG to this path")
	cmd.Flags().BoolVar(&args.strict, "strict", false, "exit nonzero if any shard had unreadable members")
	cmd.Flags().BoolVarP(&args.verbose, "verbose", "v", false, "log per-shard counts and every member error")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(patterns []string) error {
	if args.verbose {
		log.SetLevel(log.DebugLevel)
	}
	var urls []string
	for _, p := range patterns {
		urls = append(urls, shards.Expand(p)...)
	}
	if len(urls) == 0 {
		return fmt.Errorf("no shards matched")
	}
	workers := max(1, args.workers)
	log.Info("scanning shards", "shards", len(urls), "workers", workers)

	stats := make([]shardStat, len(urls))
	bar := progressbar.Default(int64(len(urls)), "scanning")
	jobs := make(chan int)
	var wg sync.WaitGroup
	var memberErrs atomic.Int64
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				stats[i] = scanShard(urls[i], &memberErrs)
				_ = bar.Add(1)
			}
		}()
	}
	for i := range urls {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	_ = bar.Finish()

	var total int
	var bytes int64
	minS, maxS := stats[0].samples, stats[0].samples
	for _, s := range stats {
		total += s.samples
		bytes += s.bytes
		minS = min(minS, s.samples)
		maxS = max(maxS, s.samples)
	}
	log.Info("scan complete",
		"samples", humanize.Comma(int64(total)),
		"size", humanize.Bytes(uint64(bytes)),
		"min", minS,
		"max", maxS,
		"errors", memberErrs.Load())

	if err := writeSidecar(urls, stats); err != nil {
		return err
	}
	if args.plotOut != "" {
		if err := writeHistogram(stats); err != nil {
			return err
		}
	}
	if args.strict && memberErrs.Load() > 0 {
		return fmt.Errorf("%d unreadable members across %d shards", memberErrs.Load(), len(urls))
	}
	return nil
}

// scanShard counts the samples in one shard, tolerating unreadable
// members the same way the loaders do.
func scanShard(url string, memberErrs *atomic.Int64) shardStat {
	st := shardStat{url: url}
	if info, err := os.Stat(url); err == nil {
		st.bytes = info.Size()
	}
	record := func(err error) bool {
		st.errs++
		memberErrs.Add(1)
		log.Debug("unreadable member", "shard", filepath.Base(url), "err", err)
		return true
	}
	for range stream.Samples(slices.Values([]string{url}), record) {
		st.samples++
	}
	log.Debug("scanned", "shard", filepath.Base(url), "samples", st.samples, "errors", st.errs)
	return st
}

// writeSidecar writes the basename-to-count map the loaders read.
func writeSidecar(urls []string, stats []shardStat) error {
	out := args.out
	if out == "" {
		out = filepath.Join(filepath.Dir(urls[0]), "sizes.json")
	}
	sizes := make(map[string]int, len(stats))
	for _, s := range stats {
		sizes[filepath.Base(s.url)] = s.samples
	}
	raw, err := json.MarshalIndent(sizes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sidecar: %w", err)
	}
	if err := os.WriteFile(out, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write sidecar: %w", err)
	}
	log.Info("wrote sidecar", "path", out, "shards", len(sizes))
	return nil
}

// writeHistogram saves a samples-per-shard histogram, a quick check that
// the shards are evenly packed before a training run divides them up.
func writeHistogram(stats []shardStat) error {
	vals := make(plotter.Values, len(stats))
	for i, s := range stats {
		vals[i] = float64(s.samples)
	}
	p := plot.New()
	p.Title.Text = "Samples per shard"
	p.X.Label.Text = "samples"
	p.Y.Label.Text = "shards"
	h, err := plotter.NewHist(vals, 32)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	p.Add(h)
	if err := p.Save(8*vg.Inch, 6*vg.Inch, args.plotOut); err != nil {
		return fmt.Errorf("failed to save histogram: %w", err)
	}
	log.Info("wrote histogram", "path", args.plotOut)
	return nil
}
