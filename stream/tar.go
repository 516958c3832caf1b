package stream

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
)

// Source is one shard opened for reading. Whoever consumes a Source owns
// its Reader and must close it; ExpandTar does so for every source it
// receives.
type Source struct {
	URL    string
	Reader io.ReadCloser
}

// OpenShards opens each shard path in turn. A shard that fails to open is
// reported to the handler and skipped.
func OpenShards(urls iter.Seq[string], h Handler) iter.Seq[Source] {
	return func(yield func(Source) bool) {
		for url := range urls {
			f, err := os.Open(url)
			if err != nil {
				if !h(fmt.Errorf("failed to open shard %s: %w", url, err)) {
					return
				}
				continue
			}
			if !yield(Source{URL: url, Reader: f}) {
				return
			}
		}
	}
}

// ExpandTar walks each source as a tar archive and yields every regular
// file entry. Shards named .tar.gz or .tgz are unwrapped transparently. A
// read error abandons the rest of that shard after consulting the handler
// and the stream moves on to the next source.
func ExpandTar(srcs iter.Seq[Source], h Handler) iter.Seq[FileRecord] {
	return func(yield func(FileRecord) bool) {
		for src := range srcs {
			if !expandOne(src, h, yield) {
				return
			}
		}
	}
}

// expandOne reads a single shard to exhaustion. It reports false when the
// whole stream should end, either because the consumer stopped or the
// handler demanded it.
func expandOne(src Source, h Handler, yield func(FileRecord) bool) bool {
	defer src.Reader.Close()
	var r io.Reader = src.Reader
	if strings.HasSuffix(src.URL, ".gz") || strings.HasSuffix(src.URL, ".tgz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return h(fmt.Errorf("failed to open gzip shard %s: %w", src.URL, err))
		}
		defer gz.Close()
		r = gz
	}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return true
		}
		if err != nil {
			return h(fmt.Errorf("failed to read shard %s: %w", src.URL, err))
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return h(fmt.Errorf("failed to read %s from shard %s: %w", hdr.Name, src.URL, err))
		}
		if !yield(FileRecord{URL: src.URL, Name: hdr.Name, Data: data}) {
			return false
		}
	}
}
