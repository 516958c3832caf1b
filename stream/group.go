package stream

import (
	"fmt"
	"iter"
	"strings"
)

// GroupByKey reassembles file records into samples. Records arrive in
// archive order, so the current sample is flushed when the key prefix
// changes or when an extension repeats under the same prefix. The repeat
// rule matters at shard boundaries: prefixes are not unique across shards
// in every dataset, and a shard ending with the same prefix the next one
// starts with must produce two samples, not an error. Extensions are
// lower-cased; entries whose name does not parse go to the handler; empty
// samples are discarded silently.
func GroupByKey(recs iter.Seq[FileRecord], h Handler) iter.Seq[Sample] {
	return func(yield func(Sample) bool) {
		var cur Sample
		for rec := range recs {
			prefix, ext, ok := splitKey(rec.Name)
			if !ok {
				if !h(fmt.Errorf("entry %s in shard %s has no grouping key", rec.Name, rec.URL)) {
					return
				}
				continue
			}
			ext = strings.ToLower(ext)
			_, repeat := cur.Data[ext]
			if cur.Key != prefix || repeat {
				if len(cur.Data) > 0 && !yield(cur) {
					return
				}
				cur = Sample{Key: prefix, URL: rec.URL, Data: make(map[string][]byte)}
			}
			cur.Data[ext] = rec.Data
		}
		if len(cur.Data) > 0 {
			yield(cur)
		}
	}
}

// Samples is the standard read path over a shard sequence: open each
// shard, expand its tar entries, regroup them into samples. Every failure
// along the way goes through the handler, so with a skipping handler no
// error here is fatal.
func Samples(urls iter.Seq[string], h Handler) iter.Seq[Sample] {
	return GroupByKey(ExpandTar(OpenShards(urls, h), h), h)
}
