package stream

import "strings"

// This file defines the record types flowing through a shard pipeline and
// the key parsing that groups archive entries into samples.
//
// A shard is a tar archive whose entries are named <prefix>.<extension>;
// every entry sharing a prefix belongs to one training sample. Pipelines
// are built from iter.Seq transforms so nothing is read from disk until a
// consumer pulls on the final sequence.

// FileRecord is one file lifted out of a shard archive.
type FileRecord struct {
	URL  string // shard the record came from
	Name string // entry path inside the shard
	Data []byte
}

// Sample is one logical training record: every entry of a shard that shares
// a key prefix, indexed by lower-cased extension.
type Sample struct {
	Key  string
	URL  string
	Data map[string][]byte
}

// Has reports whether the sample carries at least one of the extensions.
func (s Sample) Has(exts ...string) bool {
	for _, ext := range exts {
		if _, ok := s.Data[ext]; ok {
			return true
		}
	}
	return false
}

// First returns the payload of the first extension present.
func (s Sample) First(exts ...string) ([]byte, bool) {
	for _, ext := range exts {
		if data, ok := s.Data[ext]; ok {
			return data, true
		}
	}
	return nil, false
}

// splitKey splits an entry path into its grouping prefix and extension. The
// prefix runs through the first dot of the basename, the extension is
// everything after it, further dots included ("a/b.seg.json" splits into
// "a/b" and "seg.json"). Dotless names and names whose basename starts with
// a dot do not group.
func splitKey(name string) (prefix, ext string, ok bool) {
	base := name
	dir := ""
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		dir, base = name[:i+1], name[i+1:]
	}
	dot := strings.IndexByte(base, '.')
	if dot <= 0 {
		return "", "", false
	}
	return dir + base[:dot], base[dot+1:], true
}
