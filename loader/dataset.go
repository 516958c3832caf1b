package loader

import (
	"fmt"

	"github.com/webshard/webshard/samples"
)

// Kind names a dataset pipeline flavor.
type Kind int

const (
	// KindCaptioned streams web-scale caption shards with base64 pngs.
	KindCaptioned Kind = iota
	// KindInterleaved streams interleaved web documents.
	KindInterleaved
	// KindCurated streams curated caption shards with plain images.
	KindCurated
	// KindInstruct loads indexed instruction tuning datasets.
	KindInstruct
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindCaptioned:
		return "captioned"
	case KindInterleaved:
		return "interleaved"
	case KindCurated:
		return "curated"
	case KindInstruct:
		return "instruct"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a dataset-type name from configuration to its Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "captioned":
		return KindCaptioned, nil
	case "interleaved":
		return KindInterleaved, nil
	case "curated":
		return KindCurated, nil
	case "instruct":
		return KindInstruct, nil
	}
	return 0, fmt.Errorf("unsupported dataset type %q", s)
}

// Get routes a dataset kind to its pipeline constructor. The instruction
// kind builds several loaders and needs the dataset opener collaborator,
// so it lives behind NewInstructData instead.
func Get(cfg *Config, kind Kind, tok samples.Tokenizer, proc samples.ImageProcessor, epoch int) (*DataInfo, error) {
	switch kind {
	case KindCaptioned:
		return NewCaptionedData(cfg, tok, proc, epoch)
	case KindInterleaved:
		return NewInterleavedData(cfg, tok, proc, epoch)
	case KindCurated:
		return NewCuratedData(cfg, tok, proc, epoch)
	case KindInstruct:
		return nil, fmt.Errorf("instruction tuning builds one loader per source group; use NewInstructData")
	}
	return nil, fmt.Errorf("unsupported dataset kind %v", kind)
}
