package samples

// Control tokens woven into training text. The tokenizer behind the
// Tokenizer interface must already know both as single special tokens.
const (
	ImageToken      = "<image>"
	EndOfChunkToken = "<|endofchunk|>"
)

// Padding selects how Encode pads a batch on the right.
type Padding int

const (
	// PadLongest pads every sequence to the longest one in the call.
	PadLongest Padding = iota
	// PadMaxLength pads every sequence to EncodeOptions.MaxLength.
	PadMaxLength
)

// EncodeOptions bound one Encode call.
type EncodeOptions struct {
	MaxLength int
	Pad       Padding
	// Truncate drops tokens past MaxLength instead of failing.
	Truncate bool
}

// Encoding is a batch of tokenized text, one row per input string. After
// padding both matrices are rectangular; Mask holds 1 for real tokens and
// 0 for padding.
type Encoding struct {
	IDs  [][]int32
	Mask [][]int32
}

// Tokenizer adapts whatever text tokenizer the trainer uses. Padding is
// always on the right, matching how the model masks loss.
type Tokenizer interface {
	Encode(texts []string, opts EncodeOptions) (*Encoding, error)
	// EOS returns the end-of-sequence literal appended to training text.
	EOS() string
	// ImageTokenID returns the vocabulary id of ImageToken.
	ImageTokenID() int32
}
