package samples

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"math/rand"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/webshard/webshard/stream"
)

// Interleaved-document limits.
const (
	// InterleavedMaxTokens is the fixed token length of a document.
	InterleavedMaxTokens = 256
	// InterleavedMaxImages is the fixed image-slot count per document.
	InterleavedMaxImages = 5
	// MinImageKB drops thumbnail-sized images; the raw encoded size must
	// exceed this many kilobytes.
	MinImageKB = 10
)

// Document is the JSON shape of one interleaved web document: the page
// text split into sentences plus candidate images, each matched to one
// sentence with a similarity score.
type Document struct {
	TextList  []string    `json:"text_list"`
	ImageInfo []ImageInfo `json:"image_info"`
}

// ImageInfo is one candidate image of a document.
type ImageInfo struct {
	ImageBase64      string  `json:"image_base64"`
	MatchedTextIndex int     `json:"matched_text_index"`
	MatchedSim       float64 `json:"matched_sim"`
}

// DocTensors is one assembled document before batching: a fixed number of
// image slots, zero padded past the real images, and a fixed-length token
// row.
type DocTensors struct {
	Images *tensors.Tensor // [InterleavedMaxImages, size, size, 3]
	IDs    []int32         // [InterleavedMaxTokens]
	Mask   []int32
}

// InterleavedAssembler turns raw interleaved documents into DocTensors.
//
// Candidate images qualify when their encoded size exceeds MinImageKB and
// their match score reaches SimThreshold; the first InterleavedMaxImages
// qualifying images are kept. Each kept image injects an
// "<|endofchunk|><image>" marker before its matched sentence; the very
// first chunk marker is removed again since nothing precedes the first
// chunk. Documents whose tokenized text retains no image marker are
// rejected with stream.ErrNoImages, and single-image documents are
// rejected half the time with stream.ErrOneImage to keep the multi-image
// distribution from collapsing.
type InterleavedAssembler struct {
	Tok          Tokenizer
	Proc         ImageProcessor
	SimThreshold float64
	// Rng drives the flip and single-image rejection coins; nil uses the
	// shared global source.
	Rng *rand.Rand
}

// Assemble builds one document. Rejections come back as the stream
// sentinels so a skipping handler can drop them quietly.
func (a *InterleavedAssembler) Assemble(raw []byte) (*DocTensors, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse interleaved document: %w", err)
	}
	sentences := doc.TextList

	type match struct {
		img image.Image
		ix  int
	}
	var kept []match
	for _, info := range doc.ImageInfo {
		rawImg, err := base64.StdEncoding.DecodeString(strings.TrimSpace(info.ImageBase64))
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 image: %w", err)
		}
		if len(rawImg)/1000 <= MinImageKB {
			continue
		}
		if info.MatchedSim < a.SimThreshold {
			continue
		}
		img, err := DecodeImage(rawImg)
		if err != nil {
			return nil, err
		}
		if info.MatchedTextIndex < 0 || info.MatchedTextIndex >= len(sentences) {
			return nil, fmt.Errorf("matched text index %d outside %d sentences", info.MatchedTextIndex, len(sentences))
		}
		kept = append(kept, match{img: img, ix: info.MatchedTextIndex})
		if len(kept) == InterleavedMaxImages {
			break
		}
	}
	if len(kept) == 0 {
		return nil, stream.ErrNoImages
	}

	flip := coin(a.Rng)
	parts := make([]*tensors.Tensor, 0, InterleavedMaxImages)
	for i, m := range kept {
		img := m.img
		if flip {
			img = imaging.FlipH(img)
		}
		t, err := a.Proc.Preprocess(img)
		if err != nil {
			return nil, fmt.Errorf("failed to preprocess image %d: %w", i, err)
		}
		parts = append(parts, t)
	}
	// zero pad the remaining image slots
	slot := parts[0].Shape()
	for len(parts) < InterleavedMaxImages {
		parts = append(parts, tensors.FromShape(shapes.Make(dtypes.Float32, slot.Dimensions...)))
	}
	images, err := Stack(parts)
	if err != nil {
		return nil, err
	}

	for _, m := range kept {
		sentences[m.ix] = EndOfChunkToken + ImageToken + sentences[m.ix]
	}
	text := strings.Join(sentences, " ")
	// the first chunk has no predecessor, so its marker goes away again
	text = strings.Replace(text, EndOfChunkToken, "", 1)
	text = strings.ReplaceAll(text, " "+EndOfChunkToken, EndOfChunkToken)
	text = strings.ReplaceAll(text, ImageToken+" ", ImageToken)
	text = strings.ReplaceAll(text, " "+ImageToken, ImageToken)
	text = text + EndOfChunkToken + a.Tok.EOS()

	enc, err := a.Tok.Encode([]string{text}, EncodeOptions{
		MaxLength: InterleavedMaxTokens,
		Pad:       PadMaxLength,
		Truncate:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize document: %w", err)
	}
	if len(enc.IDs) != 1 || len(enc.Mask) != 1 {
		return nil, fmt.Errorf("tokenizer returned %d rows for one document", len(enc.IDs))
	}

	// count markers after truncation; the tail of a long document may
	// have lost its images
	numImages := 0
	imageID := a.Tok.ImageTokenID()
	for _, id := range enc.IDs[0] {
		if id == imageID {
			numImages++
		}
	}
	switch {
	case numImages == 0:
		return nil, stream.ErrNoImages
	case numImages == 1 && unitDraw(a.Rng) <= 0.5:
		return nil, stream.ErrOneImage
	}

	return &DocTensors{Images: images, IDs: enc.IDs[0], Mask: enc.Mask[0]}, nil
}

// BatchDocs stacks assembled documents into the model's batch tensors:
// images [n, InterleavedMaxImages, size, size, 3], ids and mask
// [n, InterleavedMaxTokens].
func BatchDocs(docs []*DocTensors) (images, ids, mask *tensors.Tensor, err error) {
	if len(docs) == 0 {
		return nil, nil, nil, fmt.Errorf("empty document batch")
	}
	parts := make([]*tensors.Tensor, len(docs))
	enc := &Encoding{IDs: make([][]int32, len(docs)), Mask: make([][]int32, len(docs))}
	for i, doc := range docs {
		parts[i] = doc.Images
		enc.IDs[i] = doc.IDs
		enc.Mask[i] = doc.Mask
	}
	images, err = Stack(parts)
	if err != nil {
		return nil, nil, nil, err
	}
	ids, mask, err = TokenTensors(enc)
	if err != nil {
		return nil, nil, nil, err
	}
	return images, ids, mask, nil
}
