package samples

import (
	"fmt"
	"image"
	"math/rand"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// CaptionMaxTokens bounds the token length of a rendered caption.
const CaptionMaxTokens = 32

// PromptFormat selects how a caption is rendered into training text.
type PromptFormat int

const (
	// FormatCaption renders "<image>{caption}<|endofchunk|>{eos}".
	FormatCaption PromptFormat = iota
	// FormatInstruct wraps the caption as an instruct-tuned exchange
	// asking the model to describe the image.
	FormatInstruct
)

const (
	instBegin = "[INST]"
	instEnd   = "[/INST]"
)

// Pair is one decoded caption sample.
type Pair struct {
	Image image.Image
	Text  string
}

// CaptionAssembler turns batches of caption pairs into model tensors:
// one [n, size, size, 3] image tensor plus token ids and attention mask
// padded to the longest caption in the batch.
type CaptionAssembler struct {
	Tok    Tokenizer
	Proc   ImageProcessor
	Format PromptFormat
	// Rng drives the batch flip coin; nil uses the shared global source.
	Rng *rand.Rand
}

// Assemble builds the tensor triple for one batch. All images of the
// batch flip horizontally together half the time, keeping augmentation
// decisions aligned with how the text was matched to them.
func (a *CaptionAssembler) Assemble(pairs []Pair) (images, ids, mask *tensors.Tensor, err error) {
	if len(pairs) == 0 {
		return nil, nil, nil, fmt.Errorf("empty caption batch")
	}
	flip := coin(a.Rng)
	parts := make([]*tensors.Tensor, len(pairs))
	texts := make([]string, len(pairs))
	for i, pair := range pairs {
		img := pair.Image
		if flip {
			img = imaging.FlipH(img)
		}
		t, err := a.Proc.Preprocess(img)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to preprocess image %d: %w", i, err)
		}
		parts[i] = t
		texts[i] = a.render(pair.Text)
	}
	images, err = Stack(parts)
	if err != nil {
		return nil, nil, nil, err
	}
	enc, err := a.Tok.Encode(texts, EncodeOptions{
		MaxLength: CaptionMaxTokens,
		Pad:       PadLongest,
		Truncate:  true,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to tokenize captions: %w", err)
	}
	ids, mask, err = TokenTensors(enc)
	if err != nil {
		return nil, nil, nil, err
	}
	return images, ids, mask, nil
}

func (a *CaptionAssembler) render(caption string) string {
	c := strings.TrimSpace(caption)
	if a.Format == FormatInstruct {
		return fmt.Sprintf("%s%splease describe this image.%s%s%s%s",
			ImageToken, instBegin, instEnd, c, EndOfChunkToken, a.Tok.EOS())
	}
	return fmt.Sprintf("%s%s%s%s", ImageToken, c, EndOfChunkToken, a.Tok.EOS())
}

func coin(rng *rand.Rand) bool {
	if rng != nil {
		return rng.Intn(2) == 1
	}
	return rand.Intn(2) == 1
}

func unitDraw(rng *rand.Rand) float64 {
	if rng != nil {
		return rng.Float64()
	}
	return rand.Float64()
}
