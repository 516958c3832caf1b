package samples

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"strings"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Token ids the fake tokenizer hands out for the control tokens.
const (
	fakePadID   int32 = 0
	fakeEOSID   int32 = 7
	fakeEOCID   int32 = 8
	fakeImageID int32 = 9
)

// fakeTokenizer tokenizes greedily: control tokens become single ids,
// whitespace separates words, every word hashes to a stable id. It
// records the texts it saw so tests can assert on rendered prompts.
type fakeTokenizer struct {
	lastTexts []string
}

func (f *fakeTokenizer) EOS() string         { return "</s>" }
func (f *fakeTokenizer) ImageTokenID() int32 { return fakeImageID }

func (f *fakeTokenizer) tokenize(text string) []int32 {
	var ids []int32
	for len(text) > 0 {
		switch {
		case strings.HasPrefix(text, ImageToken):
			ids = append(ids, fakeImageID)
			text = text[len(ImageToken):]
		case strings.HasPrefix(text, EndOfChunkToken):
			ids = append(ids, fakeEOCID)
			text = text[len(EndOfChunkToken):]
		case strings.HasPrefix(text, f.EOS()):
			ids = append(ids, fakeEOSID)
			text = text[len(f.EOS()):]
		case text[0] == ' ':
			text = text[1:]
		default:
			end := strings.IndexAny(text, " <")
			if end < 0 {
				end = len(text)
			}
			if end == 0 {
				end = 1
			}
			var sum int32
			for _, b := range []byte(text[:end]) {
				sum += int32(b)
			}
			ids = append(ids, 100+sum)
			text = text[end:]
		}
	}
	return ids
}

func (f *fakeTokenizer) Encode(texts []string, opts EncodeOptions) (*Encoding, error) {
	f.lastTexts = append([]string{}, texts...)
	enc := &Encoding{IDs: make([][]int32, len(texts)), Mask: make([][]int32, len(texts))}
	longest := 0
	for i, text := range texts {
		ids := f.tokenize(text)
		if opts.MaxLength > 0 && len(ids) > opts.MaxLength {
			if !opts.Truncate {
				return nil, fmt.Errorf("text %d has %d tokens, limit %d", i, len(ids), opts.MaxLength)
			}
			ids = ids[:opts.MaxLength]
		}
		enc.IDs[i] = ids
		longest = max(longest, len(ids))
	}
	width := longest
	if opts.Pad == PadMaxLength {
		width = opts.MaxLength
	}
	for i := range enc.IDs {
		mask := make([]int32, width)
		row := make([]int32, width)
		for j := range width {
			if j < len(enc.IDs[i]) {
				row[j] = enc.IDs[i][j]
				mask[j] = 1
			} else {
				row[j] = fakePadID
			}
		}
		enc.IDs[i] = row
		enc.Mask[i] = mask
	}
	return enc, nil
}

// solidPNG encodes a single-color image.
func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// noisePNG encodes an incompressible image, big enough to clear the
// thumbnail size gate.
func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(int64(w*1000 + h)))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	if buf.Len() <= MinImageKB*1000 {
		t.Fatalf("noise png only %d bytes, below the size gate", buf.Len())
	}
	return buf.Bytes()
}

// tensorData copies a Float32 tensor's flat contents out for comparison.
func tensorData(t *testing.T, tensor *tensors.Tensor) []float32 {
	t.Helper()
	var out []float32
	tensor.ConstFlatData(func(flat any) {
		out = append(out, flat.([]float32)...)
	})
	return out
}
