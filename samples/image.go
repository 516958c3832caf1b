package samples

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"math"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
)

// InterleavedImageSize is the pixel size interleaved-document images are
// normalized to.
const InterleavedImageSize = 224

// DecodeImage decodes raw png, jpeg or gif bytes.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// DecodeBase64Image decodes an image stored as base64 text, the on-disk
// form web-scale caption shards use for their png entries.
func DecodeBase64Image(data []byte) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	return DecodeImage(raw)
}

// ImageProcessor turns a decoded image into the model's pixel tensor. The
// result must be Float32 with shape [height, width, 3].
type ImageProcessor interface {
	Preprocess(img image.Image) (*tensors.Tensor, error)
}

// ClipProcessor is the reference processor: scale the short side to Size,
// crop the middle square, map to [0, 1] and standardize per channel.
type ClipProcessor struct {
	Size int
	Mean [3]float32
	Std  [3]float32
}

// NewClipProcessor returns a processor producing size x size tensors with
// the stock CLIP vision-tower statistics.
func NewClipProcessor(size int) *ClipProcessor {
	return &ClipProcessor{
		Size: size,
		Mean: [3]float32{0.48145466, 0.4578275, 0.40821073},
		Std:  [3]float32{0.26862954, 0.26130258, 0.27577711},
	}
}

// Preprocess implements ImageProcessor.
func (p *ClipProcessor) Preprocess(img image.Image) (*tensors.Tensor, error) {
	if p.Size <= 0 {
		return nil, fmt.Errorf("processor size must be positive, got %d", p.Size)
	}
	t := timage.ToTensor(dtypes.Float32).Single(centerSquare(img, p.Size))
	t.MutableFlatData(func(flatAny any) {
		flat := flatAny.([]float32)
		for i := 0; i < len(flat); i += 3 {
			flat[i] = (flat[i] - p.Mean[0]) / p.Std[0]
			flat[i+1] = (flat[i+1] - p.Mean[1]) / p.Std[1]
			flat[i+2] = (flat[i+2] - p.Mean[2]) / p.Std[2]
		}
	})
	return t, nil
}

// centerSquare resizes the smallest dimension to size preserving ratio,
// then crops the largest dimension to size at the center.
func centerSquare(img image.Image, size int) *image.NRGBA {
	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	if width < height {
		ratio := float64(width) / float64(size)
		width = size
		height = int(math.Round(float64(height) / ratio))
	} else if height < width {
		ratio := float64(height) / float64(size)
		height = size
		width = int(math.Round(float64(width) / ratio))
	} else {
		width = size
		height = size
	}
	out := imaging.Resize(img, width, height, imaging.Linear)
	if width > height {
		start := (width - size) / 2
		out = imaging.Crop(out, image.Rect(start, 0, start+size, size))
	} else if height > width {
		start := (height - size) / 2
		out = imaging.Crop(out, image.Rect(0, start, size, start+size))
	}
	return out
}
