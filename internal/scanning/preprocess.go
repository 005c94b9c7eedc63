package scanning

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	DefaultMinWidth    = 800
	DefaultMaxWidth    = 1500
	DefaultScaleFactor = 2
	DefaultThreshold   = 128
	DefaultMaxPixels   = 12_000_000
)

// Preprocessed is a high-contrast, dark-text-on-light image ready for OCR.
type Preprocessed struct {
	Image     *image.Gray
	Scaled    bool
	Inverted  bool
	DarkRatio float64
}

// PNG encodes the preprocessed image for OCR engines that take file bytes.
func (p *Preprocessed) PNG() ([]byte, error) {
	return encodePNG(p.Image)
}

// Preprocessor normalizes receipt images before text recognition.
type Preprocessor struct {
	MinWidth    int
	MaxWidth    int
	ScaleFactor int
	Threshold   uint8
	// MaxPixels caps the upscaled area. Zero means no cap.
	MaxPixels int
}

// NewPreprocessor returns a Preprocessor with the default tuning.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		MinWidth:    DefaultMinWidth,
		MaxWidth:    DefaultMaxWidth,
		ScaleFactor: DefaultScaleFactor,
		Threshold:   DefaultThreshold,
		MaxPixels:   DefaultMaxPixels,
	}
}

// PreprocessBytes decodes raw upload bytes and preprocesses the result.
func (p *Preprocessor) PreprocessBytes(data []byte, mimeType string) (*Preprocessed, error) {
	img, err := decodeImage(data, mimeType)
	if err != nil {
		return nil, err
	}
	return p.Preprocess(img)
}

// Preprocess upscales narrow images, converts to grayscale, binarizes and
// makes sure text ends up dark on a light background.
func (p *Preprocessor) Preprocess(img image.Image) (*Preprocessed, error) {
	if img == nil {
		return nil, &DecodeError{Err: errors.New("nil image")}
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, &DecodeError{Err: errors.New("image has no pixels")}
	}

	out := &Preprocessed{}

	if width < p.MinWidth {
		newWidth, newHeight := p.upscaledSize(width, height)
		if newWidth > width {
			img = imaging.Resize(img, newWidth, newHeight, imaging.CatmullRom)
			out.Scaled = true
		}
	}

	gray := imaging.Grayscale(img)

	threshold := p.Threshold
	var dark int
	binary := imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		if c.R >= threshold {
			return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		}
		return color.NRGBA{A: 255}
	})

	for i := 0; i < len(binary.Pix); i += 4 {
		if binary.Pix[i] == 0 {
			dark++
		}
	}
	total := binary.Bounds().Dx() * binary.Bounds().Dy()
	out.DarkRatio = float64(dark) / float64(total)

	if dark > total/2 {
		binary = imaging.Invert(binary)
		out.Inverted = true
		out.DarkRatio = 1 - out.DarkRatio
	}

	out.Image = toGray(binary)
	return out, nil
}

// upscaledSize bounds the scaled size by both MaxWidth and MaxPixels,
// keeping the aspect ratio.
func (p *Preprocessor) upscaledSize(width, height int) (int, int) {
	newWidth := min(width*p.ScaleFactor, p.MaxWidth)
	if p.MaxPixels > 0 && newWidth*(height*newWidth/width) > p.MaxPixels {
		newWidth = int(math.Sqrt(float64(p.MaxPixels) * float64(width) / float64(height)))
	}
	return newWidth, max(1, height*newWidth/width)
}

// toGray copies the red channel of an already-gray NRGBA image.
func toGray(src *image.NRGBA) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		srcRow := src.Pix[y*src.Stride : y*src.Stride+b.Dx()*4]
		dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()]
		for x := range dstRow {
			dstRow[x] = srcRow[x*4]
		}
	}
	return dst
}
