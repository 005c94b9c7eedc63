//go:build gosseract

package scanning

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Gosseract recognizes text through the libtesseract binding. A new client
// is created per call because a tesseract engine is not safe to share.
type Gosseract struct {
	Language string
}

// NewGosseract returns the cgo-backed recognizer.
func NewGosseract(language string) *Gosseract {
	if language == "" {
		language = "eng"
	}
	return &Gosseract{Language: language}
}

func (g *Gosseract) Available() bool {
	return true
}

func (g *Gosseract) Recognize(ctx context.Context, img *Preprocessed) (string, error) {
	data, err := img.PNG()
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(g.Language); err != nil {
		return "", fmt.Errorf("setting OCR language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO_OSD); err != nil {
		return "", fmt.Errorf("setting page segmentation: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("loading OCR image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognizing text: %w", err)
	}
	return cleanupText(text), nil
}
