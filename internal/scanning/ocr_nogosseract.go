//go:build !gosseract

package scanning

import "context"

// Gosseract is unavailable in builds without the gosseract tag, which need
// no cgo toolchain or libtesseract headers.
type Gosseract struct {
	Language string
}

func NewGosseract(language string) *Gosseract {
	return &Gosseract{Language: language}
}

func (g *Gosseract) Available() bool {
	return false
}

func (g *Gosseract) Recognize(context.Context, *Preprocessed) (string, error) {
	return "", ErrCapabilityUnavailable
}
