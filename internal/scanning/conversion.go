package scanning

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// visionPassthrough lists formats every AI backend accepts as-is.
var visionPassthrough = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

// normalizeMimeType lowercases the content type, drops parameters and sniffs
// the bytes when the host did not send one.
func normalizeMimeType(contentType string, data []byte) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		if isHEICFormat(data) {
			return "image/heic"
		}
		mimeType = http.DetectContentType(data)
		if i := strings.Index(mimeType, ";"); i >= 0 {
			mimeType = mimeType[:i]
		}
	}
	if mimeType == "image/jpg" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

// decodeImage turns uploaded bytes into an image. PDFs are rendered from
// their first page.
func decodeImage(data []byte, contentType string) (image.Image, error) {
	mimeType := normalizeMimeType(contentType, data)
	if len(data) == 0 {
		return nil, &DecodeError{MimeType: mimeType, Err: errors.New("empty image data")}
	}

	var (
		img image.Image
		err error
	)
	switch {
	case mimeType == "application/pdf":
		img, err = pdfToImage(data)
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		img, err = heic.Decode(bytes.NewReader(data))
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil && errors.Is(err, image.ErrFormat) {
			err = fmt.Errorf("unsupported image format (supported: JPEG, PNG, GIF, WebP, BMP, TIFF, HEIC, HEIF, PDF): %w", err)
		}
	}
	if err != nil {
		return nil, &DecodeError{MimeType: mimeType, Err: err}
	}

	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{MimeType: mimeType, Err: errors.New("image has no pixels")}
	}

	return img, nil
}

// pdfToImage renders the first page of a PDF (most receipts are single page)
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// isHEICFormat checks for an ftyp box carrying a HEIC/HEIF brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// visionPayload returns the bytes and MIME type sent to image-mode parsers.
// JPEG and PNG go through untouched, everything else is re-encoded as PNG.
func visionPayload(raw RawImage, img image.Image) ([]byte, string, error) {
	mimeType := normalizeMimeType(raw.MimeType, raw.Data)
	if visionPassthrough[mimeType] && !isHEICFormat(raw.Data) {
		return raw.Data, mimeType, nil
	}
	data, err := encodePNG(img)
	if err != nil {
		return nil, "", err
	}
	return data, "image/png", nil
}
