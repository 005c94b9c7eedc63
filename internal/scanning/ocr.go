package scanning

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// Runner lets tests stub external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		slog.Error("exec failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		slog.Debug("exec ok",
			"cmd", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// TesseractCLI recognizes text by running the tesseract binary. Each call
// starts its own process, so concurrent calls share nothing.
type TesseractCLI struct {
	Binary   string
	Language string
	runner   Runner
	lookPath func(string) (string, error)
}

// NewTesseractCLI returns a recognizer for the given binary and language.
func NewTesseractCLI(binary, language string) *TesseractCLI {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractCLI{
		Binary:   binary,
		Language: language,
		runner:   execRunner{},
		lookPath: exec.LookPath,
	}
}

// Available reports whether the binary can be found on PATH.
func (t *TesseractCLI) Available() bool {
	_, err := t.lookPath(t.Binary)
	return err == nil
}

// Recognize writes the image to a temp file and reads text from stdout.
func (t *TesseractCLI) Recognize(ctx context.Context, img *Preprocessed) (string, error) {
	data, err := img.PNG()
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", "receipt-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}

	// psm 1: automatic page segmentation with orientation detection
	stdout, stderr, err := t.runner.Run(ctx, t.Binary, f.Name(), "stdout", "-l", t.Language, "--psm", "1")
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(stderr)), 512))
	}
	return cleanupText(string(stdout)), nil
}

var columnGaps = regexp.MustCompile(`[ \t]{2,}`)

// cleanupText normalizes OCR output. Wide gaps shrink to two spaces so
// column layouts stay detectable, and empty lines are dropped.
func cleanupText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = columnGaps.ReplaceAllString(text, "  ")
	text = strings.ReplaceAll(text, "\t", " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
