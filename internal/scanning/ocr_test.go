package scanning

import (
	"context"
	"errors"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeRunner struct {
	stdout  string
	stderr  string
	err     error
	name    string
	args    []string
	imgSeen bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.name = name
	f.args = args
	if len(args) > 0 {
		_, statErr := os.Stat(args[0])
		f.imgSeen = statErr == nil
	}
	return []byte(f.stdout), []byte(f.stderr), f.err
}

var _ = Describe("TesseractCLI", func() {
	var (
		runner *fakeRunner
		t      *TesseractCLI
		img    *Preprocessed
	)

	BeforeEach(func() {
		runner = &fakeRunner{}
		t = NewTesseractCLI("", "")
		t.runner = runner
		var err error
		img, err = NewPreprocessor().Preprocess(syntheticReceipt(20, 10, 255, 0))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should default the binary and language", func() {
		Expect(t.Binary).To(Equal("tesseract"))
		Expect(t.Language).To(Equal("eng"))
	})

	It("should run tesseract on a temp file and clean the output", func() {
		runner.stdout = "  ACME   CO  \n\n\nTotal\t 9.99 \r\n"
		text, err := t.Recognize(context.Background(), img)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("ACME  CO\nTotal  9.99"))
		Expect(runner.name).To(Equal("tesseract"))
		Expect(runner.args[1:]).To(Equal([]string{"stdout", "-l", "eng", "--psm", "1"}))
		Expect(runner.imgSeen).To(BeTrue())
	})

	It("should remove the temp file afterwards", func() {
		_, err := t.Recognize(context.Background(), img)
		Expect(err).NotTo(HaveOccurred())
		_, statErr := os.Stat(runner.args[0])
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})

	It("should wrap command failures with stderr", func() {
		runner.err = errors.New("exit status 1")
		runner.stderr = "Error opening data file"
		_, err := t.Recognize(context.Background(), img)
		Expect(err).To(MatchError(ContainSubstring("Error opening data file")))
	})

	It("should report availability from PATH lookup", func() {
		t.lookPath = func(string) (string, error) { return "", errors.New("not found") }
		Expect(t.Available()).To(BeFalse())
		t.lookPath = func(string) (string, error) { return "/usr/bin/tesseract", nil }
		Expect(t.Available()).To(BeTrue())
	})
})

var _ = Describe("cleanupText", func() {
	It("should drop blank lines and trim", func() {
		Expect(cleanupText("\n\n  a  \n\n b\n")).To(Equal("a\nb"))
	})

	It("should keep column gaps at two spaces", func() {
		Expect(cleanupText("Milk      $3.99")).To(Equal("Milk  $3.99"))
	})

	It("should return an empty string for blank input", func() {
		Expect(cleanupText(" \n\t\n")).To(BeEmpty())
	})
})

var _ = Describe("NewRecognizer", func() {
	It("should build the tesseract CLI engine", func() {
		r, err := NewRecognizer("tesseract", "/opt/tesseract", "deu")
		Expect(err).NotTo(HaveOccurred())
		Expect(r.(*TesseractCLI).Binary).To(Equal("/opt/tesseract"))
	})

	It("should return nothing for none", func() {
		r, err := NewRecognizer("none", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(r).To(BeNil())
	})

	It("should reject unknown engines", func() {
		_, err := NewRecognizer("abbyy", "", "")
		Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())
	})
})

var _ = Describe("NewParser", func() {
	It("should return nothing for none", func() {
		p, err := NewParser(context.Background(), BackendConfig{Name: "none"})
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeNil())
	})

	It("should reject unknown backends", func() {
		_, err := NewParser(context.Background(), BackendConfig{Name: "claude-on-a-toaster"})
		Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())
	})

	It("should build an unavailable gemini parser without a key", func() {
		p, err := NewParser(context.Background(), BackendConfig{Name: "gemini"})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Available()).To(BeFalse())
		Expect(p.Close()).To(Succeed())
	})

	It("should wrap backends in a breaker when configured", func() {
		p, err := NewParser(context.Background(), BackendConfig{Name: "ollama", Breaker: BreakerSettings{ConsecutiveFailures: 3}})
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&Breaker{}))
	})
})
