package scanning

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type mockParser struct {
	mu          sync.Mutex
	available   bool
	imageResult *Candidate
	textResult  *Candidate
	err         error
	panicMsg    string
	imageCalls  int
	textCalls   int
	lastText    string
	ctxErr      error
}

func (m *mockParser) Available() bool { return m.available }

func (m *mockParser) ParseImage(ctx context.Context, data []byte, mimeType string) (*Candidate, error) {
	m.mu.Lock()
	m.imageCalls++
	m.ctxErr = ctx.Err()
	m.mu.Unlock()
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	return m.imageResult, m.err
}

func (m *mockParser) ParseText(ctx context.Context, text string) (*Candidate, error) {
	m.mu.Lock()
	m.textCalls++
	m.lastText = text
	m.ctxErr = ctx.Err()
	m.mu.Unlock()
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	return m.textResult, m.err
}

func (m *mockParser) Close() error { return nil }

type mockRecognizer struct {
	mu        sync.Mutex
	available bool
	text      string
	err       error
	calls     int
	lastImage *Preprocessed
}

func (m *mockRecognizer) Available() bool { return m.available }

func (m *mockRecognizer) Recognize(ctx context.Context, img *Preprocessed) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastImage = img
	return m.text, m.err
}

var _ = Describe("Pipeline", func() {
	var (
		vision   *mockParser
		text     *mockParser
		ocr      *mockRecognizer
		registry *prometheus.Registry
		metrics  *Metrics
		pipeline *Pipeline
		ctx      context.Context
		raw      RawImage
		draft    *Draft
		err      error
	)

	BeforeEach(func() {
		vision = &mockParser{}
		text = &mockParser{}
		ocr = &mockRecognizer{}
		registry = prometheus.NewRegistry()
		metrics = NewMetrics(registry)
		ctx = context.Background()
		raw = RawImage{Data: pngBytes(syntheticReceipt(60, 30, 250, 5)), MimeType: "image/png"}
	})

	JustBeforeEach(func() {
		pipeline = NewPipeline(PipelineConfig{
			Vision:  vision,
			Text:    text,
			OCR:     ocr,
			Clock:   fixedClock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)},
			Metrics: metrics,
		})
		draft, err = pipeline.Process(ctx, raw)
	})

	When("the vision tier returns a good candidate", func() {
		BeforeEach(func() {
			vision.available = true
			vision.imageResult = &Candidate{MerchantName: stringPtr("Whole Foods"), Total: dec("23.10"), Category: stringPtr("Groceries")}
			text.available = true
			ocr.available = true
		})

		It("should use it without running OCR or the text tier", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(vision.imageCalls).To(Equal(1))
			Expect(ocr.calls).To(Equal(0))
			Expect(text.textCalls).To(Equal(0))
		})

		It("should build the draft from the vision candidate", func() {
			Expect(draft.Tier).To(Equal(TierVision))
			Expect(draft.MerchantName).To(Equal("Whole Foods"))
			Expect(draft.Amount.String()).To(Equal("23.1"))
			Expect(draft.Confidence).To(Equal(DefaultAIConfidence))
			Expect(draft.RawText).To(BeNil())
		})

		It("should count the accepted tier", func() {
			Expect(testutil.ToFloat64(metrics.tierOutcomes.WithLabelValues("vision", "accepted"))).To(Equal(1.0))
		})
	})

	When("the vision candidate fails the quality gate", func() {
		BeforeEach(func() {
			vision.available = true
			vision.imageResult = &Candidate{MerchantName: stringPtr("Unknown")}
			text.available = true
			text.textResult = &Candidate{MerchantName: stringPtr("Trader Joe's"), Total: dec("8.99"), ConfidenceScore: floatPtr(0.8)}
			ocr.available = true
			ocr.text = "TRADER JOE'S\nTOTAL 8.99"
		})

		It("should fall through to OCR and the text tier", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(ocr.calls).To(Equal(1))
			Expect(text.textCalls).To(Equal(1))
			Expect(text.lastText).To(Equal("TRADER JOE'S\nTOTAL 8.99"))
		})

		It("should use the text candidate and keep the OCR text", func() {
			Expect(draft.Tier).To(Equal(TierText))
			Expect(draft.MerchantName).To(Equal("Trader Joe's"))
			Expect(draft.Confidence).To(Equal(0.8))
			Expect(draft.RawText).NotTo(BeNil())
			Expect(*draft.RawText).To(Equal("TRADER JOE'S\nTOTAL 8.99"))
		})

		It("should hand OCR a preprocessed image", func() {
			Expect(ocr.lastImage).NotTo(BeNil())
			Expect(ocr.lastImage.Scaled).To(BeTrue())
		})

		It("should record the rejection", func() {
			Expect(testutil.ToFloat64(metrics.tierOutcomes.WithLabelValues("vision", "rejected"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(metrics.tierOutcomes.WithLabelValues("text", "accepted"))).To(Equal(1.0))
		})
	})

	When("the vision backend errors", func() {
		BeforeEach(func() {
			vision.available = true
			vision.err = errors.New("503 service unavailable")
			ocr.available = true
			ocr.text = "CITY PARKING\nAmount Due: $6.00"
		})

		It("should not propagate the error", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(testutil.ToFloat64(metrics.tierOutcomes.WithLabelValues("vision", "failed"))).To(Equal(1.0))
		})

		It("should end at the regex tier", func() {
			Expect(draft.Tier).To(Equal(TierRegex))
			Expect(draft.MerchantName).To(Equal("CITY PARKING"))
			Expect(draft.Amount.String()).To(Equal("6"))
			Expect(draft.Confidence).To(Equal(RegexConfidence))
		})
	})

	When("a backend panics", func() {
		BeforeEach(func() {
			vision.available = true
			vision.panicMsg = "boom"
			text.available = true
			text.panicMsg = "boom"
			ocr.available = true
			ocr.text = "DELI\nTotal 4.00"
		})

		It("should treat it as a tier failure", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(draft.Tier).To(Equal(TierRegex))
			Expect(vision.imageCalls).To(Equal(1))
			Expect(text.textCalls).To(Equal(1))
		})
	})

	When("the vision parser is unavailable", func() {
		BeforeEach(func() {
			vision.available = false
			ocr.available = true
			ocr.text = "STORE"
		})

		It("should skip it silently", func() {
			Expect(vision.imageCalls).To(Equal(0))
			Expect(testutil.ToFloat64(metrics.tierOutcomes.WithLabelValues("vision", "skipped"))).To(Equal(1.0))
		})
	})

	When("OCR returns a quantity line and no AI is configured", func() {
		BeforeEach(func() {
			ocr.available = true
			ocr.text = "2x Coffee $3.50"
		})

		It("should extract one line item at regex confidence", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(draft.Items).To(HaveLen(1))
			Expect(draft.Items[0].Name).To(Equal("Coffee"))
			Expect(draft.Items[0].Quantity).To(Equal(2))
			Expect(draft.Items[0].Price.String()).To(Equal("3.5"))
			Expect(draft.Confidence).To(Equal(0.70))
		})

		It("should not call the text tier", func() {
			Expect(text.textCalls).To(Equal(0))
		})
	})

	When("OCR returns nothing and no AI is configured", func() {
		BeforeEach(func() {
			ocr.available = true
			ocr.text = ""
		})

		It("should still produce a draft flagged for review", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(draft.Amount.IsZero()).To(BeTrue())
			Expect(draft.MerchantName).To(Equal(UnknownMerchant))
			Expect(draft.Confidence).To(BeNumerically("<=", 0.10))
			Expect(draft.NeedsReview).To(BeTrue())
		})

		It("should default the date to today", func() {
			Expect(draft.TransactionDate).To(Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
		})
	})

	When("OCR returns only symbol noise and no AI is configured", func() {
		BeforeEach(func() {
			ocr.available = true
			ocr.text = "~~ ~~\n=- ,.\n|| '"
		})

		It("should treat it as a total extraction failure", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(draft.Amount.IsZero()).To(BeTrue())
			Expect(draft.MerchantName).To(Equal(UnknownMerchant))
			Expect(draft.Confidence).To(BeNumerically("<=", 0.10))
			Expect(draft.NeedsReview).To(BeTrue())
		})
	})

	When("OCR fails", func() {
		BeforeEach(func() {
			ocr.available = true
			ocr.err = errors.New("tesseract crashed")
			text.available = true
		})

		It("should skip the text tier and still finish", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text.textCalls).To(Equal(0))
			Expect(draft.Tier).To(Equal(TierRegex))
			Expect(draft.RawText).To(BeNil())
			Expect(draft.NeedsReview).To(BeTrue())
		})
	})

	When("no collaborator is available", func() {
		It("should terminate with a regex draft", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(draft.Tier).To(Equal(TierRegex))
			Expect(draft.Confidence).To(Equal(0.10))
			Expect(vision.imageCalls).To(Equal(0))
			Expect(ocr.calls).To(Equal(0))
		})

		It("should work with an empty configuration", func() {
			d, err := NewPipeline(PipelineConfig{}).Process(context.Background(), raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Tier).To(Equal(TierRegex))
			Expect(d.NeedsReview).To(BeTrue())
		})
	})

	When("the host context is already cancelled", func() {
		BeforeEach(func() {
			cancelled, cancel := context.WithCancel(context.Background())
			cancel()
			ctx = cancelled
			vision.available = true
			vision.imageResult = &Candidate{Total: dec("5.00")}
		})

		It("should still run the tiers with a live context", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(vision.ctxErr).NotTo(HaveOccurred())
			Expect(draft.Tier).To(Equal(TierVision))
		})
	})

	When("the bytes are not an image", func() {
		BeforeEach(func() {
			raw = RawImage{Data: []byte("%%garbage%%"), MimeType: "image/png"}
			vision.available = true
			ocr.available = true
		})

		It("should return a decode error without calling any tier", func() {
			var decodeErr *DecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
			Expect(draft).To(BeNil())
			Expect(vision.imageCalls).To(Equal(0))
			Expect(ocr.calls).To(Equal(0))
		})
	})

	Describe("Capabilities", func() {
		BeforeEach(func() {
			vision.available = true
		})

		It("should report which collaborators are usable", func() {
			Expect(pipeline.Capabilities()).To(Equal(map[string]bool{"vision": true, "text": false, "ocr": false}))
		})
	})
})

var _ = Describe("state machine", func() {
	DescribeTable("transition",
		func(from State, outcome Outcome, to State) {
			Expect(transition(from, outcome)).To(Equal(to))
		},
		Entry("start always enters vision", StateStart, Outcome(""), StateVision),
		Entry("accepted vision finishes", StateVision, OutcomeAccepted, StateDone),
		Entry("skipped vision moves to text", StateVision, OutcomeSkipped, StateText),
		Entry("failed vision moves to text", StateVision, OutcomeFailed, StateText),
		Entry("rejected text moves to regex", StateText, OutcomeRejected, StateRegex),
		Entry("accepted text finishes", StateText, OutcomeAccepted, StateDone),
		Entry("regex always finishes", StateRegex, OutcomeAccepted, StateDone),
	)

	DescribeTable("decide",
		func(available bool, c *Candidate, err error, expected Outcome) {
			Expect(decide(available, c, err, QualityGate{})).To(Equal(expected))
		},
		Entry("unavailable", false, nil, nil, OutcomeSkipped),
		Entry("error", true, nil, errors.New("x"), OutcomeFailed),
		Entry("nil candidate", true, nil, nil, OutcomeFailed),
		Entry("placeholder", true, &Candidate{MerchantName: stringPtr("Unknown")}, nil, OutcomeRejected),
		Entry("good", true, &Candidate{MerchantName: stringPtr("Aldi")}, nil, OutcomeAccepted),
	)

	It("should name the states", func() {
		Expect(StateVision.String()).To(Equal("TIER1_VISION"))
		Expect(StateDone.String()).To(Equal("DONE"))
	})
})
