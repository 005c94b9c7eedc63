package scanning

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultTierTimeout bounds each external call made by a tier.
const DefaultTierTimeout = 60 * time.Second

// State is a step of the extraction state machine.
type State int

const (
	StateStart State = iota
	StateVision
	StateText
	StateRegex
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateVision:
		return "TIER1_VISION"
	case StateText:
		return "TIER2_TEXT"
	case StateRegex:
		return "TIER3_REGEX"
	case StateDone:
		return "DONE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// transition returns the state after s finished with outcome o. The first
// accepted tier ends the run.
func transition(s State, o Outcome) State {
	if o == OutcomeAccepted {
		return StateDone
	}
	switch s {
	case StateStart:
		return StateVision
	case StateVision:
		return StateText
	case StateText:
		return StateRegex
	}
	return StateDone
}

// decide classifies the result of an AI tier.
func decide(available bool, c *Candidate, err error, gate QualityGate) Outcome {
	switch {
	case !available:
		return OutcomeSkipped
	case err != nil || c == nil:
		return OutcomeFailed
	case gate.Accepts(c):
		return OutcomeAccepted
	}
	return OutcomeRejected
}

// PipelineConfig wires the optional collaborators. Nil collaborators are
// treated as unavailable.
type PipelineConfig struct {
	Vision       ImageParser
	Text         TextParser
	OCR          TextRecognizer
	Preprocessor *Preprocessor
	Clock        Clock
	Logger       *slog.Logger
	Metrics      *Metrics
	TierTimeout  time.Duration
}

// Pipeline runs the three extraction tiers in order and validates the first
// accepted result. It keeps no per-call state and is safe for concurrent use.
type Pipeline struct {
	vision      ImageParser
	text        TextParser
	ocr         TextRecognizer
	pre         *Preprocessor
	regex       RegexExtractor
	gate        QualityGate
	validator   *Validator
	logger      *slog.Logger
	metrics     *Metrics
	tierTimeout time.Duration
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Preprocessor == nil {
		cfg.Preprocessor = NewPreprocessor()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TierTimeout <= 0 {
		cfg.TierTimeout = DefaultTierTimeout
	}
	return &Pipeline{
		vision:      cfg.Vision,
		text:        cfg.Text,
		ocr:         cfg.OCR,
		pre:         cfg.Preprocessor,
		validator:   NewValidator(cfg.Clock),
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		tierTimeout: cfg.TierTimeout,
	}
}

// run holds everything produced while processing one image.
type run struct {
	raw     RawImage
	img     image.Image
	logger  *slog.Logger
	ocrDone bool
	rawText *string
}

// Process extracts a Draft from raw. The only error it returns is a
// *DecodeError for bytes that are not a readable image; every collaborator
// failure is absorbed and the next tier runs instead.
func (p *Pipeline) Process(ctx context.Context, raw RawImage) (*Draft, error) {
	img, err := decodeImage(raw.Data, raw.MimeType)
	if err != nil {
		return nil, err
	}

	// a started extraction always runs to completion
	ctx = context.WithoutCancel(ctx)

	r := &run{
		raw:    raw,
		img:    img,
		logger: p.logger.With("run_id", uuid.NewString()),
	}

	var (
		draft *Draft
		tier  Tier
	)
	state := StateStart
	for state != StateDone {
		outcome := Outcome("")
		switch state {
		case StateVision:
			var c *Candidate
			c, outcome = p.visionTier(ctx, r)
			if outcome == OutcomeAccepted {
				draft, tier = p.validator.Validate(c, confidenceOf(c, DefaultAIConfidence)), TierVision
			}
		case StateText:
			p.recognize(ctx, r)
			var c *Candidate
			c, outcome = p.textTier(ctx, r)
			if outcome == OutcomeAccepted {
				draft, tier = p.validator.Validate(c, confidenceOf(c, DefaultAIConfidence)), TierText
			}
		case StateRegex:
			start := time.Now()
			p.recognize(ctx, r)
			c := p.regex.Extract(r.text())
			outcome = OutcomeAccepted
			draft, tier = p.validator.Validate(c, RegexConfidence), TierRegex
			p.record(r, TierRegex, outcome, start, nil)
		}
		state = transition(state, outcome)
	}

	draft.Tier = tier
	draft.RawText = r.rawText
	p.metrics.observeDraft(draft)

	attrs := []any{
		"tier", tier,
		"merchant", draft.MerchantName,
		"amount", draft.Amount.StringFixed(2),
		"confidence", draft.Confidence,
		"needs_review", draft.NeedsReview,
	}
	switch {
	case draft.Amount.IsZero() && draft.MerchantName == UnknownMerchant:
		r.logger.Error("Receipt extraction found neither merchant nor amount", attrs...)
	case draft.NeedsReview:
		r.logger.Warn("Receipt extraction needs review", attrs...)
	default:
		r.logger.Info("Receipt extraction complete", attrs...)
	}

	return draft, nil
}

func (p *Pipeline) visionTier(ctx context.Context, r *run) (*Candidate, Outcome) {
	if !available(p.vision) {
		p.record(r, TierVision, OutcomeSkipped, time.Now(), nil)
		return nil, OutcomeSkipped
	}

	start := time.Now()
	c, err := p.call(ctx, func(ctx context.Context) (*Candidate, error) {
		data, mimeType, err := visionPayload(r.raw, r.img)
		if err != nil {
			return nil, err
		}
		return p.vision.ParseImage(ctx, data, mimeType)
	})
	outcome := decide(true, c, err, p.gate)
	p.record(r, TierVision, outcome, start, err)
	return c, outcome
}

func (p *Pipeline) textTier(ctx context.Context, r *run) (*Candidate, Outcome) {
	text := r.text()
	if text == "" || !available(p.text) {
		p.record(r, TierText, OutcomeSkipped, time.Now(), nil)
		return nil, OutcomeSkipped
	}

	start := time.Now()
	c, err := p.call(ctx, func(ctx context.Context) (*Candidate, error) {
		return p.text.ParseText(ctx, text)
	})
	outcome := decide(true, c, err, p.gate)
	p.record(r, TierText, outcome, start, err)
	return c, outcome
}

// recognize preprocesses and OCRs the image once per run.
func (p *Pipeline) recognize(ctx context.Context, r *run) {
	if r.ocrDone {
		return
	}
	r.ocrDone = true

	if !available(p.ocr) {
		r.logger.Debug("OCR unavailable, continuing without text")
		return
	}

	start := time.Now()
	text, err := p.ocrText(ctx, r.img)
	if err != nil {
		r.logger.Warn("OCR failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return
	}
	r.logger.Debug("OCR complete", "chars", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	r.rawText = &text
}

func (p *Pipeline) ocrText(ctx context.Context, img image.Image) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during OCR: %v", rec)
		}
	}()

	pre, err := p.pre.Preprocess(img)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.tierTimeout)
	defer cancel()
	return p.ocr.Recognize(ctx, pre)
}

// call runs fn under the tier timeout and turns panics into errors.
func (p *Pipeline) call(ctx context.Context, fn func(context.Context) (*Candidate, error)) (c *Candidate, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			c, err = nil, fmt.Errorf("panic: %v", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.tierTimeout)
	defer cancel()
	return fn(ctx)
}

func (p *Pipeline) record(r *run, tier Tier, outcome Outcome, start time.Time, err error) {
	elapsed := time.Since(start)
	p.metrics.observeTier(tier, outcome, elapsed.Seconds())

	switch outcome {
	case OutcomeFailed:
		if err == nil {
			err = errors.New("no candidate returned")
		}
		r.logger.Warn("Extraction tier failed", "error", &TierFailure{Tier: tier, Err: err}, "tier", tier, "elapsed_ms", elapsed.Milliseconds())
	case OutcomeSkipped:
		r.logger.Debug("Extraction tier skipped", "tier", tier)
	default:
		r.logger.Info("Extraction tier finished", "tier", tier, "outcome", outcome, "elapsed_ms", elapsed.Milliseconds())
	}
}

// Capabilities reports which optional collaborators are usable.
func (p *Pipeline) Capabilities() map[string]bool {
	return map[string]bool{
		"vision": available(p.vision),
		"text":   available(p.text),
		"ocr":    available(p.ocr),
	}
}

func (r *run) text() string {
	if r.rawText == nil {
		return ""
	}
	return *r.rawText
}

// available treats a nil or panicking capability as unavailable.
func available(c Capability) (ok bool) {
	if c == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return c.Available()
}

func confidenceOf(c *Candidate, fallback float64) float64 {
	if c == nil || c.ConfidenceScore == nil {
		return fallback
	}
	return *c.ConfidenceScore
}
