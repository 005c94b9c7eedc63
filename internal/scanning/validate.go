package scanning

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultAIConfidence applies when a model omits confidenceScore.
	DefaultAIConfidence = 0.95
	// ReviewThreshold is the confidence below which a draft needs review.
	ReviewThreshold = 0.50

	emptyConfidenceCap = 0.10
	noAmountCap        = 0.30
	unknownMerchantCap = 0.50
)

// Validator turns a Candidate into a Draft and assigns the final confidence.
type Validator struct {
	clock Clock
}

// NewValidator returns a Validator. A nil clock uses the system time.
func NewValidator(clock Clock) *Validator {
	if clock == nil {
		clock = systemClock{}
	}
	return &Validator{clock: clock}
}

// Validate applies defaults and confidence downgrades. tierConfidence is
// the confidence the producing tier reported for c.
func (v *Validator) Validate(c *Candidate, tierConfidence float64) *Draft {
	if c == nil {
		c = &Candidate{}
	}

	d := &Draft{
		MerchantName: UnknownMerchant,
		Amount:       decimal.Zero,
		Category:     CategoryOther,
		Items:        []LineItem{},
	}

	if c.MerchantName != nil && !isPlaceholderMerchant(*c.MerchantName) {
		d.MerchantName = strings.TrimSpace(*c.MerchantName)
	}

	switch {
	case c.Total != nil && c.Total.IsPositive():
		d.Amount = *c.Total
	case c.Subtotal != nil && c.Subtotal.IsPositive():
		d.Amount = *c.Subtotal
	}

	if c.TransactionDate != nil {
		d.TransactionDate = *c.TransactionDate
	} else {
		now := v.clock.Now()
		d.TransactionDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	if c.Category != nil {
		d.Category = NormalizeCategory(*c.Category)
	}

	for _, it := range c.Items {
		item := LineItem{
			Name:      strings.TrimSpace(it.Name),
			Quantity:  1,
			UnitPrice: it.UnitPrice,
			Price:     it.Price,
		}
		if it.Quantity != nil && *it.Quantity > 0 {
			item.Quantity = *it.Quantity
		}
		if it.Category != nil {
			item.Category = *it.Category
		}
		d.Items = append(d.Items, item)
	}

	if c.Subtotal != nil && !c.Subtotal.IsNegative() {
		d.Subtotal = c.Subtotal
	}
	if c.Tax != nil && !c.Tax.IsNegative() {
		d.Tax = c.Tax
	}
	d.PaymentMethod = deref(c.PaymentMethod)
	d.TransactionID = deref(c.TransactionID)
	d.Address = deref(c.Address)
	d.PhoneNumber = deref(c.PhoneNumber)

	unknown := d.MerchantName == UnknownMerchant
	zero := d.Amount.IsZero()

	conf := clamp(tierConfidence, 0, 1)
	switch {
	case zero && unknown:
		conf = emptyConfidenceCap
	case zero:
		conf = min(conf, noAmountCap)
	case unknown:
		conf = min(conf, unknownMerchantCap)
	}
	d.Confidence = conf
	d.NeedsReview = conf < ReviewThreshold || zero || unknown

	return d
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return max(lo, min(v, hi))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
