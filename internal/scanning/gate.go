package scanning

import "strings"

// QualityGate decides whether a tier's Candidate is good enough to stop the
// fallback chain.
type QualityGate struct{}

// Accepts reports whether c has a positive total or subtotal, or names a
// real merchant.
func (QualityGate) Accepts(c *Candidate) bool {
	if c == nil {
		return false
	}
	if c.Total != nil && c.Total.IsPositive() {
		return true
	}
	if c.Subtotal != nil && c.Subtotal.IsPositive() {
		return true
	}
	return c.MerchantName != nil && !isPlaceholderMerchant(*c.MerchantName)
}

func isPlaceholderMerchant(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "unknown", strings.ToLower(UnknownMerchant):
		return true
	}
	return false
}
