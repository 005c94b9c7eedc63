package scanning

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	leadingNonNumeric  = regexp.MustCompile(`^[^\d.\-]+`)
	numberRun          = regexp.MustCompile(`^-?[\d.,]*\d`)
	decimalComma       = regexp.MustCompile(`^-?\d+,\d{1,2}$`)
)

// dateLayouts are tried in order when a model ignores the YYYY-MM-DD rule.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02-01-2006",
	time.RFC3339,
}

// extractJSONObject strips markdown fences and anything outside the outermost braces.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", errors.New("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return "", errors.New("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}

// decodeCandidate parses a model response into a Candidate. Individual
// fields that cannot be read become nil; a response that is not a JSON
// object of the expected shape is an error.
func decodeCandidate(text string) (*Candidate, error) {
	raw, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	if err := candidateSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("response does not match schema: %w", err)
	}
	fields := doc.(map[string]any)

	c := &Candidate{
		MerchantName:    stringField(fields["merchantName"]),
		Subtotal:        decimalField(fields["subtotal"]),
		Tax:             decimalField(fields["tax"]),
		Total:           decimalField(fields["total"]),
		TransactionDate: dateField(fields["transactionDate"]),
		Category:        stringField(fields["category"]),
		ConfidenceScore: confidenceField(fields["confidenceScore"]),
		PaymentMethod:   stringField(fields["paymentMethod"]),
		TransactionID:   stringField(fields["transactionId"]),
		Address:         stringField(fields["address"]),
		PhoneNumber:     stringField(fields["phoneNumber"]),
	}

	if items, ok := fields["items"].([]any); ok {
		for _, v := range items {
			obj, ok := v.(map[string]any)
			if !ok {
				continue
			}
			item := LineItemCandidate{
				Quantity:  quantityField(obj["quantity"]),
				UnitPrice: decimalField(obj["unitPrice"]),
				Price:     decimalField(obj["price"]),
				Category:  stringField(obj["category"]),
			}
			if name := stringField(obj["name"]); name != nil {
				item.Name = *name
			}
			c.Items = append(c.Items, item)
		}
	}

	return c, nil
}

func stringField(v any) *string {
	switch s := v.(type) {
	case string:
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		return &s
	case float64:
		str := strconv.FormatFloat(s, 'f', -1, 64)
		return &str
	}
	return nil
}

// decimalField accepts numbers and strings such as "$17.99" or "17.99 USD".
func decimalField(v any) *decimal.Decimal {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		d := decimal.NewFromFloat(n)
		return &d
	case string:
		s := numberRun.FindString(leadingNonNumeric.ReplaceAllString(strings.TrimSpace(n), ""))
		if s == "" {
			return nil
		}
		d, err := decimal.NewFromString(normalizeSeparators(s))
		if err != nil {
			return nil
		}
		return &d
	}
	return nil
}

// normalizeSeparators rewrites s so "." is the only decimal point. When both
// separators appear the last one is the decimal point, so "1.234,56" and
// "1,234.56" agree. A lone comma is decimal only with one or two digits after it.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastComma > lastDot && lastDot >= 0:
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	case lastDot < 0 && decimalComma.MatchString(s):
		return strings.Replace(s, ",", ".", 1)
	}
	return strings.ReplaceAll(s, ",", "")
}

func quantityField(v any) *int {
	d := decimalField(v)
	if d == nil {
		return nil
	}
	q := int(d.IntPart())
	if q < 1 {
		return nil
	}
	return &q
}

func confidenceField(v any) *float64 {
	d := decimalField(v)
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

func dateField(v any) *time.Time {
	s := stringField(v)
	if s == nil {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &day
		}
	}
	return nil
}
