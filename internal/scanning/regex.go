package scanning

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RegexConfidence is the tier confidence reported for regex extraction.
const RegexConfidence = 0.70

const maxMerchantCandidates = 3

// money matches a price with two decimals. US thousands grouping is tried
// first so "1,234.56" is not split into "1,23" and "4.56".
const money = `(\d{1,3}(?:,\d{3})+\.\d{2}|\d+[.,]\d{2})`

type merchantExclusion struct {
	name string
	re   *regexp.Regexp
}

// merchantExclusions reject header lines that are clearly not a store name.
var merchantExclusions = []merchantExclusion{
	{"no letters", regexp.MustCompile(`^[^\p{L}]*$`)},
	{"phone", regexp.MustCompile(`\d{3}[-.\s]\d{3}[-.\s]\d{4}`)},
	{"postal code", regexp.MustCompile(`\d{5}(-\d{4})?`)},
	{"street", regexp.MustCompile(`(?i)\b(street|avenue|blvd|road|suite|ste|apt|floor)\b|\b(st|ave|rd|dr)\.`)},
	{"header label", regexp.MustCompile(`(?i)^(tel|fax|phone|date|time|cashier|server|table|order|receipt|register|terminal|store|#)`)},
	{"date", regexp.MustCompile(`^\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}`)},
	{"price", regexp.MustCompile(`^\$?\d+\.\d{2}$`)},
	{"summary", regexp.MustCompile(`(?i)^(subtotal|total|tax|change|cash|credit|debit|visa|mastercard|amex)`)},
}

var shoutedWord = regexp.MustCompile(`[A-Z]{3,}`)

// amountRules are tried in order. Within a rule the last match wins because
// receipts often repeat a label and the final occurrence is the settled one.
var amountRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:grand\s*)?total[:\s]*\$?\s*` + money),
	regexp.MustCompile(`(?i)amount\s*due[:\s]*\$?\s*` + money),
	regexp.MustCompile(`(?i)balance\s*(?:due)?[:\s]*\$?\s*` + money),
	regexp.MustCompile(`(?i)(?:you\s*)?paid[:\s]*\$?\s*` + money),
	regexp.MustCompile(`(?i)(?:debit|credit)\s*(?:tend)?[:\s]*\$?\s*` + money),
	regexp.MustCompile(`(?i)sale[:\s]*\$?\s*` + money),
}

var anyMoney = regexp.MustCompile(`\$?\s*` + money)

type dateRule struct {
	re     *regexp.Regexp
	layout string
}

var dateRules = []dateRule{
	{regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`), "01/02/2006"},
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), "2006-01-02"},
	{regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`), "1/2/2006"},
}

type itemRule struct {
	re        *regexp.Regexp
	qtyGroup  int
	nameGroup int
	rejectDay bool
}

var itemRules = []itemRule{
	{re: regexp.MustCompile(`(\d+)\s*[xX]\s*(.+?)\s+\$?\s*` + money), qtyGroup: 1, nameGroup: 2},
	{re: regexp.MustCompile(`(.+?)\s{2,}\$?\s*` + money), nameGroup: 1, rejectDay: true},
	{re: regexp.MustCompile(`(.+?)\s+\$` + money), nameGroup: 1, rejectDay: true},
}

var (
	summaryLine = regexp.MustCompile(`(?i)^(sub\s*total|total|tax|grand total|change|balance|amount|paid|cash|credit|debit|visa|mastercard|amex)`)
	dateShaped  = regexp.MustCompile(`^\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}$`)
)

// regexCategoryRules classify on the merchant name alone.
var regexCategoryRules = []struct {
	re       *regexp.Regexp
	category string
}{
	{regexp.MustCompile(`grocery|market|supermarket|food`), "Groceries"},
	{regexp.MustCompile(`coffee|cafe|restaurant|pizza|burger|diner`), "Food"},
	{regexp.MustCompile(`gas|fuel|shell|chevron`), "Transport"},
	{regexp.MustCompile(`pharmacy|drug|cvs|walgreens`), "Health"},
	{regexp.MustCompile(`mall|store|shop`), "Shopping"},
}

// RegexExtractor pulls a Candidate out of OCR text with fixed heuristics.
// It never fails and is safe for concurrent use.
type RegexExtractor struct{}

// Extract always returns a non-nil Candidate. When no date is found the
// TransactionDate is left nil and the Validator fills in today.
func (RegexExtractor) Extract(rawText string) *Candidate {
	lines := splitLines(rawText)

	merchant := extractMerchant(lines)
	amount := extractAmount(rawText)
	category := categorizeMerchant(merchant)

	c := &Candidate{
		MerchantName:    stringPtr(merchant),
		Total:           decimalPtr(amount),
		TransactionDate: extractDate(rawText),
		Category:        stringPtr(category),
		Items:           extractItems(lines),
		ConfidenceScore: floatPtr(RegexConfidence),
	}
	return c
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func extractMerchant(lines []string) string {
	var candidates []string
	for _, line := range lines {
		if len(candidates) == maxMerchantCandidates {
			break
		}
		if len(line) < 2 || isExcludedMerchantLine(line) {
			continue
		}
		candidates = append(candidates, line)
	}

	for _, c := range candidates {
		if c == strings.ToUpper(c) && shoutedWord.MatchString(c) {
			return c
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return UnknownMerchant
}

func isExcludedMerchantLine(line string) bool {
	for _, ex := range merchantExclusions {
		if ex.re.MatchString(line) {
			return true
		}
	}
	return false
}

func extractAmount(text string) decimal.Decimal {
	for _, re := range amountRules {
		matches := re.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			continue
		}
		last, ok := parseMoney(matches[len(matches)-1][1])
		if ok && last.IsPositive() {
			return last
		}
	}

	largest := decimal.Zero
	for _, m := range anyMoney.FindAllStringSubmatch(text, -1) {
		if v, ok := parseMoney(m[1]); ok && v.GreaterThan(largest) {
			largest = v
		}
	}
	return largest
}

// parseMoney accepts "12.34", "12,34" and "1,234.56".
func parseMoney(s string) (decimal.Decimal, bool) {
	if strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func extractDate(text string) *time.Time {
	for _, rule := range dateRules {
		m := rule.re.FindString(text)
		if m == "" {
			continue
		}
		if t, err := time.Parse(rule.layout, m); err == nil {
			return &t
		}
	}
	return nil
}

func extractItems(lines []string) []LineItemCandidate {
	var items []LineItemCandidate
	for _, line := range lines {
		if summaryLine.MatchString(line) {
			continue
		}
		if item, ok := matchItem(line); ok {
			items = append(items, item)
		}
	}
	return items
}

func matchItem(line string) (LineItemCandidate, bool) {
	for _, rule := range itemRules {
		m := rule.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[rule.nameGroup])
		if len(name) < 2 || (rule.rejectDay && dateShaped.MatchString(name)) {
			continue
		}
		price, ok := parseMoney(m[len(m)-1])
		if !ok {
			continue
		}

		item := LineItemCandidate{Name: name, Price: decimalPtr(price)}
		qty := 1
		if rule.qtyGroup > 0 {
			if n, err := strconv.Atoi(m[rule.qtyGroup]); err == nil && n > 0 {
				qty = n
			}
		}
		item.Quantity = &qty
		if qty > 1 {
			item.UnitPrice = decimalPtr(price.Div(decimal.NewFromInt(int64(qty))).Round(2))
		} else {
			item.UnitPrice = decimalPtr(price)
		}
		return item, true
	}
	return LineItemCandidate{}, false
}

func categorizeMerchant(merchant string) string {
	lower := strings.ToLower(merchant)
	for _, rule := range regexCategoryRules {
		if rule.re.MatchString(lower) {
			return rule.category
		}
	}
	return string(CategoryOther)
}

func floatPtr(f float64) *float64 { return &f }
