package scanning

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownMerchant is the merchant name used when no tier could identify one.
const UnknownMerchant = "Unknown Merchant"

// Category is the closed set of spending categories a Draft can carry.
type Category string

const (
	CategoryGroceries      Category = "Groceries"
	CategoryDining         Category = "Dining"
	CategoryTransportation Category = "Transportation"
	CategoryHealth         Category = "Health"
	CategoryShopping       Category = "Shopping"
	CategoryEntertainment  Category = "Entertainment"
	CategoryBills          Category = "Bills"
	CategoryTravel         Category = "Travel"
	CategoryEducation      Category = "Education"
	CategoryOther          Category = "Other"
)

// Categories lists every valid Category in display order.
var Categories = []Category{
	CategoryGroceries,
	CategoryDining,
	CategoryTransportation,
	CategoryHealth,
	CategoryShopping,
	CategoryEntertainment,
	CategoryBills,
	CategoryTravel,
	CategoryEducation,
	CategoryOther,
}

// Tier identifies which stage of the pipeline produced a result.
type Tier string

const (
	TierVision Tier = "vision"
	TierText   Tier = "text"
	TierRegex  Tier = "regex"
)

// RawImage is the uploaded receipt as received from the host.
type RawImage struct {
	Data     []byte
	MimeType string
}

// Candidate is the loosely-typed result of a single extraction tier.
// Every field may be absent.
type Candidate struct {
	MerchantName    *string
	Subtotal        *decimal.Decimal
	Tax             *decimal.Decimal
	Total           *decimal.Decimal
	TransactionDate *time.Time
	Category        *string
	Items           []LineItemCandidate
	ConfidenceScore *float64

	PaymentMethod *string
	TransactionID *string
	Address       *string
	PhoneNumber   *string
}

// LineItemCandidate is one purchased item as reported by a tier.
type LineItemCandidate struct {
	Name      string
	Quantity  *int
	UnitPrice *decimal.Decimal
	Price     *decimal.Decimal
	Category  *string
}

// Draft is the canonical, validated record handed back to the host.
type Draft struct {
	MerchantName    string          `json:"merchantName"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionDate time.Time       `json:"transactionDate"`
	Category        Category        `json:"category"`
	Items           []LineItem      `json:"items"`
	Confidence      float64         `json:"confidence"`
	NeedsReview     bool            `json:"needsReview"`
	RawText         *string         `json:"rawText"`
	Tier            Tier            `json:"tier"`

	Subtotal      *decimal.Decimal `json:"subtotal,omitempty"`
	Tax           *decimal.Decimal `json:"tax,omitempty"`
	PaymentMethod string           `json:"paymentMethod,omitempty"`
	TransactionID string           `json:"transactionId,omitempty"`
	Address       string           `json:"address,omitempty"`
	PhoneNumber   string           `json:"phoneNumber,omitempty"`
}

// LineItem is a validated line on a Draft.
type LineItem struct {
	Name      string           `json:"name"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Category  string           `json:"category,omitempty"`
}

// Capability is implemented by every optional collaborator of the pipeline.
type Capability interface {
	// Available reports whether the collaborator is configured and usable right now.
	Available() bool
}

// ImageParser extracts a Candidate directly from receipt image bytes.
type ImageParser interface {
	Capability
	ParseImage(ctx context.Context, data []byte, mimeType string) (*Candidate, error)
}

// TextParser extracts a Candidate from OCR text.
type TextParser interface {
	Capability
	ParseText(ctx context.Context, text string) (*Candidate, error)
}

// StructuredParser is an AI backend able to work in both modes.
type StructuredParser interface {
	ImageParser
	TextParser
	// Close releases any resources held by the backend
	Close() error
}

// TextRecognizer turns a preprocessed receipt image into plain text.
type TextRecognizer interface {
	Capability
	Recognize(ctx context.Context, img *Preprocessed) (string, error)
}

// Clock supplies the current time, used for default transaction dates.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func stringPtr(s string) *string { return &s }

func decimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }
