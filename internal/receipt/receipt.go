package receipt

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-scanner/internal/scanning"
)

// Receipt is a stored upload together with the draft extracted from it.
type Receipt struct {
	ID              string              `json:"id"`
	MerchantName    string              `json:"merchant_name"`
	Amount          decimal.Decimal     `json:"amount"`
	TransactionDate time.Time           `json:"transaction_date"`
	Category        scanning.Category   `json:"category"`
	Items           []scanning.LineItem `json:"items"`
	Subtotal        *decimal.Decimal    `json:"subtotal,omitempty"`
	Tax             *decimal.Decimal    `json:"tax,omitempty"`
	PaymentMethod   string              `json:"payment_method,omitempty"`
	TransactionID   string              `json:"transaction_id,omitempty"`
	Address         string              `json:"address,omitempty"`
	PhoneNumber     string              `json:"phone_number,omitempty"`

	Confidence  float64       `json:"confidence"`
	NeedsReview bool          `json:"needs_review"`
	Tier        scanning.Tier `json:"tier"`
	RawText     *string       `json:"raw_text"`
	ReviewedAt  *time.Time    `json:"reviewed_at,omitempty"`

	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// fromDraft copies the extracted fields of d into a new Receipt.
func fromDraft(id string, d *scanning.Draft) *Receipt {
	return &Receipt{
		ID:              id,
		MerchantName:    d.MerchantName,
		Amount:          d.Amount,
		TransactionDate: d.TransactionDate,
		Category:        d.Category,
		Items:           d.Items,
		Subtotal:        d.Subtotal,
		Tax:             d.Tax,
		PaymentMethod:   d.PaymentMethod,
		TransactionID:   d.TransactionID,
		Address:         d.Address,
		PhoneNumber:     d.PhoneNumber,
		Confidence:      d.Confidence,
		NeedsReview:     d.NeedsReview,
		Tier:            d.Tier,
		RawText:         d.RawText,
	}
}
