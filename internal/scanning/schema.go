package scanning

import (
	"github.com/google/generative-ai-go/genai"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

func categoryNames() []string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = string(c)
	}
	return names
}

// receiptResponseSchema is the JSON Schema requested from Ollama and OpenAI.
func receiptResponseSchema() map[string]any {
	categoryEnum := []any{nil}
	for _, name := range categoryNames() {
		categoryEnum = append(categoryEnum, name)
	}
	nullable := func(t string) map[string]any {
		return map[string]any{"type": []string{t, "null"}}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"merchantName":    nullable("string"),
			"subtotal":        nullable("number"),
			"tax":             nullable("number"),
			"total":           nullable("number"),
			"transactionDate": map[string]any{"type": []string{"string", "null"}, "description": "YYYY-MM-DD"},
			"category":        map[string]any{"type": []string{"string", "null"}, "enum": categoryEnum},
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":      nullable("string"),
						"quantity":  nullable("integer"),
						"unitPrice": nullable("number"),
						"price":     nullable("number"),
						"category":  nullable("string"),
					},
					"required": []string{"name", "quantity", "unitPrice", "price", "category"},
				},
			},
			"confidenceScore": nullable("number"),
			"paymentMethod":   nullable("string"),
			"transactionId":   nullable("string"),
			"address":         nullable("string"),
			"phoneNumber":     nullable("string"),
		},
		"required": []string{"merchantName", "subtotal", "tax", "total", "transactionDate", "category", "items", "confidenceScore"},
	}
}

// genaiReceiptSchema mirrors receiptResponseSchema for Gemini.
func genaiReceiptSchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc, Nullable: true}
	}
	num := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeNumber, Description: desc, Nullable: true}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"merchantName":    str("Business that was paid"),
			"subtotal":        num("Amount before tax"),
			"tax":             num("Tax amount"),
			"total":           num("Final amount charged"),
			"transactionDate": str("Transaction date as YYYY-MM-DD"),
			"category": {
				Type:     genai.TypeString,
				Format:   "enum",
				Enum:     categoryNames(),
				Nullable: true,
			},
			"items": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":      str("Product name"),
						"quantity":  {Type: genai.TypeInteger, Nullable: true},
						"unitPrice": num("Price of one unit"),
						"price":     num("Line total"),
						"category":  str("Item category"),
					},
				},
			},
			"confidenceScore": num("Confidence from 0.0 to 1.0"),
			"paymentMethod":   str("Card, cash or wallet used"),
			"transactionId":   str("Transaction or order number"),
			"address":         str("Merchant address"),
			"phoneNumber":     str("Merchant phone number"),
		},
		Required: []string{"merchantName", "total", "transactionDate", "category", "items"},
	}
}

// candidateShape is the structural check applied to every AI response before
// fields are read. Scalars are loose; numeric strings are parsed per field.
// Item entries are not typed so a stray non-object entry is dropped on its own.
const candidateShape = `{
  "type": "object",
  "properties": {
    "merchantName":    {"type": ["string", "null"]},
    "subtotal":        {"type": ["number", "string", "null"]},
    "tax":             {"type": ["number", "string", "null"]},
    "total":           {"type": ["number", "string", "null"]},
    "transactionDate": {"type": ["string", "null"]},
    "category":        {"type": ["string", "null"]},
    "confidenceScore": {"type": ["number", "string", "null"]},
    "paymentMethod":   {"type": ["string", "null"]},
    "transactionId":   {"type": ["string", "number", "null"]},
    "address":         {"type": ["string", "null"]},
    "phoneNumber":     {"type": ["string", "null"]},
    "items": {
      "type": ["array", "null"],
      "items": {
        "properties": {
          "name":      {"type": ["string", "null"]},
          "quantity":  {"type": ["number", "string", "null"]},
          "unitPrice": {"type": ["number", "string", "null"]},
          "price":     {"type": ["number", "string", "null"]},
          "category":  {"type": ["string", "null"]}
        }
      }
    }
  }
}`

var candidateSchema = jsonschema.MustCompileString("candidate.json", candidateShape)
