package scanning

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RegexExtractor", func() {
	var (
		extractor RegexExtractor
		text      string
		c         *Candidate
	)

	JustBeforeEach(func() {
		c = extractor.Extract(text)
	})

	When("given a typical grocery receipt", func() {
		BeforeEach(func() {
			text = "FRESH FOODS MARKET\n" +
				"123 Main Street\n" +
				"Springfield, IL 62704\n" +
				"Tel: 555-123-4567\n" +
				"01/15/2024 14:32\n" +
				"Bananas  $1.99\n" +
				"2x Milk $7.58\n" +
				"Subtotal: $9.57\n" +
				"Tax: $0.77\n" +
				"Total: $10.34\n" +
				"Cash $20.00\n" +
				"Change $9.66"
		})

		It("should pick the shouted store name", func() {
			Expect(*c.MerchantName).To(Equal("FRESH FOODS MARKET"))
		})

		It("should take the labelled total", func() {
			Expect(c.Total.String()).To(Equal("10.34"))
		})

		It("should parse the date", func() {
			Expect(*c.TransactionDate).To(Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
		})

		It("should categorize from the merchant name", func() {
			Expect(*c.Category).To(Equal("Groceries"))
		})

		It("should extract the items and skip summary lines", func() {
			Expect(c.Items).To(HaveLen(2))
			Expect(c.Items[0].Name).To(Equal("Bananas"))
			Expect(c.Items[0].Price.String()).To(Equal("1.99"))
			Expect(*c.Items[0].Quantity).To(Equal(1))
			Expect(c.Items[1].Name).To(Equal("Milk"))
			Expect(*c.Items[1].Quantity).To(Equal(2))
			Expect(c.Items[1].UnitPrice.String()).To(Equal("3.79"))
		})

		It("should report the regex confidence", func() {
			Expect(*c.ConfidenceScore).To(Equal(RegexConfidence))
		})
	})

	When("the total label appears more than once", func() {
		BeforeEach(func() {
			text = "CORNER SHOP\nTotal: $10.00\nDiscount applied\nTotal: $42.50"
		})

		It("should use the last occurrence", func() {
			Expect(c.Total.String()).To(Equal("42.5"))
		})
	})

	When("the first line is a phone number", func() {
		BeforeEach(func() {
			text = "555-123-4567\nJoe's Diner\nTotal 12.00"
		})

		It("should never select it as the merchant", func() {
			Expect(*c.MerchantName).To(Equal("Joe's Diner"))
		})
	})

	When("no header line survives the exclusions", func() {
		BeforeEach(func() {
			text = "555-123-4567\n01/02/2024\n$4.50"
		})

		It("should fall back to the unknown merchant", func() {
			Expect(*c.MerchantName).To(Equal(UnknownMerchant))
		})
	})

	When("the header is OCR noise without letters", func() {
		BeforeEach(func() {
			text = "~~ ~~\n=- ,.\n|| '\nCorner Deli\nTotal 8.25"
		})

		It("should skip the noise lines", func() {
			Expect(*c.MerchantName).To(Equal("Corner Deli"))
		})
	})

	When("every line is OCR noise", func() {
		BeforeEach(func() {
			text = "~~ ~~\n=- ,.\n|| '"
		})

		It("should fall back to the unknown merchant", func() {
			Expect(*c.MerchantName).To(Equal(UnknownMerchant))
		})
	})

	When("no mixed-case line is shouted", func() {
		BeforeEach(func() {
			text = "Blue Bottle Coffee\nOakland CA\nLatte $5.25"
		})

		It("should use the first surviving line", func() {
			Expect(*c.MerchantName).To(Equal("Blue Bottle Coffee"))
			Expect(*c.Category).To(Equal("Food"))
		})
	})

	When("only a lower priority keyword is present", func() {
		BeforeEach(func() {
			text = "GAS N GO\nAmount Due: 31,20\nSale 31,20"
		})

		It("should accept a decimal comma", func() {
			Expect(c.Total.String()).To(Equal("31.2"))
		})
	})

	When("no keyword is present", func() {
		BeforeEach(func() {
			text = "THE BOOK NOOK\nNovel 12.99\nBookmark 1.50"
		})

		It("should take the largest amount", func() {
			Expect(c.Total.String()).To(Equal("12.99"))
		})
	})

	When("amounts use thousands separators", func() {
		BeforeEach(func() {
			text = "ELECTRO WORLD\nGrand Total: $1,234.56"
		})

		It("should read the full amount", func() {
			Expect(c.Total.String()).To(Equal("1234.56"))
		})
	})

	When("there are no amounts", func() {
		BeforeEach(func() {
			text = "THANK YOU"
		})

		It("should return zero", func() {
			Expect(c.Total.IsZero()).To(BeTrue())
		})
	})

	When("the date is ISO formatted", func() {
		BeforeEach(func() {
			text = "STORE 42\n2024-03-09\nTOTAL 5.00"
		})

		It("should parse it", func() {
			Expect(*c.TransactionDate).To(Equal(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)))
		})
	})

	When("the date has single digit parts", func() {
		BeforeEach(func() {
			text = "Visited 3/9/2024"
		})

		It("should parse it", func() {
			Expect(*c.TransactionDate).To(Equal(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)))
		})
	})

	When("no date is present", func() {
		BeforeEach(func() {
			text = "SOMEWHERE\nTotal 3.00"
		})

		It("should leave the date for the validator to fill", func() {
			Expect(c.TransactionDate).To(BeNil())
		})
	})

	When("the text is empty", func() {
		BeforeEach(func() {
			text = ""
		})

		It("should still return a candidate", func() {
			Expect(c).NotTo(BeNil())
			Expect(*c.MerchantName).To(Equal(UnknownMerchant))
			Expect(c.Total.IsZero()).To(BeTrue())
			Expect(c.Items).To(BeEmpty())
			Expect(*c.Category).To(Equal("Other"))
		})
	})

	When("OCR produced a quantity line", func() {
		BeforeEach(func() {
			text = "2x Coffee $3.50"
		})

		It("should read quantity, name and price", func() {
			Expect(c.Items).To(HaveLen(1))
			Expect(c.Items[0].Name).To(Equal("Coffee"))
			Expect(*c.Items[0].Quantity).To(Equal(2))
			Expect(c.Items[0].Price.String()).To(Equal("3.5"))
		})
	})

	When("an item name looks like a date", func() {
		BeforeEach(func() {
			text = "01/02/2024  $5.00"
		})

		It("should not become a line item", func() {
			Expect(c.Items).To(BeEmpty())
		})
	})

	It("should be deterministic", func() {
		input := "ACME HARDWARE\n555 123 4567\nHammer  $19.99\nTOTAL $21.59\n12/24/2023"
		first := extractor.Extract(input)
		for i := 0; i < 5; i++ {
			Expect(extractor.Extract(input)).To(Equal(first))
		}
	})
})
