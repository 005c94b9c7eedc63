package scanning

const systemPrompt = "You are a receipt parsing expert. You read receipts, invoices and payment screenshots and return structured purchase data as JSON."

// receiptRules are shared by the image and text prompts.
const receiptRules = `Rules:
1. Ignore app and browser chrome such as status bars, navigation buttons, battery or signal icons and "Order again" style buttons. Only read the receipt itself.
2. merchantName is the business that was paid. If the header is unclear look for a footer, a website URL or a "Thank you for shopping at" line.
3. total is the final amount charged after tax and discounts. It is never the cash tendered or the change given.
4. subtotal and tax are the amounts printed next to those labels, or null.
5. transactionDate must be YYYY-MM-DD. Use null when no date is printed.
6. items lists each purchased product in the order printed. Use the product name, not sub-lines such as "2 @ 1.99" or SKU codes.
7. quantity is a whole number of units, price is the line total and unitPrice is the price of one unit.
8. category must be one of: Groceries, Dining, Transportation, Health, Shopping, Entertainment, Bills, Travel, Education, Other.
9. All money values are plain numbers without currency symbols.
10. confidenceScore is your confidence from 0.0 to 1.0 that the extracted data is correct.
Use null for any field you cannot find. Return only the JSON object, with no markdown.`

const imagePrompt = "Extract the purchase details from this receipt image.\n\n" + receiptRules

const textPromptPrefix = "Extract the purchase details from this receipt text. The text came from OCR and may contain recognition errors, broken lines and stray characters.\n\n" + receiptRules + "\n\nReceipt text:\n"

func textPrompt(text string) string {
	return textPromptPrefix + text
}
