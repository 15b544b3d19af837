package ai

import (
	"fmt"
	"strings"

	"google.golang.org/genai"
)

func receiptPrompt(categories []string) string {
	return fmt.Sprintf(`Analyze this receipt/document. Extract the total amount, the merchant name (as description), the date (YYYY-MM-DD), and categorize it.
IMPORTANT: Try to fit the transaction into one of these existing categories: [%s].
If it strictly does not fit any, suggest a new short category name in Portuguese.
Return JSON.`, strings.Join(categories, ", "))
}

func statementPrompt(income, expense []string) string {
	return fmt.Sprintf(`Analyze this image or document. It is likely a bank statement, credit card bill, or list of transactions.
Extract ALL visible transactions into a list.
For each transaction:
1. Identify date (YYYY-MM-DD). If year is missing, assume current year.
2. Description (Merchant name).
3. Amount (positive number).
4. Type: 'income' (deposits, salaries, positive values in green) or 'expense' (payments, purchases, negative values).
5. Category: Choose best fit from [%s] for expenses, or [%s] for income. If none fit, suggest a new Portuguese name.

Return a JSON Array of objects.`, strings.Join(expense, ", "), strings.Join(income, ", "))
}

const itemizedPrompt = `Analyze this grocery receipt. Extract the merchant name, date, total amount, and a detailed list of purchased items.
For each item, extract:
- Name (be specific, e.g., "Cerveja Heineken 350ml")
- Category (e.g., "Bebida", "Açougue", "Limpeza", "Hortifruti", "Mercearia")
- Price (total price for the item line)
- Quantity (if available, otherwise 1)

Return JSON.`

var receiptSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"amount":      {Type: genai.TypeNumber},
		"description": {Type: genai.TypeString},
		"date":        {Type: genai.TypeString, Description: "ISO Date format YYYY-MM-DD"},
		"category":    {Type: genai.TypeString},
	},
	Required: []string{"amount", "description", "category"},
}

var statementSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"description": {Type: genai.TypeString},
			"amount":      {Type: genai.TypeNumber},
			"date":        {Type: genai.TypeString},
			"type":        {Type: genai.TypeString, Enum: []string{"income", "expense"}},
			"category":    {Type: genai.TypeString},
		},
		Required: []string{"description", "amount", "type", "category"},
	},
}

var itemizedSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"merchant": {Type: genai.TypeString},
		"date":     {Type: genai.TypeString, Description: "YYYY-MM-DD"},
		"total":    {Type: genai.TypeNumber},
		"items": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":     {Type: genai.TypeString},
					"category": {Type: genai.TypeString},
					"price":    {Type: genai.TypeNumber},
					"quantity": {Type: genai.TypeNumber},
				},
			},
		},
	},
	Required: []string{"merchant", "total", "items"},
}
