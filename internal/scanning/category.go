package scanning

import "strings"

type categoryRule struct {
	keywords []string
	category Category
}

// aiCategoryRules maps free-form category labels onto the closed set.
// Order matters: the first rule with a matching keyword wins.
var aiCategoryRules = []categoryRule{
	{[]string{"grocer", "supermarket", "market"}, CategoryGroceries},
	{[]string{"dining", "restaurant", "food", "cafe", "coffee", "pizza", "burger", "diner", "eat"}, CategoryDining},
	{[]string{"transport", "gas", "fuel", "uber", "lyft", "taxi", "parking", "transit"}, CategoryTransportation},
	{[]string{"health", "pharmacy", "medical", "drug", "hospital", "clinic"}, CategoryHealth},
	{[]string{"shop", "retail", "store", "mall", "cloth", "fashion"}, CategoryShopping},
	{[]string{"entertain", "movie", "cinema", "game", "sport", "music"}, CategoryEntertainment},
	{[]string{"bill", "utilit", "electric", "water", "internet", "phone"}, CategoryBills},
	{[]string{"travel", "hotel", "flight", "airlin", "lodg"}, CategoryTravel},
	{[]string{"educat", "school", "book", "course", "tutor"}, CategoryEducation},
}

// NormalizeCategory maps any category label to one of Categories.
// Unknown or empty labels become CategoryOther.
func NormalizeCategory(label string) Category {
	lower := strings.ToLower(strings.TrimSpace(label))
	if lower == "" {
		return CategoryOther
	}
	for _, c := range Categories {
		if strings.ToLower(string(c)) == lower {
			return c
		}
	}
	for _, rule := range aiCategoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return CategoryOther
}
