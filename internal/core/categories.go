package core

// DefaultCategories returns the categories every new user starts with.
func DefaultCategories() []Category {
	const incomeColor = "#34C759"
	return []Category{
		{Name: "Salary", Kind: Income, Color: incomeColor},
		{Name: "Freelance", Kind: Income, Color: incomeColor},
		{Name: "Investments", Kind: Income, Color: incomeColor},
		{Name: "Gifts", Kind: Income, Color: incomeColor},
		{Name: "Rental", Kind: Income, Color: incomeColor},
		{Name: "Other Income", Kind: Income, Color: incomeColor},

		{Name: "Food & Dining", Kind: Expense, Color: "#FF9500"},
		{Name: "Transportation", Kind: Expense, Color: "#5AC8FA"},
		{Name: "Housing & Utilities", Kind: Expense, Color: "#FF3B30"},
		{Name: "Shopping", Kind: Expense, Color: "#AF52DE"},
		{Name: "Healthcare", Kind: Expense, Color: "#FF2D55"},
		{Name: "Other Expenses", Kind: Expense, Color: "#8E8E93"},
	}
}
