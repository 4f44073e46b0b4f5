package prompts

// Tool descriptions shown to the model. Names are referenced by the
// routing rules in the system instruction.
const (
	FinancialInfoToolDescription = "Get user's financial information including income, credit score, and debt details."

	AccountDetailToolDescription = "Get detailed user account information: account number, type, status, last update and contact email."

	LoanDetailToolDescription = "Get comprehensive loan details including payment history and terms. Use for a full loan breakdown."

	MortgageRateToolDescription = "Get current market mortgage rates (30-year fixed, 15-year fixed, 5/1 ARM)."

	LoanAdvisorToolDescription = "Personalized Loan Advisor: get loan advice and optimization strategies for closing a loan early, prepaying, reducing the payment or optimizing repayment."

	RefinanceToolDescription = `Smart Refinance Agent: advanced refinance analysis comparing the current loan with new terms.
Optional new_interest_rate, new_credit_score and new_income override the stored values.
Always use this tool for refinancing, comparing offers, refinance savings or benefit/loss questions.`
)
