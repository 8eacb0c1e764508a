package domain

// ClassificationResult is the support-relevance verdict for one email.
type ClassificationResult struct {
	IsSupport  bool
	Confidence float64
	Reasoning  string
}

// Summary is the summarization output used to build a ticket draft.
type Summary struct {
	Title       string
	Description string
	Priority    TicketPriority
}

// Categorization is the categorization output for a summarized email.
type Categorization struct {
	Category    string
	Subcategory string
	Confidence  float64
}
