package models

// Sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// ReviewSentiment is the classification of a single review.
type ReviewSentiment struct {
	Review    string  `json:"review"`
	Sentiment string  `json:"sentiment"`
	Polarity  float64 `json:"polarity"`
}

// SentimentSummary aggregates review classifications from one snapshot.
type SentimentSummary struct {
	Total    int               `json:"total"`
	Positive int               `json:"positive"`
	Negative int               `json:"negative"`
	Neutral  int               `json:"neutral"`
	Reviews  []ReviewSentiment `json:"reviews"`
	Skipped  int               `json:"skipped"`
}
