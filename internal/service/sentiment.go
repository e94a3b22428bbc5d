package service

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/kjstillabower/smartstore-copilot/internal/models"
)

// Polarity cut-offs for Classify.
const (
	positiveCutoff = 0.1
	negativeCutoff = -0.1
)

// SentimentService classifies store reviews from the reviews snapshot.
type SentimentService struct {
	path string
}

func NewSentimentService(path string) *SentimentService {
	return &SentimentService{path: path}
}

// Summarize scores every review in the snapshot. The review text is taken
// from the "review" column, or "text" when there is no "review" column.
// Rows with neither are counted as skipped.
func (s *SentimentService) Summarize(ctx context.Context) (models.SentimentSummary, error) {
	snap, err := readSnapshot(ctx, "reviews", s.path, "Reviews file not found")
	if err != nil {
		return models.SentimentSummary{}, err
	}

	sum := models.SentimentSummary{
		Reviews: make([]models.ReviewSentiment, 0, len(snap.Records)),
		Skipped: snap.Skipped,
	}
	for _, r := range snap.Records {
		text, ok := r.Get("review")
		if !ok {
			text, ok = r.Get("text")
		}
		if !ok {
			sum.Skipped++
			continue
		}
		label, polarity := Classify(text)
		switch label {
		case models.SentimentPositive:
			sum.Positive++
		case models.SentimentNegative:
			sum.Negative++
		default:
			sum.Neutral++
		}
		sum.Reviews = append(sum.Reviews, models.ReviewSentiment{
			Review:    text,
			Sentiment: label,
			Polarity:  polarity,
		})
	}
	sum.Total = len(sum.Reviews)
	return sum, nil
}

// Classify labels text positive (polarity > 0.1), negative (< -0.1) or neutral.
func Classify(text string) (label string, polarity float64) {
	polarity = Polarity(text)
	switch {
	case polarity > positiveCutoff:
		return models.SentimentPositive, polarity
	case polarity < negativeCutoff:
		return models.SentimentNegative, polarity
	default:
		return models.SentimentNeutral, polarity
	}
}

// Polarity scores text in [-1, 1] as the mean polarity of its sentiment
// words. A negator within the two preceding words scales a word by -0.5 and
// an intensifier directly before it by 1.3. Text without sentiment words
// scores 0.
func Polarity(text string) float64 {
	words := tokenize(text)
	var total float64
	var n int
	for i, w := range words {
		p, ok := lexicon[w]
		if !ok {
			continue
		}
		if i > 0 {
			if m, ok := intensifiers[words[i-1]]; ok {
				p *= m
			}
		}
		for j := i - 1; j >= 0 && j >= i-2; j-- {
			if isNegator(words[j]) {
				p *= -0.5
				break
			}
		}
		total += clamp(p)
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Round(clamp(total/float64(n))*1000) / 1000
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func isNegator(w string) bool {
	if _, ok := negators[w]; ok {
		return true
	}
	return strings.HasSuffix(w, "n't")
}

func clamp(p float64) float64 {
	return math.Max(-1, math.Min(1, p))
}

var negators = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "nothing": {}, "hardly": {}, "barely": {}, "without": {},
}

var intensifiers = map[string]float64{
	"very": 1.3, "really": 1.3, "extremely": 1.3, "so": 1.3, "super": 1.3,
	"too": 1.3, "quite": 1.3, "totally": 1.3, "absolutely": 1.3, "highly": 1.3,
}

// lexicon maps words to a polarity in [-1, 1]. Tuned for retail and
// delivery reviews.
var lexicon = map[string]float64{
	// positive
	"good": 0.7, "great": 0.8, "excellent": 1.0, "amazing": 0.6, "awesome": 1.0,
	"fantastic": 0.4, "wonderful": 1.0, "perfect": 1.0, "best": 1.0, "better": 0.5,
	"nice": 0.6, "love": 0.5, "loved": 0.7, "like": 0.2, "happy": 0.8,
	"satisfied": 0.5, "fresh": 0.3, "fast": 0.2, "quick": 0.33, "quickly": 0.33,
	"friendly": 0.375, "helpful": 0.5, "polite": 0.3, "clean": 0.37, "cheap": 0.4,
	"affordable": 0.4, "recommend": 0.5, "pleasant": 0.73, "easy": 0.43, "smooth": 0.4,
	"timely": 0.4, "reliable": 0.5, "tasty": 0.5, "delicious": 1.0, "worth": 0.3,
	"convenient": 0.4, "courteous": 0.5, "thanks": 0.2, "thank": 0.2, "superb": 1.0,
	// negative
	"bad": -0.7, "terrible": -1.0, "awful": -1.0, "horrible": -1.0, "worst": -1.0,
	"poor": -0.4, "late": -0.3, "slow": -0.3, "delayed": -0.4, "stale": -0.5,
	"rotten": -0.8, "broken": -0.4, "damaged": -0.5, "dirty": -0.6, "rude": -0.6,
	"expensive": -0.5, "overpriced": -0.6, "missing": -0.2, "wrong": -0.5, "angry": -0.5,
	"disappointed": -0.75, "disappointing": -0.6, "hate": -0.8, "hated": -0.9, "unhappy": -0.6,
	"spoiled": -0.6, "leaking": -0.4, "cold": -0.3, "useless": -0.5,
	"refund": -0.2, "complaint": -0.4, "problem": -0.3, "issue": -0.2, "mess": -0.5,
}
