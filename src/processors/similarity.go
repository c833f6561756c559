// backend/src/processors/similarity.go
package processors

import (
	"math"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"github.com/username/moneyfolio/backend/src/logger"
	"github.com/username/moneyfolio/backend/src/models"
	"github.com/username/moneyfolio/backend/src/utils"
)

// ScorerConfig holds the weights and tolerances for pair scoring.
// Weights sum to 100 so the final score reads as a percentage.
type ScorerConfig struct {
	AmountWeight      int
	DirectionWeight   int
	DescriptionWeight int
	DateWeight        int

	// AmountTolerance absorbs floating-point and rounding drift when
	// comparing signed amounts.
	AmountTolerance float64

	// MaxDayGap disqualifies pairs whose execution dates are further apart.
	// Recurring monthly charges must not be flagged as duplicates of each
	// other.
	MaxDayGap int
}

// DefaultScorerConfig returns the tuned production weights.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		AmountWeight:      30,
		DirectionWeight:   10,
		DescriptionWeight: 40,
		DateWeight:        20,
		AmountTolerance:   0.01,
		MaxDayGap:         14,
	}
}

// SimilarityScorer computes a 0-100 match score between an incoming candidate
// transaction and a stored one. Scoring is pure: no store access happens
// between reading the inputs and producing the score.
type SimilarityScorer struct {
	cfg ScorerConfig
}

func NewSimilarityScorer(cfg ScorerConfig) *SimilarityScorer {
	return &SimilarityScorer{cfg: cfg}
}

// Score returns the weighted match score for a pair, or a hard 0 for
// disqualified pairs (corrupt negative magnitudes, or execution dates more
// than MaxDayGap days apart).
func (s *SimilarityScorer) Score(candidate models.TransactionInput, stored models.Transaction) int {
	// Magnitudes are non-negative by invariant; a negative value signals
	// corrupt data and disqualifies the pair rather than aborting the scan.
	if candidate.Amount < 0 || stored.Amount < 0 {
		logger.L.Warn("Negative transaction magnitude encountered during scoring, pair disqualified",
			"candidateAmount", candidate.Amount, "storedID", stored.ID, "storedAmount", stored.Amount)
		return 0
	}

	candDay, candHasDay := utils.ParseDay(candidate.ExecutionDate)
	storedDay, storedHasDay := utils.ParseDay(stored.ExecutionDate)
	dayGap := -1
	if candHasDay && storedHasDay {
		dayGap = utils.DayDiff(candDay, storedDay)
		if dayGap > s.cfg.MaxDayGap {
			return 0
		}
	}

	total := 0.0
	if math.Abs(candidate.SignedAmount()-stored.SignedAmount()) <= s.cfg.AmountTolerance {
		total += float64(s.cfg.AmountWeight)
	}
	if candidate.Direction == stored.Direction {
		total += float64(s.cfg.DirectionWeight)
	}
	total += float64(s.cfg.DescriptionWeight) * DescriptionSimilarity(candidate.Description, stored.Description)
	total += s.datePoints(dayGap)

	return int(math.Round(total))
}

// datePoints grades date proximity on a graduated scale. A gap of -1 means at
// least one side has no execution date, which earns nothing but does not
// disqualify.
func (s *SimilarityScorer) datePoints(dayGap int) float64 {
	switch {
	case dayGap == 0:
		return 20
	case dayGap == 1:
		return 16
	case dayGap == 2:
		return 12
	case dayGap >= 3 && dayGap <= 7:
		return 8
	default:
		return 0
	}
}

// DescriptionSimilarity returns a [0,1] ratio for two raw descriptions: the
// greater of token-overlap and edit-distance similarity over the normalized
// strings. Identical normalized strings score 1.0 outright.
func DescriptionSimilarity(a, b string) float64 {
	na := NormalizeDescription(a)
	nb := NormalizeDescription(b)
	if na == nb {
		return 1.0
	}
	overlap := tokenOverlapRatio(na, nb)
	edit := editSimilarity(na, nb)
	return math.Max(overlap, edit)
}

// NormalizeDescription lowercases, strips non-alphanumeric characters and
// collapses whitespace.
func NormalizeDescription(raw string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(raw) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// DescriptionsSimilar is the looser check used by the batch scanner's fuzzy
// pass: containment after normalization, or a word-overlap ratio at or above
// minOverlapPercent.
func DescriptionsSimilar(a, b string, minOverlapPercent float64) bool {
	na := NormalizeDescription(a)
	nb := NormalizeDescription(b)
	if na == "" || nb == "" {
		return na == nb
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return tokenOverlapRatio(na, nb)*100 >= minOverlapPercent
}

// tokenOverlapRatio computes 2*|common| / (|A| + |B|) over the unique token
// sets of two normalized strings.
func tokenOverlapRatio(na, nb string) float64 {
	tokensA := tokenSet(na)
	tokensB := tokenSet(nb)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	common := 0
	for token := range tokensA {
		if tokensB[token] {
			common++
		}
	}
	return 2 * float64(common) / float64(len(tokensA)+len(tokensB))
}

// editSimilarity computes 1 - levenshtein/maxLen over normalized strings.
func editSimilarity(na, nb string) float64 {
	ra, rb := []rune(na), []rune(nb)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1.0
	}
	distance := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	return 1 - float64(distance)/float64(maxLen)
}

func tokenSet(normalized string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range strings.Fields(normalized) {
		set[token] = true
	}
	return set
}
