// backend/src/processors/similarity_test.go
package processors

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/username/moneyfolio/backend/src/logger"
	"github.com/username/moneyfolio/backend/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func newScorer() *SimilarityScorer {
	return NewSimilarityScorer(DefaultScorerConfig())
}

func expense(desc string, amount float64, date string) models.Transaction {
	return models.Transaction{
		ID:            1,
		UserID:        1,
		Description:   desc,
		Amount:        amount,
		Direction:     models.DirectionExpense,
		ExecutionDate: date,
		Source:        models.SourceManual,
	}
}

func expenseInput(desc string, amount float64, date string) models.TransactionInput {
	return models.TransactionInput{
		Description:   desc,
		Amount:        amount,
		Direction:     models.DirectionExpense,
		ExecutionDate: date,
		Source:        models.SourceManual,
	}
}

func TestScoreIdenticalPair(t *testing.T) {
	s := newScorer()
	score := s.Score(expenseInput("Grocery Store", 45.30, "2025-03-10"), expense("Grocery Store", 45.30, "2025-03-10"))
	assert.Equal(t, 100, score)
}

func TestScoreOneDayApart(t *testing.T) {
	s := newScorer()
	score := s.Score(expenseInput("Grocery Store", 45.30, "2025-03-11"), expense("Grocery Store", 45.30, "2025-03-10"))
	assert.Equal(t, 96, score)
}

func TestScoreDateDecay(t *testing.T) {
	// Identical amount, direction and description; only the day gap varies.
	cases := []struct {
		date     string
		expected int
	}{
		{"2025-03-10", 100},
		{"2025-03-11", 96},
		{"2025-03-12", 92},
		{"2025-03-13", 88},
		{"2025-03-17", 88},
		{"2025-03-18", 80},
		{"2025-03-24", 80},
	}
	s := newScorer()
	stored := expense("Gym Membership", 29.99, "2025-03-10")
	prev := 101
	for _, tc := range cases {
		score := s.Score(expenseInput("Gym Membership", 29.99, tc.date), stored)
		assert.Equal(t, tc.expected, score, "date %s", tc.date)
		assert.LessOrEqual(t, score, prev, "date decay must be monotonic")
		prev = score
	}
}

func TestScoreRecurringMonthlyDisqualified(t *testing.T) {
	// 31 days apart is past the cutoff: recurring charges are not duplicates.
	s := newScorer()
	score := s.Score(expenseInput("Netflix Subscription", 15.99, "2025-04-10"), expense("Netflix Subscription", 15.99, "2025-03-10"))
	assert.Equal(t, 0, score)
}

func TestScoreJustInsideDayGapCutoff(t *testing.T) {
	s := newScorer()
	score := s.Score(expenseInput("Netflix Subscription", 15.99, "2025-03-24"), expense("Netflix Subscription", 15.99, "2025-03-10"))
	assert.Equal(t, 80, score)
	score = s.Score(expenseInput("Netflix Subscription", 15.99, "2025-03-25"), expense("Netflix Subscription", 15.99, "2025-03-10"))
	assert.Equal(t, 0, score)
}

func TestScoreNegativeMagnitudeDisqualified(t *testing.T) {
	s := newScorer()
	stored := expense("Grocery Store", 45.30, "2025-03-10")
	assert.Equal(t, 0, s.Score(expenseInput("Grocery Store", -45.30, "2025-03-10"), stored))

	corrupt := stored
	corrupt.Amount = -45.30
	assert.Equal(t, 0, s.Score(expenseInput("Grocery Store", 45.30, "2025-03-10"), corrupt))
}

func TestScoreMissingDateEarnsNoDatePoints(t *testing.T) {
	// No date on one side: the pair stays eligible but gets no date points.
	s := newScorer()
	score := s.Score(expenseInput("Grocery Store", 45.30, ""), expense("Grocery Store", 45.30, "2025-03-10"))
	assert.Equal(t, 80, score)
}

func TestScoreDirectionMismatch(t *testing.T) {
	// A refund mirroring a charge: same magnitude, opposite direction. The
	// signed amounts differ, so both amount and direction points are lost.
	s := newScorer()
	candidate := expenseInput("Store Refund", 45.30, "2025-03-10")
	candidate.Direction = models.DirectionIncome
	score := s.Score(candidate, expense("Store Refund", 45.30, "2025-03-10"))
	assert.Equal(t, 60, score)
}

func TestScoreUnrelatedPairStaysLow(t *testing.T) {
	s := newScorer()
	score := s.Score(expenseInput("Amazon Purchase", 15.99, "2025-03-18"), expense("Netflix Subscription", 15.99, "2025-03-10"))
	assert.Less(t, score, 60)
}

func TestScoreAmountTolerance(t *testing.T) {
	s := newScorer()
	score := s.Score(expenseInput("Grocery Store", 45.31, "2025-03-10"), expense("Grocery Store", 45.30, "2025-03-10"))
	assert.Equal(t, 100, score, "a one-cent difference is within tolerance")
	score = s.Score(expenseInput("Grocery Store", 45.35, "2025-03-10"), expense("Grocery Store", 45.30, "2025-03-10"))
	assert.Equal(t, 70, score, "a five-cent difference loses the amount points")
}

func TestNormalizeDescription(t *testing.T) {
	cases := []struct {
		raw      string
		expected string
	}{
		{"UBER *TRIP-123", "uber trip 123"},
		{"  Grocery   Store  ", "grocery store"},
		{"NETFLIX.COM", "netflix com"},
		{"", ""},
		{"***", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, NormalizeDescription(tc.raw), "raw %q", tc.raw)
	}
}

func TestDescriptionSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, DescriptionSimilarity("Grocery Store", "Grocery Store"))
	assert.Equal(t, 1.0, DescriptionSimilarity("UBER *TRIP-123", "uber trip 123"), "normalized-equal strings score 1.0")

	ratio := DescriptionSimilarity("Grocery Store Downtown", "Grocery Store")
	assert.GreaterOrEqual(t, ratio, 0.8, "shared tokens dominate")

	ratio = DescriptionSimilarity("Amazon Purchase", "Netflix Subscription")
	assert.Less(t, ratio, 0.5)
}

func TestDescriptionSimilarityTypo(t *testing.T) {
	// One-character typos defeat token overlap but not edit distance.
	ratio := DescriptionSimilarity("Grocey Store", "Grocery Store")
	assert.GreaterOrEqual(t, ratio, 0.9)
}

func TestDescriptionsSimilar(t *testing.T) {
	assert.True(t, DescriptionsSimilar("Netflix", "Netflix Subscription", 60), "containment")
	assert.True(t, DescriptionsSimilar("Rent Payment", "Payment Rent", 60), "full word overlap")
	assert.False(t, DescriptionsSimilar("Amazon Purchase", "Netflix Subscription", 60))
	assert.False(t, DescriptionsSimilar("Netflix", "", 60))
	assert.True(t, DescriptionsSimilar("", "", 60))
}
