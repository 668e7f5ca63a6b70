package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentalscope/internal/models"
)

// MockOracle is a mock implementation of the Oracle interface
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type fakeStore struct {
	pending []models.Listing
	applied []map[string]string
	failSet bool
}

func (s *fakeStore) ListUncategorized(ctx context.Context) ([]models.Listing, error) {
	return s.pending, nil
}

func (s *fakeStore) SetCategories(ctx context.Context, categories map[string]string, source string) error {
	if s.failSet {
		return errors.New("disk full")
	}
	s.applied = append(s.applied, categories)
	return nil
}

func testListings(n int) []models.Listing {
	out := make([]models.Listing, n)
	for i := range out {
		out[i] = models.Listing{
			ID:          fmt.Sprintf("listing-%d", i),
			Title:       fmt.Sprintf("Listing %d", i),
			PriceCents:  int64(100000 + i*100),
			Description: "Spacious 2 bedroom with parking",
		}
	}
	return out
}

func answer(labels ...string) string {
	var b strings.Builder
	for i, l := range labels {
		fmt.Fprintf(&b, "%d. %s\n", i+1, l)
	}
	return b.String()
}

func newTestClassifier(t *testing.T, oracle Oracle, batchSize int, delay time.Duration) (*Classifier, *[]time.Duration) {
	t.Helper()
	tmpl, err := LoadTemplate("")
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	c := New(oracle, tmpl, batchSize, delay, logger)
	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func TestNew_BatchSizeBounds(t *testing.T) {
	c, _ := newTestClassifier(t, &MockOracle{}, 0, 0)
	assert.Equal(t, DefaultBatchSize, c.BatchSize())

	c, _ = newTestClassifier(t, &MockOracle{}, 500, 0)
	assert.Equal(t, DefaultBatchSize, c.BatchSize())

	c, _ = newTestClassifier(t, &MockOracle{}, 10, 0)
	assert.Equal(t, 10, c.BatchSize())
}

func TestClassifyBatch(t *testing.T) {
	oracle := &MockOracle{}
	c, _ := newTestClassifier(t, oracle, 50, 0)
	batch := testListings(3)

	oracle.On("Complete", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "Listing 1:") && strings.Contains(prompt, "Listing 3:")
	})).Return("1. 2bdr apartment\n2. Studio Apartment \n3. airbnb\n", nil).Once()

	labels, err := c.ClassifyBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"listing-0": "2bdr apartment",
		"listing-1": "studio apartment",
		"listing-2": "airbnb",
	}, labels)
	oracle.AssertExpectations(t)
}

func TestClassifyBatch_RejectsWholeBatch(t *testing.T) {
	tests := []struct {
		name     string
		response string
		kind     ValidationKind
	}{
		{"missing line", answer("bed", "bedroom"), CountMismatch},
		{"extra line", answer("bed", "bedroom", "other", "unknown"), CountMismatch},
		{"unknown label", answer("bed", "5bdr apartment", "other"), UnknownLabel},
		{"chatty preamble", "Here are the categories:\n" + answer("bed", "bedroom", "other"), UnknownLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := &MockOracle{}
			c, _ := newTestClassifier(t, oracle, 50, 0)
			oracle.On("Complete", mock.Anything, mock.Anything).Return(tt.response, nil).Once()

			labels, err := c.ClassifyBatch(context.Background(), testListings(3))
			assert.Nil(t, labels)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.kind, verr.Kind)
		})
	}
}

func TestClassifyBatch_OracleFailure(t *testing.T) {
	oracle := &MockOracle{}
	c, _ := newTestClassifier(t, oracle, 50, 0)
	oracle.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("429 too many requests")).Once()

	_, err := c.ClassifyBatch(context.Background(), testListings(2))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query classifier")
}

func TestClassifyBatch_TooLarge(t *testing.T) {
	c, _ := newTestClassifier(t, &MockOracle{}, 2, 0)
	_, err := c.ClassifyBatch(context.Background(), testListings(3))
	assert.Error(t, err)
}

func TestSweep_SkipsFailedBatchAndContinues(t *testing.T) {
	oracle := &MockOracle{}
	c, sleeps := newTestClassifier(t, oracle, 2, time.Second)
	store := &fakeStore{pending: testListings(5)}

	oracle.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Title: Listing 0")
	})).Return(answer("bed", "bedroom"), nil).Once()
	oracle.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Title: Listing 2")
	})).Return(answer("bed"), nil).Once()
	oracle.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Title: Listing 4")
	})).Return(answer("other"), nil).Once()

	summary := &models.RunSummary{}
	err := c.Sweep(context.Background(), store, summary)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 2, summary.BatchesClassified)
	assert.Equal(t, 1, summary.BatchesFailed)
	assert.Equal(t, 3, summary.Classified)
	require.Len(t, store.applied, 2)
	assert.Equal(t, map[string]string{"listing-0": "bed", "listing-1": "bedroom"}, store.applied[0])
	assert.Equal(t, map[string]string{"listing-4": "other"}, store.applied[1])

	// one delay after the first successful batch, none after the last
	assert.Equal(t, []time.Duration{time.Second}, *sleeps)
	oracle.AssertExpectations(t)
}

func TestSweep_StoreFailureCountsAsFailedBatch(t *testing.T) {
	oracle := &MockOracle{}
	c, _ := newTestClassifier(t, oracle, 50, 0)
	store := &fakeStore{pending: testListings(2), failSet: true}
	oracle.On("Complete", mock.Anything, mock.Anything).Return(answer("bed", "bed"), nil).Once()

	summary := &models.RunSummary{}
	require.NoError(t, c.Sweep(context.Background(), store, summary))
	assert.Equal(t, 1, summary.BatchesFailed)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 0, summary.Classified)
}

func TestSweep_NothingPending(t *testing.T) {
	oracle := &MockOracle{}
	c, _ := newTestClassifier(t, oracle, 50, 0)

	summary := &models.RunSummary{}
	require.NoError(t, c.Sweep(context.Background(), &fakeStore{}, summary))
	assert.Equal(t, 0, summary.Processed)
	oracle.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestChunk(t *testing.T) {
	chunks := Chunk(testListings(120), 50)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 50)
	assert.Len(t, chunks[1], 50)
	assert.Len(t, chunks[2], 20)
	assert.Empty(t, Chunk(nil, 50))
}
