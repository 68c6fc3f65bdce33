package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Njoselson/tenant-legal-tools-sub000/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	matches map[string][]SimilarityMatch // keyed by normalized name
	err     error
	calls   int
}

func (f *fakeSearcher) TopMatches(_ context.Context, name string, _ models.NodeKind, _ int) ([]SimilarityMatch, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.matches[normalizeConceptKey(name)], nil
}

type fakeJudge struct {
	verdicts []Verdict
	err      error
	batches  [][]JudgmentPair
}

func (f *fakeJudge) JudgeBatch(_ context.Context, pairs []JudgmentPair) ([]Verdict, error) {
	f.batches = append(f.batches, pairs)
	if f.err != nil {
		return nil, f.err
	}
	out := f.verdicts
	if len(out) > len(pairs) {
		out = out[:len(pairs)]
	}
	return out, nil
}

// slowJudge blocks until its delay elapses or the call's context expires
type slowJudge struct {
	delay   time.Duration
	verdict Verdict
}

func (s *slowJudge) JudgeBatch(ctx context.Context, pairs []JudgmentPair) ([]Verdict, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	out := make([]Verdict, len(pairs))
	for i := range out {
		out[i] = s.verdict
	}
	return out, nil
}

func extracted(id, name string, kind models.NodeKind) models.ExtractedConcept {
	return models.ExtractedConcept{ProvisionalID: id, Name: name, Kind: kind, SourceID: "doc-1"}
}

func TestResolverService_Resolve(t *testing.T) {
	existingID := uuid.New()

	t.Run("high score auto-merges", func(t *testing.T) {
		searcher := &fakeSearcher{matches: map[string][]SimilarityMatch{
			"rent stabilization law": {{NodeID: existingID, Name: "Rent Stabilization Law", Score: 0.97}},
		}}
		s := NewResolverService(ResolverWithSearcher(searcher), ResolverWithThresholds(0.95, 0.70))

		resolved, report := s.Resolve(context.Background(), []models.ExtractedConcept{
			extracted("c1", "Rent Stabilization Law", models.KindLaw),
		})

		require.Contains(t, resolved, "c1")
		assert.Equal(t, existingID, resolved["c1"].NodeID)
		assert.True(t, resolved["c1"].Existing)
		assert.Equal(t, OutcomeAutoMerged, resolved["c1"].Outcome)
		assert.Equal(t, 1, report.AutoMerged)
		assert.Equal(t, 0, report.CreatedNew)
	})

	t.Run("ambiguous score goes to judgment", func(t *testing.T) {
		searcher := &fakeSearcher{matches: map[string][]SimilarityMatch{
			"rsl": {{NodeID: existingID, Name: "Rent Stabilization Law", Description: "rent rules", Score: 0.82}},
		}}
		judge := &fakeJudge{verdicts: []Verdict{VerdictMatched}}
		s := NewResolverService(ResolverWithSearcher(searcher), ResolverWithJudge(judge),
			ResolverWithThresholds(0.95, 0.70))

		resolved, report := s.Resolve(context.Background(), []models.ExtractedConcept{
			extracted("c1", "RSL", models.KindLaw),
		})

		assert.Equal(t, existingID, resolved["c1"].NodeID)
		assert.Equal(t, OutcomeJudgmentConfirmed, resolved["c1"].Outcome)
		assert.Equal(t, 1, report.JudgmentConfirmed)
		require.Len(t, judge.batches, 1)
		assert.Equal(t, "RSL", judge.batches[0][0].CandidateName)
	})

	t.Run("judgment no creates new node", func(t *testing.T) {
		searcher := &fakeSearcher{matches: map[string][]SimilarityMatch{
			"security deposit": {{NodeID: existingID, Name: "Security Deposit Return", Score: 0.80}},
		}}
		judge := &fakeJudge{verdicts: []Verdict{VerdictNotMatched}}
		s := NewResolverService(ResolverWithSearcher(searcher), ResolverWithJudge(judge),
			ResolverWithThresholds(0.95, 0.70))

		resolved, report := s.Resolve(context.Background(), []models.ExtractedConcept{
			extracted("c1", "Security Deposit", models.KindProcedure),
		})

		assert.False(t, resolved["c1"].Existing)
		assert.NotEqual(t, existingID, resolved["c1"].NodeID)
		assert.Equal(t, OutcomeCreatedNew, resolved["c1"].Outcome)
		assert.Equal(t, 1, report.CreatedNew)
	})

	t.Run("below threshold never merges", func(t *testing.T) {
		searcher := &fakeSearcher{matches: map[string][]SimilarityMatch{
			"habitability": {{NodeID: existingID, Name: "Warranty of Habitability", Score: 0.40}},
		}}
		judge := &fakeJudge{}
		s := NewResolverService(ResolverWithSearcher(searcher), ResolverWithJudge(judge),
			ResolverWithThresholds(0.95, 0.70))

		resolved, _ := s.Resolve(context.Background(), []models.ExtractedConcept{
			extracted("c1", "Habitability", models.KindIssue),
		})

		assert.Equal(t, OutcomeCreatedNew, resolved["c1"].Outcome)
		assert.Empty(t, judge.batches, "low scores must not reach the judgment service")
	})

	t.Run("lookup failure degrades to new node", func(t *testing.T) {
		searcher := &fakeSearcher{err: errors.New("connection refused")}
		s := NewResolverService(ResolverWithSearcher(searcher), ResolverWithThresholds(0.95, 0.70))

		resolved, report := s.Resolve(context.Background(), []models.ExtractedConcept{
			extracted("c1", "Rent Stabilization Law", models.KindLaw),
		})

		assert.Equal(t, OutcomeFailedLookup, resolved["c1"].Outcome)
		assert.False(t, resolved["c1"].Existing)
		assert.Equal(t, 1, report.FailedLookups)
		assert.Equal(t, 1, report.CreatedNew)
	})

	t.Run("judgment failure degrades to new node", func(t *testing.T) {
		searcher := &fakeSearcher{matches: map[string][]SimilarityMatch{
			"rsl": {{NodeID: existingID, Name: "Rent Stabilization Law", Score: 0.85}},
		}}
		judge := &fakeJudge{err: ErrJudgmentUnavailable}
		s := NewResolverService(ResolverWithSearcher(searcher), ResolverWithJudge(judge),
			ResolverWithThresholds(0.95, 0.70))

		resolved, report := s.Resolve(context.Background(), []models.ExtractedConcept{
			extracted("c1", "RSL", models.KindLaw),
		})

		assert.Equal(t, OutcomeFailedJudgment, resolved["c1"].Outcome)
		assert.False(t, resolved["c1"].Existing)
		assert.Equal(t, 1, report.FailedJudgments)
		assert.Equal(t, 1, report.CreatedNew)
	})

	t.Run("slow judgment degrades instead of stalling the batch", func(t *testing.T) {
		t.Setenv("RESOLVER_JUDGMENT_TIMEOUT_MS", "50")
		searcher := &fakeSearcher{matches: map[string][]SimilarityMatch{
			"rsl": {{NodeID: existingID, Name: "Rent Stabilization Law", Score: 0.85}},
		}}
		s := NewResolverService(ResolverWithSearcher(searcher),
			ResolverWithJudge(&slowJudge{delay: 3 * time.Second, verdict: VerdictMatched}),
			ResolverWithThresholds(0.95, 0.70))

		start := time.Now()
		resolved, report := s.Resolve(context.Background(), []models.ExtractedConcept{
			extracted("c1", "RSL", models.KindLaw),
		})

		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, OutcomeFailedJudgment, resolved["c1"].Outcome)
		assert.False(t, resolved["c1"].Existing)
		assert.Equal(t, 1, report.FailedJudgments)
	})

	t.Run("lower-ranked ambiguous candidates reach judgment", func(t *testing.T) {
		second := uuid.New()
		searcher := &fakeSearcher{matches: map[string][]SimilarityMatch{
			"rent overcharge claim": {
				{NodeID: uuid.New(), Name: "Rent Overcharge Complaint", Score: 0.88},
				{NodeID: second, Name: "Rent Overcharge Claim (DHCR)", Score: 0.76},
				{NodeID: uuid.New(), Name: "Rent demand letter", Score: 0.40},
			},
		}}
		judge := &fakeJudge{verdicts: []Verdict{VerdictNotMatched, VerdictMatched}}
		s := NewResolverService(ResolverWithSearcher(searcher), ResolverWithJudge(judge),
			ResolverWithThresholds(0.95, 0.70))

		resolved, report := s.Resolve(context.Background(), []models.ExtractedConcept{
			extracted("c1", "Rent Overcharge Claim", models.KindIssue),
		})

		// Only the two candidates in the ambiguous band are judged; the
		// first confirmed one in rank order wins
		require.Len(t, judge.batches, 1)
		require.Len(t, judge.batches[0], 2)
		assert.Equal(t, second, resolved["c1"].NodeID)
		assert.True(t, resolved["c1"].Existing)
		assert.Equal(t, OutcomeJudgmentConfirmed, resolved["c1"].Outcome)
		assert.InDelta(t, 0.76, resolved["c1"].Score, 1e-9)
		assert.Equal(t, 1, report.JudgmentConfirmed)
	})

	t.Run("in-batch repeats share one decision and one lookup", func(t *testing.T) {
		searcher := &fakeSearcher{matches: map[string][]SimilarityMatch{}}
		s := NewResolverService(ResolverWithSearcher(searcher), ResolverWithThresholds(0.95, 0.70))

		resolved, report := s.Resolve(context.Background(), []models.ExtractedConcept{
			extracted("c1", "Rent  Stabilization Law", models.KindLaw),
			extracted("c2", "rent stabilization law", models.KindLaw),
		})

		assert.Equal(t, 1, searcher.calls)
		assert.Equal(t, resolved["c1"].NodeID, resolved["c2"].NodeID)
		assert.Equal(t, 2, report.CreatedNew)
	})

	t.Run("same name different kind resolves separately", func(t *testing.T) {
		searcher := &fakeSearcher{matches: map[string][]SimilarityMatch{}}
		s := NewResolverService(ResolverWithSearcher(searcher), ResolverWithThresholds(0.95, 0.70))

		resolved, _ := s.Resolve(context.Background(), []models.ExtractedConcept{
			extracted("c1", "Rent Overcharge", models.KindIssue),
			extracted("c2", "Rent Overcharge", models.KindRemedy),
		})

		assert.Equal(t, 2, searcher.calls)
		assert.NotEqual(t, resolved["c1"].NodeID, resolved["c2"].NodeID)
	})

	t.Run("empty batch short-circuits", func(t *testing.T) {
		s := NewResolverService(ResolverWithThresholds(0.95, 0.70))
		resolved, report := s.Resolve(context.Background(), nil)
		assert.Empty(t, resolved)
		assert.Equal(t, 0, report.ConceptsSeen)
	})

	t.Run("ambiguous pairs batch into grouped judgment calls", func(t *testing.T) {
		matches := map[string][]SimilarityMatch{}
		concepts := make([]models.ExtractedConcept, 0, 12)
		for _, name := range []string{
			"chapter 1 notice", "chapter 2 notice", "chapter 3 notice", "chapter 4 notice",
			"chapter 5 notice", "chapter 6 notice", "chapter 7 notice", "chapter 8 notice",
			"chapter 9 notice", "chapter 10 notice", "chapter 11 notice", "chapter 12 notice",
		} {
			matches[name] = []SimilarityMatch{{NodeID: uuid.New(), Name: name + " (stored)", Score: 0.80}}
			concepts = append(concepts, extracted("p-"+name, name, models.KindProcedure))
		}
		judge := &fakeJudge{verdicts: make([]Verdict, 12)}
		s := NewResolverService(
			ResolverWithSearcher(&fakeSearcher{matches: matches}),
			ResolverWithJudge(judge),
			ResolverWithThresholds(0.95, 0.70),
		)

		_, report := s.Resolve(context.Background(), concepts)

		// Batch size defaults to 10, so 12 ambiguous pairs need two calls
		require.Len(t, judge.batches, 2)
		assert.Len(t, judge.batches[0], 10)
		assert.Len(t, judge.batches[1], 2)
		assert.Equal(t, 12, report.CreatedNew)
	})
}
