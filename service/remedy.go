package service

import (
	"sort"
	"strings"

	"github.com/Njoselson/tenant-legal-tools-sub000/models"
)

// Remedy score weights and probability bounds. The probability clamp keeps
// output from ever claiming certainty or impossibility.
const (
	weightEvidence     = 0.4
	weightAuthority    = 0.3
	weightJurisdiction = 0.2
	weightRetrieval    = 0.1
	probabilityFloor   = 0.10
	probabilityCeiling = 0.95
)

// RemedyRanking is the input for ranking one candidate remedy, usually
// taken from a verified proof chain
type RemedyRanking struct {
	Chain          models.ProofChain
	RetrievalScore float64 // similarity score from issue retrieval, [0,1]
}

// RankRemedies compares the user's self-reported evidence against each
// chain's required-evidence set and returns remedies ranked by a weighted
// score of evidence strength, law authority, jurisdiction match and
// retrieval score. Output is sorted descending; ties break on authority.
func RankRemedies(
	candidates []RemedyRanking,
	evidencePresent []string,
	userJurisdiction string,
) []models.RemedyOption {
	present := make(map[string]bool, len(evidencePresent))
	for _, e := range evidencePresent {
		present[normalizeConceptKey(e)] = true
	}

	options := make([]models.RemedyOption, 0, len(candidates))
	for _, candidate := range candidates {
		chain := candidate.Chain

		var have, missing []string
		for _, required := range chain.RequiredEvidence {
			if present[normalizeConceptKey(required)] {
				have = append(have, required)
			} else {
				missing = append(missing, required)
			}
		}

		strength := evidenceStrength(len(have), len(chain.RequiredEvidence))
		jurisdictionMatch := remedyJurisdictionMatch(userJurisdiction, chain.RemedyJurisdiction)

		jm := 0.0
		if jurisdictionMatch {
			jm = 1.0
		}
		score := weightEvidence*strength +
			weightAuthority*chain.LawAuthority.Weight() +
			weightJurisdiction*jm +
			weightRetrieval*clamp01(candidate.RetrievalScore)

		options = append(options, models.RemedyOption{
			RemedyID:          chain.RemedyID,
			RemedyName:        chain.RemedyName,
			LawName:           chain.LawName,
			LawAuthority:      chain.LawAuthority,
			EvidenceStrength:  strength,
			PresentEvidence:   have,
			MissingEvidence:   missing,
			JurisdictionMatch: jurisdictionMatch,
			Score:             score,
			Probability:       clampProbability(score),
		})
	}

	sort.SliceStable(options, func(i, j int) bool {
		if options[i].Score != options[j].Score {
			return options[i].Score > options[j].Score
		}
		return options[i].LawAuthority.Rank() > options[j].LawAuthority.Rank()
	})

	return options
}

// evidenceStrength is the fraction of required evidence the user already
// holds, capped at 1.0
func evidenceStrength(presentCount, requiredCount int) float64 {
	denominator := requiredCount
	if denominator < 1 {
		denominator = 1
	}
	strength := float64(presentCount) / float64(denominator)
	if strength > 1.0 {
		return 1.0
	}
	return strength
}

// remedyJurisdictionMatch is a substring match in either direction between
// the user's and the remedy's jurisdiction
func remedyJurisdictionMatch(user, remedy string) bool {
	u := strings.ToLower(strings.TrimSpace(user))
	r := strings.ToLower(strings.TrimSpace(remedy))
	if u == "" || r == "" {
		return false
	}
	return strings.Contains(u, r) || strings.Contains(r, u)
}

// clampProbability bounds a score to [0.10, 0.95] so rankings never claim
// certainty or impossibility
func clampProbability(score float64) float64 {
	if score < probabilityFloor {
		return probabilityFloor
	}
	if score > probabilityCeiling {
		return probabilityCeiling
	}
	return score
}
