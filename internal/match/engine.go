// Package match implements the concierge triage pass: a pure, deterministic
// comparison of candidate opportunities against a donor's vision. It never
// touches storage, the clock, or randomness; identical input always yields
// identical output.
package match

import (
	"fmt"
	"strings"

	"github.com/david/donorflow/internal/models"
)

// budgetStretchFactor bounds "amount proximity": a candidate asking for more
// than this multiple of the donor's stated budget still matches but needs a
// conversation about tranche size first.
const budgetStretchFactor = 5.0

// Review triages every candidate against the vision and returns a decision
// per opportunity key. The caller (orchestrator) decides what to persist;
// Review itself mutates nothing.
func Review(candidates []models.OpportunityCandidate, vision models.Vision) map[string]models.MatchResult {
	results := make(map[string]models.MatchResult, len(candidates))
	for _, cand := range candidates {
		results[cand.Key] = Evaluate(cand, vision)
	}
	return results
}

// Evaluate scores one candidate. Every decision carries a reason naming the
// specific signal that drove it, so an auto-pass or info-request can be
// justified to a human reading the event log later.
func Evaluate(cand models.OpportunityCandidate, vision models.Vision) models.MatchResult {
	pillar, pillarHit := firstOverlap(vision.Pillars, cand.Category)
	geo, geoHit := firstOverlap(vision.GeoFocus, cand.Location)

	if !pillarHit && !geoHit {
		return models.MatchResult{
			Matched:  false,
			InfoTier: models.TierNone,
			Reason: fmt.Sprintf("category %q and location %q overlap none of the vision's pillars or geographic foci",
				cand.Category, cand.Location),
		}
	}

	signals := make([]string, 0, 2)
	if pillarHit {
		signals = append(signals, fmt.Sprintf("category %q matches pillar %q", cand.Category, pillar))
	}
	if geoHit {
		signals = append(signals, fmt.Sprintf("location %q matches geographic focus %q", cand.Location, geo))
	}
	matchedOn := strings.Join(signals, "; ")

	// Strong overlap: both pillar and geo agree. Only amount quality can
	// still demote the decision to an info request.
	if pillarHit && geoHit {
		if cand.Amount <= 0 {
			return models.MatchResult{
				Matched:  true,
				InfoTier: models.TierLight,
				Reason:   matchedOn + "; funding amount is unspecified",
			}
		}
		if vision.Budget > 0 && cand.Amount > vision.Budget*budgetStretchFactor {
			return models.MatchResult{
				Matched:  true,
				InfoTier: models.TierLight,
				Reason: fmt.Sprintf("%s; amount %.0f is far above the stated budget %.0f",
					matchedOn, cand.Amount, vision.Budget),
			}
		}
		return models.MatchResult{
			Matched:  true,
			InfoTier: models.TierNone,
			Reason:   matchedOn,
		}
	}

	// Partial overlap: one signal hit, the other field is absent or off.
	// Grade by how much of the record is missing.
	missing := missingFields(cand)
	tier := models.TierLight
	if len(missing) >= 2 {
		tier = models.TierDeep
	}
	reason := matchedOn
	if len(missing) > 0 {
		reason += "; missing " + strings.Join(missing, ", ")
	} else if !geoHit {
		reason += fmt.Sprintf("; location %q is outside the geographic foci", cand.Location)
	} else {
		reason += fmt.Sprintf("; category %q is outside the vision pillars", cand.Category)
	}

	return models.MatchResult{Matched: true, InfoTier: tier, Reason: reason}
}

func missingFields(cand models.OpportunityCandidate) []string {
	var missing []string
	if cand.Amount <= 0 {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(cand.Location) == "" {
		missing = append(missing, "location")
	}
	if strings.TrimSpace(cand.Summary) == "" {
		missing = append(missing, "narrative")
	}
	return missing
}

// firstOverlap returns the first term that overlaps the value by
// case-insensitive substring in either direction. Iteration order follows
// the vision's own ordering, keeping reasons stable across runs.
func firstOverlap(terms []string, value string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return "", false
	}
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if strings.Contains(v, t) || strings.Contains(t, v) {
			return term, true
		}
		// Token-level overlap catches "NYC" against "New York, NY" style
		// abbreviations without a gazetteer.
		for _, tok := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' || r == '/' }) {
			if tok != "" && (strings.Contains(t, tok) || strings.Contains(tok, t)) {
				return term, true
			}
		}
	}
	return "", false
}
