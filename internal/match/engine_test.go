package match

import (
	"reflect"
	"strings"
	"testing"

	"github.com/david/donorflow/internal/models"
)

func visionHealthcareNYC() models.Vision {
	return models.Vision{
		Pillars:  []string{"Healthcare"},
		GeoFocus: []string{"NYC"},
		Budget:   100000,
	}
}

func TestEvaluate_StrongOverlapNoInfoNeeded(t *testing.T) {
	cand := models.OpportunityCandidate{
		Key:      "curated:clinic-net",
		Category: "Healthcare",
		Location: "New York, NY",
		Amount:   50000,
	}

	res := Evaluate(cand, visionHealthcareNYC())
	if !res.Matched {
		t.Fatalf("expected matched, got %+v", res)
	}
	if res.InfoTier != models.TierNone {
		t.Fatalf("expected tier none, got %s", res.InfoTier)
	}
	if !strings.Contains(res.Reason, "Healthcare") || !strings.Contains(res.Reason, "NYC") {
		t.Fatalf("reason must name the driving signals: %q", res.Reason)
	}
}

func TestEvaluate_NoOverlapAutoPass(t *testing.T) {
	cand := models.OpportunityCandidate{
		Key:      "submitted:abc",
		Category: "Environment",
		Location: "Nairobi",
		Amount:   20000,
	}

	res := Evaluate(cand, visionHealthcareNYC())
	if res.Matched {
		t.Fatalf("expected unmatched, got %+v", res)
	}
	if res.Reason == "" {
		t.Fatal("auto-pass must carry an explanation")
	}
}

func TestEvaluate_MissingAmountRequestsLightInfo(t *testing.T) {
	cand := models.OpportunityCandidate{
		Key:      "request:xyz",
		Category: "Healthcare",
		Location: "Brooklyn, NYC",
		Summary:  "Community clinic expansion",
		Amount:   0,
	}

	res := Evaluate(cand, visionHealthcareNYC())
	if !res.Matched || res.InfoTier != models.TierLight {
		t.Fatalf("expected matched/light, got %+v", res)
	}
	if !strings.Contains(res.Reason, "amount") {
		t.Fatalf("reason must mention the missing amount: %q", res.Reason)
	}
}

func TestEvaluate_PartialOverlapWithSparseRecordGoesDeep(t *testing.T) {
	cand := models.OpportunityCandidate{
		Key:      "submitted:sparse",
		Category: "Healthcare",
		Location: "",
		Summary:  "",
		Amount:   0,
	}

	res := Evaluate(cand, visionHealthcareNYC())
	if !res.Matched || res.InfoTier != models.TierDeep {
		t.Fatalf("expected matched/deep, got %+v", res)
	}
}

func TestEvaluate_AmountFarAboveBudget(t *testing.T) {
	cand := models.OpportunityCandidate{
		Key:      "curated:big",
		Category: "Healthcare",
		Location: "NYC",
		Summary:  "Hospital wing",
		Amount:   500001, // just over 5x the 100k budget
	}

	res := Evaluate(cand, visionHealthcareNYC())
	if !res.Matched || res.InfoTier != models.TierLight {
		t.Fatalf("expected matched/light for oversized ask, got %+v", res)
	}
	if !strings.Contains(res.Reason, "budget") {
		t.Fatalf("reason must mention the budget mismatch: %q", res.Reason)
	}
}

func TestReview_Deterministic(t *testing.T) {
	vision := models.Vision{
		Pillars:  []string{"Education", "Healthcare"},
		GeoFocus: []string{"Kenya", "NYC"},
		Budget:   250000,
	}
	candidates := []models.OpportunityCandidate{
		{Key: "curated:a", Category: "Education", Location: "Nairobi, Kenya", Summary: "x", Amount: 10000},
		{Key: "curated:b", Category: "Arts", Location: "Lima"},
		{Key: "request:c", Category: "Healthcare", Location: "", Summary: "", Amount: 0},
		{Key: "submitted:d", Category: "Health", Location: "NYC", Summary: "y", Amount: 90000},
	}

	first := Review(candidates, vision)
	second := Review(candidates, vision)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("review is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if len(first) != len(candidates) {
		t.Fatalf("expected %d results, got %d", len(candidates), len(first))
	}
	if first["curated:b"].Matched {
		t.Fatal("arts/Lima must not match an education/healthcare vision")
	}
}
