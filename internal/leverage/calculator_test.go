package leverage

import (
	"errors"
	"testing"

	"github.com/david/donorflow/internal/models"
)

func TestCalculate_MatchMode(t *testing.T) {
	offer, err := Calculate(Terms{AnchorAmount: 100000, MatchMode: models.ModeMatch, FundingGap: 300000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offer.ChallengeGoal != 100000 {
		t.Fatalf("expected challenge goal 100000, got %.0f", offer.ChallengeGoal)
	}
	if offer.TopUpCap != offer.AnchorAmount {
		t.Fatalf("match mode: top-up cap must equal anchor, got %.0f", offer.TopUpCap)
	}
	if offer.TotalDeployed != 200000 {
		t.Fatalf("expected total deployed 2x anchor, got %.0f", offer.TotalDeployed)
	}
}

func TestCalculate_RemainderMode(t *testing.T) {
	tests := []struct {
		name         string
		anchor       float64
		gap          float64
		wantGoal     float64
		wantDeployed float64
	}{
		{"anchor below gap", 100000, 300000, 200000, 300000},
		{"anchor covers gap", 300000, 200000, 0, 300000},
		{"anchor equals gap", 150000, 150000, 0, 150000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offer, err := Calculate(Terms{AnchorAmount: tt.anchor, MatchMode: models.ModeRemainder, FundingGap: tt.gap})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if offer.ChallengeGoal != tt.wantGoal {
				t.Fatalf("expected goal %.0f, got %.0f", tt.wantGoal, offer.ChallengeGoal)
			}
			if offer.TopUpCap != offer.ChallengeGoal {
				t.Fatalf("remainder mode: cap must equal goal, got %.0f", offer.TopUpCap)
			}
			if offer.TotalDeployed != tt.wantDeployed {
				t.Fatalf("expected deployed %.0f, got %.0f", tt.wantDeployed, offer.TotalDeployed)
			}
		})
	}
}

func TestCalculate_Validation(t *testing.T) {
	if _, err := Calculate(Terms{AnchorAmount: 0, MatchMode: models.ModeMatch}); !errors.Is(err, ErrNonPositiveAnchor) {
		t.Fatalf("expected ErrNonPositiveAnchor, got %v", err)
	}
	if _, err := Calculate(Terms{AnchorAmount: -500, MatchMode: models.ModeMatch}); !errors.Is(err, ErrNonPositiveAnchor) {
		t.Fatalf("expected ErrNonPositiveAnchor for negative anchor, got %v", err)
	}
	if _, err := Calculate(Terms{AnchorAmount: 1000, MatchMode: models.ModeRemainder, FundingGap: 0}); !errors.Is(err, ErrUnknownGap) {
		t.Fatalf("expected ErrUnknownGap, got %v", err)
	}
	if _, err := Calculate(Terms{AnchorAmount: 1000, MatchMode: "split"}); err == nil {
		t.Fatal("expected error for unknown match mode")
	}
}
