// Package leverage turns a donor's conditional-giving instructions into
// concrete commitment terms. Calculate is pure; persistence and side
// effects belong to the orchestrator.
package leverage

import (
	"errors"
	"fmt"

	"github.com/david/donorflow/internal/models"
)

var (
	ErrNonPositiveAnchor = errors.New("anchor amount must be positive")
	ErrUnknownGap        = errors.New("funding gap is required for remainder mode")
)

// Terms is the donor's input to the calculator.
type Terms struct {
	AnchorAmount float64
	MatchMode    models.MatchMode
	FundingGap   float64 // 0 = unknown
}

// Offer is the computed commitment.
type Offer struct {
	AnchorAmount  float64
	MatchMode     models.MatchMode
	ChallengeGoal float64
	TopUpCap      float64
	TotalDeployed float64
}

// Calculate derives the challenge goal and top-up cap from the donor's terms.
//
// match:     the donor pledges to match community giving 1:1 up to the anchor.
// remainder: the donor covers whatever is left of the gap once the community
//            raises the rest.
func Calculate(t Terms) (Offer, error) {
	if t.AnchorAmount <= 0 {
		return Offer{}, ErrNonPositiveAnchor
	}

	switch t.MatchMode {
	case models.ModeMatch:
		return Offer{
			AnchorAmount:  t.AnchorAmount,
			MatchMode:     t.MatchMode,
			ChallengeGoal: t.AnchorAmount,
			TopUpCap:      t.AnchorAmount,
			TotalDeployed: 2 * t.AnchorAmount,
		}, nil

	case models.ModeRemainder:
		if t.FundingGap <= 0 {
			return Offer{}, ErrUnknownGap
		}
		goal := t.FundingGap - t.AnchorAmount
		if goal < 0 {
			goal = 0
		}
		return Offer{
			AnchorAmount:  t.AnchorAmount,
			MatchMode:     t.MatchMode,
			ChallengeGoal: goal,
			TopUpCap:      goal,
			TotalDeployed: t.AnchorAmount + goal,
		}, nil
	}

	return Offer{}, fmt.Errorf("unknown match mode: %q", t.MatchMode)
}
