package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"receivables/internal/models"
)

// PaymentGateway charges an online payment with an external processor.
type PaymentGateway interface {
	Charge(ctx context.Context, payment *models.OnlinePayment) (GatewayResult, error)
}

// GatewayResult is the processor's verdict. A decline is a result, not an
// error; errors mean the gateway could not be reached.
type GatewayResult struct {
	Approved      bool   `json:"approved"`
	Reference     string `json:"reference,omitempty"`
	DeclineReason string `json:"decline_reason,omitempty"`
}

// DeclinedCardLast4 always declines on the simulated gateway.
const DeclinedCardLast4 = "0002"

// SimulatedGateway approves a configurable share of charges.
type SimulatedGateway struct {
	approvalRate float64
	latency      time.Duration
	clock        clockwork.Clock
	roll         func() float64
}

func NewSimulatedGateway(approvalRate float64, latency time.Duration, clock clockwork.Clock) *SimulatedGateway {
	return &SimulatedGateway{
		approvalRate: approvalRate,
		latency:      latency,
		clock:        clock,
		roll:         rand.Float64,
	}
}

// WithRoll replaces the random source, for deterministic runs.
func (g *SimulatedGateway) WithRoll(roll func() float64) *SimulatedGateway {
	g.roll = roll
	return g
}

func (g *SimulatedGateway) Charge(ctx context.Context, payment *models.OnlinePayment) (GatewayResult, error) {
	if g.latency > 0 {
		select {
		case <-ctx.Done():
			return GatewayResult{}, ctx.Err()
		case <-g.clock.After(g.latency):
		}
	}

	if payment.Method == models.PaymentMethodCard && strings.HasSuffix(payment.Payer.CardLast4, DeclinedCardLast4) {
		return GatewayResult{DeclineReason: "card declined by issuer"}, nil
	}
	if g.roll() >= g.approvalRate {
		return GatewayResult{DeclineReason: "insufficient funds"}, nil
	}

	ref := fmt.Sprintf("pay_%s_%d", strings.ReplaceAll(payment.ID.String(), "-", "")[:12], g.clock.Now().Unix())
	return GatewayResult{Approved: true, Reference: ref}, nil
}
