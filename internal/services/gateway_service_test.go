package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receivables/internal/models"
)

func onlinePayment(method models.PaymentMethod, last4 string) *models.OnlinePayment {
	return &models.OnlinePayment{
		ID:     uuid.New(),
		Amount: dec("100"),
		Method: method,
		Payer:  models.PayerDetails{Name: "Ana", CardLast4: last4},
	}
}

func TestSimulatedGateway_Charge(t *testing.T) {
	clock := clockwork.NewFakeClockAt(fixtureNow)

	tests := []struct {
		name     string
		roll     float64
		payment  *models.OnlinePayment
		approved bool
		reason   string
	}{
		{"approved", 0.1, onlinePayment(models.PaymentMethodCard, "4242"), true, ""},
		{"declined card", 0.1, onlinePayment(models.PaymentMethodCard, DeclinedCardLast4), false, "card declined by issuer"},
		{"unlucky roll", 0.95, onlinePayment(models.PaymentMethodBankTransfer, ""), false, "insufficient funds"},
		{"decline card only applies to cards", 0.1, onlinePayment(models.PaymentMethodDigitalWallet, DeclinedCardLast4), true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := NewSimulatedGateway(0.9, 0, clock).WithRoll(func() float64 { return tt.roll })

			result, err := gateway.Charge(context.Background(), tt.payment)

			require.NoError(t, err)
			assert.Equal(t, tt.approved, result.Approved)
			assert.Equal(t, tt.reason, result.DeclineReason)
			if tt.approved {
				assert.True(t, strings.HasPrefix(result.Reference, "pay_"))
				assert.True(t, strings.HasSuffix(result.Reference, "_1741597200"))
			}
		})
	}
}

func TestSimulatedGateway_WaitsForLatency(t *testing.T) {
	clock := clockwork.NewFakeClockAt(fixtureNow)
	gateway := NewSimulatedGateway(1, 2*time.Second, clock)

	done := make(chan GatewayResult, 1)
	go func() {
		result, _ := gateway.Charge(context.Background(), onlinePayment(models.PaymentMethodCard, "4242"))
		done <- result
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(2 * time.Second)

	select {
	case result := <-done:
		assert.True(t, result.Approved)
	case <-time.After(time.Second):
		t.Fatal("charge did not complete after latency elapsed")
	}
}

func TestSimulatedGateway_ContextCancelled(t *testing.T) {
	clock := clockwork.NewFakeClockAt(fixtureNow)
	gateway := NewSimulatedGateway(1, time.Minute, clock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gateway.Charge(ctx, onlinePayment(models.PaymentMethodCard, "4242"))

	assert.ErrorIs(t, err, context.Canceled)
}
