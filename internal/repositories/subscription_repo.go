package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"receivables/internal/models"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, subscription *models.Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	Update(ctx context.Context, subscription *models.Subscription) error
	List(ctx context.Context, limit, offset int) ([]*models.Subscription, error)
	// ListDue returns active subscriptions whose next billing date is on or before asOf.
	ListDue(ctx context.Context, asOf time.Time) ([]*models.Subscription, error)
}

const subscriptionColumns = `id, customer, items, discount, notes, frequency, anchor, state, start_date, end_date,
		next_billing_date, send_automatically, link_ttl_days, invoice_ids, last_billed_at, created_at, updated_at`

type subscriptionRepo struct {
	db DBTX
}

func NewSubscriptionRepo(db DBTX) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	s := &models.Subscription{}
	err := row.Scan(&s.ID, &s.Customer, &s.Items, &s.Discount, &s.Notes, &s.Frequency, &s.Anchor, &s.State,
		&s.StartDate, &s.EndDate, &s.NextBillingDate, &s.SendAutomatically, &s.LinkTTLDays, &s.InvoiceIDs,
		&s.LastBilledAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func collectSubscriptions(rows pgx.Rows) ([]*models.Subscription, error) {
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *subscriptionRepo) Create(ctx context.Context, s *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.db.Exec(ctx, query, s.ID, s.Customer, s.Items, s.Discount, s.Notes, s.Frequency, s.Anchor, s.State,
		s.StartDate, s.EndDate, s.NextBillingDate, s.SendAutomatically, s.LinkTTLDays, s.InvoiceIDs,
		s.LastBilledAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	s, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "subscription", id)
	}
	return s, nil
}

func (r *subscriptionRepo) Update(ctx context.Context, s *models.Subscription) error {
	query := `
		UPDATE subscriptions
		SET state = $1, end_date = $2, next_billing_date = $3, send_automatically = $4, link_ttl_days = $5,
			invoice_ids = $6, last_billed_at = $7, updated_at = $8
		WHERE id = $9
	`
	tag, err := r.db.Exec(ctx, query, s.State, s.EndDate, s.NextBillingDate, s.SendAutomatically, s.LinkTTLDays,
		s.InvoiceIDs, s.LastBilledAt, s.UpdatedAt, s.ID)
	return requireAffected(tag, err, "subscription", s.ID)
}

func (r *subscriptionRepo) List(ctx context.Context, limit, offset int) ([]*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

func (r *subscriptionRepo) ListDue(ctx context.Context, asOf time.Time) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE state = 'active' AND next_billing_date <= $1
		ORDER BY next_billing_date ASC
	`
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}
