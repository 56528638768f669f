package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"receivables/internal/models"
)

type AuditLogsRepository interface {
	// Create a new audit log entry
	Create(ctx context.Context, auditLog *models.AuditLog) error

	// List audit logs with filtering options, newest first
	List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error)
}

type auditLogsRepo struct {
	db DBTX
}

func NewAuditLogsRepo(db DBTX) AuditLogsRepository {
	return &auditLogsRepo{db: db}
}

func (r *auditLogsRepo) Create(ctx context.Context, auditLog *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, entity_type, entity_id, action, source, "values", created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var values []byte
	if auditLog.Values != nil {
		var err error
		values, err = json.Marshal(auditLog.Values)
		if err != nil {
			return fmt.Errorf("failed to marshal audit values: %w", err)
		}
	}

	_, err := r.db.Exec(ctx, query,
		auditLog.ID,
		auditLog.EntityType,
		auditLog.EntityID,
		auditLog.Action,
		auditLog.Source,
		values,
		auditLog.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

func (r *auditLogsRepo) List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("entity_type", filters.EntityType)
	add("entity_id", filters.EntityID)
	add("action", filters.Action)

	query := `SELECT id, entity_type, entity_id, action, source, "values", created_at FROM audit_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filters.Limit, filters.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		auditLog := &models.AuditLog{}
		var values []byte
		if err := rows.Scan(
			&auditLog.ID,
			&auditLog.EntityType,
			&auditLog.EntityID,
			&auditLog.Action,
			&auditLog.Source,
			&values,
			&auditLog.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(values) > 0 {
			if err := json.Unmarshal(values, &auditLog.Values); err != nil {
				return nil, fmt.Errorf("failed to decode audit values: %w", err)
			}
		}
		logs = append(logs, auditLog)
	}
	return logs, rows.Err()
}
