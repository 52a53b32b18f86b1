package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bluelight-hub/authguard/internal/database"
	"github.com/bluelight-hub/authguard/internal/models"
)

const ruleColumns = `id, name, description, condition_type, severity, status, config, tags, version, created_at, updated_at`

// RuleRepository handles CRUD over stored threat-rule configurations.
type RuleRepository struct {
	db *database.DB
}

func NewRuleRepository(db *database.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) Create(ctx context.Context, rule *models.ThreatRule) error {
	query := `
		INSERT INTO threat_rules
			(id, name, description, condition_type, severity, status, config, tags, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`

	_, err := r.db.Pool.Exec(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.ConditionType,
		rule.Severity,
		rule.Status,
		rule.Config,
		rule.Tags,
		rule.Version,
	)
	return database.MapPostgresError(err)
}

func (r *RuleRepository) Update(ctx context.Context, rule *models.ThreatRule) error {
	query := `
		UPDATE threat_rules
		SET name = $2, description = $3, severity = $4, status = $5,
		    config = $6, tags = $7, version = version + 1, updated_at = now()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.Severity,
		rule.Status,
		rule.Config,
		rule.Tags,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM threat_rules WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.ThreatRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM threat_rules WHERE id = $1`

	rule, err := scanRule(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return rule, nil
}

// ListEnabled returns the rule configurations that participate in
// evaluation, used to build the in-memory catalog.
func (r *RuleRepository) ListEnabled(ctx context.Context) ([]*models.ThreatRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM threat_rules WHERE status = $1 ORDER BY name`

	rows, err := r.db.Pool.Query(ctx, query, models.RuleStatusEnabled)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var out []*models.ThreatRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// List returns rule configurations matching the filter.
func (r *RuleRepository) List(ctx context.Context, filter models.RuleFilter) ([]*models.ThreatRule, error) {
	var conditions []string
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.ConditionType != "" {
		add("condition_type = $%d", filter.ConditionType)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Severity != "" {
		add("severity = $%d", filter.Severity)
	}
	if filter.Tag != "" {
		add("$%d = ANY(tags)", filter.Tag)
	}

	query := `SELECT ` + ruleColumns + ` FROM threat_rules`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var out []*models.ThreatRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// CountByStatus returns how many rules exist per status.
func (r *RuleRepository) CountByStatus(ctx context.Context) (map[models.RuleStatus]int, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT status, COUNT(*) FROM threat_rules GROUP BY status`)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	out := make(map[models.RuleStatus]int)
	for rows.Next() {
		var status models.RuleStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = count
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.ThreatRule, error) {
	var rule models.ThreatRule
	var createdAt, updatedAt time.Time
	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.ConditionType,
		&rule.Severity,
		&rule.Status,
		&rule.Config,
		&rule.Tags,
		&rule.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.CreatedAt = createdAt
	rule.UpdatedAt = updatedAt
	return &rule, nil
}
