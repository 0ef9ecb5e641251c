package cockroach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"friendclub-backend/internal/domain"
	apperrors "friendclub-backend/pkg/errors"
	"friendclub-backend/pkg/resilience"
)

const callColumns = `
	call_id, caller_name, callee_name, caller_id, callee_id, room_name,
	call_type, status, started_at, answered_at, ended_at, duration_seconds,
	created_by, updated_by, created_at, updated_at`

// CallRepository handles call_logs operations
type CallRepository struct {
	pool    *pgxpool.Pool
	breaker *resilience.Breaker
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

// WithBreaker guards writes with b
func (r *CallRepository) WithBreaker(b *resilience.Breaker) *CallRepository {
	r.breaker = b
	return r
}

func (r *CallRepository) write(ctx context.Context, operation, query string, args ...interface{}) error {
	exec := func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, query, args...)
		return err
	}
	if r.breaker == nil {
		return exec(ctx)
	}
	return r.breaker.Execute(ctx, operation, exec)
}

// Create inserts a new call record
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO call_logs (` + callColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	if err := r.write(ctx, "create", query, callArgs(call)...); err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}
	return nil
}

// Update writes the call's current state. A missing row is inserted, so an
// update that overtakes a failed create still leaves a complete record.
func (r *CallRepository) Update(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO call_logs (` + callColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (call_id) DO UPDATE SET
			status = excluded.status,
			answered_at = excluded.answered_at,
			ended_at = excluded.ended_at,
			duration_seconds = excluded.duration_seconds,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`

	if err := r.write(ctx, "update", query, callArgs(call)...); err != nil {
		return fmt.Errorf("failed to update call: %w", err)
	}
	return nil
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	query := `SELECT ` + callColumns + ` FROM call_logs WHERE call_id = $1`

	call, err := scanCall(r.pool.QueryRow(ctx, query, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.CallNotFoundError()
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return call, nil
}

// ListByUser returns one page of calls where the user is caller or callee,
// newest first, plus the total number of matching rows
func (r *CallRepository) ListByUser(ctx context.Context, filter domain.CallFilter) ([]*domain.Call, int64, error) {
	where, args := historyWhere(filter)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM call_logs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count calls: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM call_logs WHERE %s ORDER BY started_at DESC LIMIT $%d OFFSET $%d`,
		callColumns, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	calls := make([]*domain.Call, 0, filter.Limit)
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate calls: %w", err)
	}

	return calls, total, nil
}

// Stats groups the user's calls since the given time by status and call type
func (r *CallRepository) Stats(ctx context.Context, userID string, since time.Time) ([]domain.CallStat, error) {
	query := `
		SELECT status, call_type, count(*), COALESCE(sum(duration_seconds), 0)
		FROM call_logs
		WHERE (caller_id = $1 OR callee_id = $1) AND started_at >= $2
		GROUP BY status, call_type
		ORDER BY status, call_type
	`

	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get call stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.CallStat
	for rows.Next() {
		var s domain.CallStat
		if err := rows.Scan(&s.Status, &s.CallType, &s.Count, &s.TotalDuration); err != nil {
			return nil, fmt.Errorf("failed to scan call stat: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call stats: %w", err)
	}
	return stats, nil
}

// SweepStale closes records left live by a previous process: ringing rows
// become missed and accepted rows become ended. Returns the rows touched.
func (r *CallRepository) SweepStale(ctx context.Context, at time.Time) (int64, error) {
	query := `
		UPDATE call_logs
		SET status = CASE status WHEN 'ringing' THEN 'missed' ELSE 'ended' END,
		    ended_at = $1,
		    duration_seconds = CASE
		        WHEN status = 'accepted' AND answered_at IS NOT NULL
		        THEN GREATEST(0, EXTRACT(EPOCH FROM ($1 - answered_at))::INT)
		        ELSE 0 END,
		    updated_by = 'system',
		    updated_at = $1
		WHERE status IN ('ringing', 'accepted')
	`

	tag, err := r.pool.Exec(ctx, query, at)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale calls: %w", err)
	}
	return tag.RowsAffected(), nil
}

// historyWhere builds the WHERE clause and positional args for a history query
func historyWhere(filter domain.CallFilter) (string, []interface{}) {
	clauses := []string{"(caller_id = $1 OR callee_id = $1)"}
	args := []interface{}{filter.UserID}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CallType != "" {
		args = append(args, string(filter.CallType))
		clauses = append(clauses, fmt.Sprintf("call_type = $%d", len(args)))
	}

	return strings.Join(clauses, " AND "), args
}

func callArgs(call *domain.Call) []interface{} {
	return []interface{}{
		call.CallID,
		call.CallerName,
		call.CalleeName,
		nullString(call.CallerID),
		nullString(call.CalleeID),
		call.RoomName,
		string(call.CallType),
		string(call.Status),
		call.StartedAt,
		call.AnsweredAt,
		call.EndedAt,
		call.DurationSeconds,
		call.CreatedBy,
		call.UpdatedBy,
		call.CreatedAt,
		call.UpdatedAt,
	}
}

func scanCall(row pgx.Row) (*domain.Call, error) {
	call := &domain.Call{}
	var callerID, calleeID *string
	err := row.Scan(
		&call.CallID,
		&call.CallerName,
		&call.CalleeName,
		&callerID,
		&calleeID,
		&call.RoomName,
		&call.CallType,
		&call.Status,
		&call.StartedAt,
		&call.AnsweredAt,
		&call.EndedAt,
		&call.DurationSeconds,
		&call.CreatedBy,
		&call.UpdatedBy,
		&call.CreatedAt,
		&call.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if callerID != nil {
		call.CallerID = *callerID
	}
	if calleeID != nil {
		call.CalleeID = *calleeID
	}
	return call, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
