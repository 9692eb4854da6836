package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

// MutationJournalRepository stores settled store mutations for audit.
type MutationJournalRepository interface {
	Record(ctx context.Context, record *domain.MutationRecord) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.MutationRecord, error)
}

// Querier is the subset of *pgxpool.Pool the journal needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type mutationJournalRepository struct {
	db Querier
}

// NewMutationJournalRepository builds repository.
func NewMutationJournalRepository(db Querier) MutationJournalRepository {
	return &mutationJournalRepository{db: db}
}

func (r *mutationJournalRepository) Record(ctx context.Context, record *domain.MutationRecord) error {
	const query = `
        INSERT INTO mutation_journal (id, session_id, kind, ticket_id, state, error_code, cause, details, started_at, settled_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (id) DO NOTHING`
	details := record.Details
	if details == nil {
		details = map[string]any{}
	}
	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.SessionID,
		string(record.Kind),
		record.TicketID,
		string(record.State),
		record.ErrorCode,
		record.Cause,
		details,
		record.StartedAt,
		record.SettledAt,
	)
	return err
}

func (r *mutationJournalRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.MutationRecord, error) {
	const query = `
        SELECT id, session_id, kind, ticket_id, state, error_code, cause, details, started_at, settled_at
        FROM mutation_journal WHERE session_id=$1 ORDER BY settled_at DESC LIMIT $2`
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.MutationRecord
	for rows.Next() {
		var (
			record domain.MutationRecord
			kind   string
			state  string
		)
		if err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&kind,
			&record.TicketID,
			&state,
			&record.ErrorCode,
			&record.Cause,
			&record.Details,
			&record.StartedAt,
			&record.SettledAt,
		); err != nil {
			return nil, err
		}
		record.Kind = domain.MutationKind(kind)
		record.State = domain.MutationState(state)
		result = append(result, record)
	}
	return result, rows.Err()
}
