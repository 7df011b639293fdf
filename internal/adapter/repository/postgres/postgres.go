package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

const uniqueViolationErrCode = "23505"

// isUniqueViolationError reports whether err carries a unique violation from
// either of the supported drivers.
func isUniqueViolationError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == uniqueViolationErrCode
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationErrCode
	}

	return false
}

type recordDB struct {
	Code       string         `db:"code"`
	Value      string         `db:"value"`
	Owner      sql.NullString `db:"owner"`
	VisitCount int64          `db:"visit_count"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r *recordDB) toEntity() *entity.Record {
	return &entity.Record{
		Code:       r.Code,
		Value:      r.Value,
		Owner:      r.Owner.String,
		VisitCount: r.VisitCount,
		CreatedAt:  r.CreatedAt,
	}
}

type RecordRepository struct {
	db *sqlx.DB
}

func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Save(ctx context.Context, code, value, owner string) (*entity.Record, error) {
	const op = "adapter.repository.postgres.RecordRepository.Save"
	const query = `INSERT INTO records(code, value, owner) VALUES ($1, $2, $3)
		RETURNING code, value, owner, visit_count, created_at`

	var rec recordDB

	ownerArg := sql.NullString{String: owner, Valid: owner != ""}

	if err := r.db.GetContext(ctx, &rec, query, code, value, ownerArg); err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to insert into records table: %w", op, err)
	}

	return rec.toEntity(), nil
}

func (r *RecordRepository) RetrieveAndIncrementVisits(ctx context.Context, code string) (*entity.Record, error) {
	const op = "adapter.repository.postgres.RecordRepository.RetrieveAndIncrementVisits"
	const query = `UPDATE records SET visit_count = visit_count + 1 WHERE code = $1
		RETURNING code, value, owner, visit_count, created_at`

	var rec recordDB

	if err := r.db.GetContext(ctx, &rec, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrRecordNotFound)
		}

		return nil, fmt.Errorf("%s: failed to update records table row: %w", op, err)
	}

	return rec.toEntity(), nil
}

func (r *RecordRepository) RetrieveByCode(ctx context.Context, code string) (*entity.Record, error) {
	const op = "adapter.repository.postgres.RecordRepository.RetrieveByCode"
	const query = `SELECT code, value, owner, visit_count, created_at FROM records WHERE code = $1`

	var rec recordDB

	if err := r.db.GetContext(ctx, &rec, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrRecordNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from records table: %w", op, err)
	}

	return rec.toEntity(), nil
}
