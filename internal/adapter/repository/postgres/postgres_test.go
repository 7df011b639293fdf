package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

func TestIsUniqueViolationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "pgx unique violation error",
			err:  &pgconn.PgError{Code: uniqueViolationErrCode},
			want: true,
		},
		{
			name: "wrapped pgx unique violation error",
			err:  errors.Join(errors.New("insert failed"), &pgconn.PgError{Code: uniqueViolationErrCode}),
			want: true,
		},
		{
			name: "pq unique violation error",
			err:  &pq.Error{Code: uniqueViolationErrCode},
			want: true,
		},
		{
			name: "not unique violation error",
			err:  &pgconn.PgError{Code: "23502"},
			want: false,
		},
		{
			name: "not driver error",
			err:  errors.New("unknown error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isUniqueViolationError(tt.err)

			assert.Equal(t, tt.want, got)
		})
	}
}

type RecordRepositoryTestSuite struct {
	suite.Suite
	errUnknown error
	columns    []string
	createdAt  time.Time
	mock       sqlmock.Sqlmock
	repo       *RecordRepository
}

func (suite *RecordRepositoryTestSuite) SetupSuite() {
	suite.errUnknown = errors.New("unknown error")
	suite.columns = []string{"code", "value", "owner", "visit_count", "created_at"}
	suite.createdAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func (suite *RecordRepositoryTestSuite) SetupSubTest() {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		suite.T().Fatalf("Failed to create mock database: %v", err)
	}
	suite.T().Cleanup(func() {
		mockDB.Close()
	})

	db := sqlx.NewDb(mockDB, "sqlmock")
	suite.T().Cleanup(func() {
		db.Close()
	})

	suite.mock = mock
	suite.repo = NewRecordRepository(db)
}

func (suite *RecordRepositoryTestSuite) TearDownSubTest() {
	suite.NoError(suite.mock.ExpectationsWereMet())
}

func (suite *RecordRepositoryTestSuite) TestSave() {
	suite.Run("code exists", func() {
		suite.mock.ExpectQuery(`INSERT INTO records`).
			WithArgs("abcd", "https://example.com", nil).
			WillReturnError(&pgconn.PgError{Code: uniqueViolationErrCode})

		rec, err := suite.repo.Save(context.Background(), "abcd", "https://example.com", "")

		suite.Error(err)
		suite.ErrorIs(err, entity.ErrCodeExists)
		suite.Nil(rec)
	})

	suite.Run("unknown error", func() {
		suite.mock.ExpectQuery(`INSERT INTO records`).
			WithArgs("abcd", "https://example.com", nil).
			WillReturnError(suite.errUnknown)

		rec, err := suite.repo.Save(context.Background(), "abcd", "https://example.com", "")

		suite.Error(err)
		suite.ErrorIs(err, suite.errUnknown)
		suite.NotErrorIs(err, entity.ErrCodeExists)
		suite.Nil(rec)
	})

	suite.Run("anonymous owner", func() {
		rows := sqlmock.NewRows(suite.columns).
			AddRow("abcd", "https://example.com", nil, 0, suite.createdAt)

		suite.mock.ExpectQuery(`INSERT INTO records`).
			WithArgs("abcd", "https://example.com", nil).
			WillReturnRows(rows)

		rec, err := suite.repo.Save(context.Background(), "abcd", "https://example.com", "")

		suite.NoError(err)
		suite.Equal(&entity.Record{
			Code:      "abcd",
			Value:     "https://example.com",
			CreatedAt: suite.createdAt,
		}, rec)
	})

	suite.Run("success", func() {
		rows := sqlmock.NewRows(suite.columns).
			AddRow("abcd", "https://example.com", "10.0.0.5", 0, suite.createdAt)

		suite.mock.ExpectQuery(`INSERT INTO records`).
			WithArgs("abcd", "https://example.com", "10.0.0.5").
			WillReturnRows(rows)

		rec, err := suite.repo.Save(context.Background(), "abcd", "https://example.com", "10.0.0.5")

		suite.NoError(err)
		suite.Equal(&entity.Record{
			Code:      "abcd",
			Value:     "https://example.com",
			Owner:     "10.0.0.5",
			CreatedAt: suite.createdAt,
		}, rec)
	})
}

func (suite *RecordRepositoryTestSuite) TestRetrieveAndIncrementVisits() {
	suite.Run("record not found", func() {
		suite.mock.ExpectQuery(`UPDATE records SET visit_count = visit_count \+ 1`).
			WithArgs("zzzz").
			WillReturnError(sql.ErrNoRows)

		rec, err := suite.repo.RetrieveAndIncrementVisits(context.Background(), "zzzz")

		suite.Error(err)
		suite.ErrorIs(err, entity.ErrRecordNotFound)
		suite.Nil(rec)
	})

	suite.Run("unknown error", func() {
		suite.mock.ExpectQuery(`UPDATE records SET visit_count = visit_count \+ 1`).
			WithArgs("abcd").
			WillReturnError(suite.errUnknown)

		rec, err := suite.repo.RetrieveAndIncrementVisits(context.Background(), "abcd")

		suite.Error(err)
		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(rec)
	})

	suite.Run("success", func() {
		rows := sqlmock.NewRows(suite.columns).
			AddRow("abcd", "https://example.com", "alice", 2, suite.createdAt)

		suite.mock.ExpectQuery(`UPDATE records SET visit_count = visit_count \+ 1`).
			WithArgs("abcd").
			WillReturnRows(rows)

		rec, err := suite.repo.RetrieveAndIncrementVisits(context.Background(), "abcd")

		suite.NoError(err)
		suite.Equal(&entity.Record{
			Code:       "abcd",
			Value:      "https://example.com",
			Owner:      "alice",
			VisitCount: 2,
			CreatedAt:  suite.createdAt,
		}, rec)
	})
}

func (suite *RecordRepositoryTestSuite) TestRetrieveByCode() {
	suite.Run("record not found", func() {
		suite.mock.ExpectQuery(`SELECT (.+) FROM records`).
			WithArgs("zzzz").
			WillReturnError(sql.ErrNoRows)

		rec, err := suite.repo.RetrieveByCode(context.Background(), "zzzz")

		suite.Error(err)
		suite.ErrorIs(err, entity.ErrRecordNotFound)
		suite.Nil(rec)
	})

	suite.Run("unknown error", func() {
		suite.mock.ExpectQuery(`SELECT (.+) FROM records`).
			WithArgs("abcd").
			WillReturnError(suite.errUnknown)

		rec, err := suite.repo.RetrieveByCode(context.Background(), "abcd")

		suite.Error(err)
		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(rec)
	})

	suite.Run("success", func() {
		rows := sqlmock.NewRows(suite.columns).
			AddRow("abcd", "https://example.com", "alice", 7, suite.createdAt)

		suite.mock.ExpectQuery(`SELECT (.+) FROM records`).
			WithArgs("abcd").
			WillReturnRows(rows)

		rec, err := suite.repo.RetrieveByCode(context.Background(), "abcd")

		suite.NoError(err)
		suite.Equal(int64(7), rec.VisitCount)
		suite.Equal("alice", rec.Owner)
	})
}

func TestRecordRepository(t *testing.T) {
	suite.Run(t, new(RecordRepositoryTestSuite))
}
