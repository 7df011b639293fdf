// Package usecase implements the short-code registry: allocation of unique
// codes over a storage backend and their resolution back to stored values.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vadimbarashkov/shortlink/internal/codegen"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/internal/metrics"
)

const (
	// MinCodeLength is the shortest code the registry hands out.
	MinCodeLength = 4

	DefaultBaseCodeLength = MinCodeLength
	DefaultMaxRetries     = 10
)

var (
	// ErrRetriesExhausted is returned when every allocation attempt collided
	// with an existing code.
	ErrRetriesExhausted = errors.New("retries exhausted while allocating code")
	// ErrBackend is returned when the storage backend failed for a reason
	// other than a code collision.
	ErrBackend = errors.New("storage backend failure")
)

// RecordRepository is the storage backend the registry allocates and
// resolves codes against. Implementations must be safe for concurrent use.
type RecordRepository interface {
	// Save stores a new record under code in a single conditional write.
	// It returns entity.ErrCodeExists if a record with code is already stored.
	Save(ctx context.Context, code, value, owner string) (*entity.Record, error)

	// RetrieveAndIncrementVisits increments the visit count of the record
	// stored under code and returns the updated record in one atomic step.
	// It returns entity.ErrRecordNotFound if no such record exists.
	RetrieveAndIncrementVisits(ctx context.Context, code string) (*entity.Record, error)

	// RetrieveByCode returns the record stored under code without changing it.
	// It returns entity.ErrRecordNotFound if no such record exists.
	RetrieveByCode(ctx context.Context, code string) (*entity.Record, error)
}

// Generator returns a random candidate code of the given length.
type Generator func(length int) string

// Option configures a Registry.
type Option func(*Registry)

// WithBaseCodeLength sets the length of the first candidate code.
// Values below MinCodeLength are ignored.
func WithBaseCodeLength(n int) Option {
	return func(r *Registry) {
		if n >= MinCodeLength {
			r.baseCodeLength = n
		}
	}
}

// WithMaxRetries sets the number of allocation attempts. Values below 1 are ignored.
func WithMaxRetries(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

func WithGenerator(g Generator) Option {
	return func(r *Registry) {
		r.generate = g
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// Registry allocates short codes for values and resolves them back.
// It holds no mutable state of its own; uniqueness and counter atomicity
// are provided by the RecordRepository.
type Registry struct {
	repo           RecordRepository
	generate       Generator
	baseCodeLength int
	maxRetries     int
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

func New(repo RecordRepository, opts ...Option) *Registry {
	r := &Registry{
		repo:           repo,
		generate:       codegen.Generate,
		baseCodeLength: DefaultBaseCodeLength,
		maxRetries:     DefaultMaxRetries,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Allocate stores value under a newly generated code and returns the created
// record. Every attempt that collides with an existing code is retried with a
// code one character longer than the previous one. After the configured
// number of attempts Allocate gives up with ErrRetriesExhausted. Any other
// backend failure is returned immediately, wrapped with ErrBackend.
func (r *Registry) Allocate(ctx context.Context, value, owner string) (*entity.Record, error) {
	const op = "usecase.Registry.Allocate"

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			r.metrics.ObserveAllocation(metrics.ResultError)
			return nil, fmt.Errorf("%s: %w: %w", op, ErrBackend, err)
		}

		code := r.generate(r.baseCodeLength + attempt)

		rec, err := r.repo.Save(ctx, code, value, owner)
		if err != nil {
			if errors.Is(err, entity.ErrCodeExists) {
				r.metrics.ObserveCollision()
				r.logger.Debug("short code collision",
					slog.String("op", op),
					slog.String("code", code),
					slog.Int("attempt", attempt+1),
				)

				continue
			}

			r.metrics.ObserveAllocation(metrics.ResultError)
			return nil, fmt.Errorf("%s: %w: %w", op, ErrBackend, err)
		}

		r.metrics.ObserveAllocation(metrics.ResultSuccess)
		return rec, nil
	}

	r.metrics.ObserveAllocation(metrics.ResultExhausted)
	r.logger.Warn("short code allocation exhausted retries",
		slog.String("op", op),
		slog.Int("attempts", r.maxRetries),
	)

	return nil, fmt.Errorf("%s: %w", op, ErrRetriesExhausted)
}

// Resolve returns the record stored under code and counts the visit.
// The boolean result is false if no record exists; nothing is stored then.
func (r *Registry) Resolve(ctx context.Context, code string) (*entity.Record, bool, error) {
	const op = "usecase.Registry.Resolve"

	rec, err := r.repo.RetrieveAndIncrementVisits(ctx, code)
	if err != nil {
		if errors.Is(err, entity.ErrRecordNotFound) {
			r.metrics.ObserveResolution(metrics.ResultNotFound)
			return nil, false, nil
		}

		r.metrics.ObserveResolution(metrics.ResultError)
		return nil, false, fmt.Errorf("%s: %w: %w", op, ErrBackend, err)
	}

	r.metrics.ObserveResolution(metrics.ResultSuccess)
	return rec, true, nil
}

// Stats returns the record stored under code without counting a visit.
func (r *Registry) Stats(ctx context.Context, code string) (*entity.Record, bool, error) {
	const op = "usecase.Registry.Stats"

	rec, err := r.repo.RetrieveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, entity.ErrRecordNotFound) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("%s: %w: %w", op, ErrBackend, err)
	}

	return rec, true, nil
}
