// Package memory implements the record repository as an in-process map with
// an optional append-only log that makes it durable across restarts.
package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vadimbarashkov/shortlink/internal/entity"
)

// ErrClosed is returned by operations on a repository whose log has been closed.
var ErrClosed = errors.New("repository closed")

const (
	opCreate = "create"
	opVisit  = "visit"
)

// logEntry is one line of the append-only log.
type logEntry struct {
	Op        string    `json:"op"`
	Code      string    `json:"code"`
	Value     string    `json:"value,omitempty"`
	Owner     string    `json:"owner,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// RecordRepository stores records in memory. Every compound operation runs
// under a single lock, so a conditional insert and a fetch-increment are
// each atomic with respect to all other operations.
type RecordRepository struct {
	mu      sync.Mutex
	records map[string]*entity.Record
	file    *os.File
	w       *bufio.Writer
	closed  bool
	now     func() time.Time
}

// New returns a repository without durability.
func New() *RecordRepository {
	return &RecordRepository{
		records: make(map[string]*entity.Record),
		now:     time.Now,
	}
}

// Open returns a repository backed by the log at path. Existing entries are
// replayed before Open returns; the file is created if it does not exist.
func Open(path string) (*RecordRepository, error) {
	const op = "adapter.repository.memory.Open"

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open log file: %w", op, err)
	}

	r := New()

	end, unterminated, err := r.replay(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: failed to replay log file: %w", op, err)
	}

	// Drop a torn trailing entry so new entries start on a clean line.
	if err := f.Truncate(end); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: failed to truncate log file: %w", op, err)
	}
	if _, err := f.Seek(end, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: failed to seek log file: %w", op, err)
	}
	if unterminated {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: failed to terminate log file: %w", op, err)
		}
	}

	r.file = f
	r.w = bufio.NewWriter(f)

	return r, nil
}

// replay applies the entries of the log and returns the offset just past the
// last applied entry and whether that entry lacks its trailing newline. A
// final entry without a newline that cannot be decoded is treated as a torn
// write and skipped.
func (r *RecordRepository) replay(src io.Reader) (int64, bool, error) {
	br := bufio.NewReader(src)

	var offset int64
	for line := 1; ; line++ {
		b, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, false, err
		}
		if len(b) == 0 {
			return offset, false, nil
		}

		complete := b[len(b)-1] == '\n'

		var e logEntry
		if decErr := json.Unmarshal(b, &e); decErr != nil {
			if !complete {
				return offset, false, nil
			}
			return 0, false, fmt.Errorf("line %d: %w", line, decErr)
		}

		if err := r.apply(e); err != nil {
			return 0, false, fmt.Errorf("line %d: %w", line, err)
		}

		offset += int64(len(b))
		if !complete {
			return offset, true, nil
		}
	}
}

func (r *RecordRepository) apply(e logEntry) error {
	switch e.Op {
	case opCreate:
		if _, ok := r.records[e.Code]; ok {
			return fmt.Errorf("duplicate code %q", e.Code)
		}
		r.records[e.Code] = &entity.Record{
			Code:      e.Code,
			Value:     e.Value,
			Owner:     e.Owner,
			CreatedAt: e.CreatedAt,
		}
	case opVisit:
		rec, ok := r.records[e.Code]
		if !ok {
			return fmt.Errorf("visit of unknown code %q", e.Code)
		}
		rec.VisitCount++
	default:
		return fmt.Errorf("unknown operation %q", e.Op)
	}

	return nil
}

// append writes e to the log. The caller must hold r.mu.
func (r *RecordRepository) append(e logEntry) error {
	if r.w == nil {
		return nil
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if _, err := r.w.Write(b); err != nil {
		return err
	}

	return r.w.Flush()
}

func (r *RecordRepository) Save(ctx context.Context, code, value, owner string) (*entity.Record, error) {
	const op = "adapter.repository.memory.RecordRepository.Save"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("%s: %w", op, ErrClosed)
	}

	if _, ok := r.records[code]; ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrCodeExists)
	}

	rec := &entity.Record{
		Code:      code,
		Value:     value,
		Owner:     owner,
		CreatedAt: r.now().UTC(),
	}

	err := r.append(logEntry{
		Op:        opCreate,
		Code:      rec.Code,
		Value:     rec.Value,
		Owner:     rec.Owner,
		CreatedAt: rec.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to append to log: %w", op, err)
	}

	r.records[code] = rec

	cp := *rec
	return &cp, nil
}

func (r *RecordRepository) RetrieveAndIncrementVisits(ctx context.Context, code string) (*entity.Record, error) {
	const op = "adapter.repository.memory.RecordRepository.RetrieveAndIncrementVisits"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("%s: %w", op, ErrClosed)
	}

	rec, ok := r.records[code]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrRecordNotFound)
	}

	if err := r.append(logEntry{Op: opVisit, Code: code}); err != nil {
		return nil, fmt.Errorf("%s: failed to append to log: %w", op, err)
	}

	rec.VisitCount++

	cp := *rec
	return &cp, nil
}

func (r *RecordRepository) RetrieveByCode(ctx context.Context, code string) (*entity.Record, error) {
	const op = "adapter.repository.memory.RecordRepository.RetrieveByCode"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[code]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrRecordNotFound)
	}

	cp := *rec
	return &cp, nil
}

// Len returns the number of stored records.
func (r *RecordRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.records)
}

// Close flushes and syncs the log. Records stay readable, but further
// mutations fail with ErrClosed. Close is a no-op without a log.
func (r *RecordRepository) Close() error {
	const op = "adapter.repository.memory.RecordRepository.Close"

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil || r.closed {
		return nil
	}
	r.closed = true

	if err := r.w.Flush(); err != nil {
		r.file.Close()
		return fmt.Errorf("%s: failed to flush log: %w", op, err)
	}
	if err := r.file.Sync(); err != nil {
		r.file.Close()
		return fmt.Errorf("%s: failed to sync log: %w", op, err)
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("%s: failed to close log: %w", op, err)
	}

	return nil
}
