// Package audit keeps a SQLite journal of document conversions and login
// attempts. Entries carry metadata only (filename, sizes, per-section
// lengths, timings); document content is never written.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/lexdoc/dbopen"
	"github.com/hazyhaar/lexdoc/idgen"
	"github.com/hazyhaar/lexdoc/kit"
)

// Operations recorded in the journal.
const (
	OpClean = "clean"
	OpSplit = "split"
	OpLogin = "login"
)

// Statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusDenied  = "denied"
)

const (
	flushInterval = 5 * time.Second
	flushBatch    = 100
)

// Entry is one journal row.
type Entry struct {
	ID         string
	Timestamp  time.Time
	Operation  string
	Transport  string
	RequestID  string
	Username   string
	Filename   string
	Bytes      int64
	Sections   map[string]int // section key -> rendered length
	DurationMs int64
	Status     string
	Error      string
}

// Filter narrows Query results. Zero fields are ignored.
type Filter struct {
	Since     time.Time
	Until     time.Time
	Operation string
	Status    string
	Limit     int // default 100
	Offset    int
	OrderDir  string // "ASC" or "DESC" (default) on timestamp
}

// Logger persists entries asynchronously through a buffered channel drained
// by a single flush goroutine. A nil *Logger discards everything, so callers
// need not check whether auditing is enabled.
type Logger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	ch     chan *Entry
	stop   chan struct{}
	done   chan struct{}

	closeOnce sync.Once
}

// Option configures a Logger.
type Option func(*Logger)

// WithIDGenerator overrides the entry ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *Logger) { l.newID = gen }
}

// WithLogger sets the slog logger used for flush failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) { l.logger = logger }
}

// New starts an audit logger on db. The audit schema must already exist.
func New(db *sql.DB, bufferSize int, opts ...Option) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	l := &Logger{
		db:     db,
		newID:  idgen.Prefixed("aud_", idgen.Default),
		logger: slog.Default(),
		ch:     make(chan *Entry, bufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l
}

// NewEntry builds an entry for op, filling transport, request ID and user from
// ctx and status/error from err.
func NewEntry(ctx context.Context, op string, err error, elapsed time.Duration) *Entry {
	e := &Entry{
		Timestamp:  time.Now(),
		Operation:  op,
		Transport:  kit.GetTransport(ctx),
		RequestID:  kit.GetRequestID(ctx),
		Username:   kit.GetUser(ctx),
		DurationMs: elapsed.Milliseconds(),
		Status:     StatusSuccess,
	}
	if err != nil {
		e.Status = StatusError
		e.Error = err.Error()
	}
	return e
}

// Log inserts e synchronously.
func (l *Logger) Log(ctx context.Context, e *Entry) error {
	if l == nil {
		return nil
	}
	l.fillDefaults(e)
	return l.insert(ctx, l.db, e)
}

// LogAsync queues e. When the buffer is full it falls back to a synchronous
// insert.
func (l *Logger) LogAsync(e *Entry) {
	if l == nil {
		return
	}
	l.fillDefaults(e)
	select {
	case l.ch <- e:
	default:
		l.logger.Warn("audit buffer full, sync fallback", "operation", e.Operation)
		if err := l.insert(context.Background(), l.db, e); err != nil {
			l.logger.Error("audit sync fallback failed", "error", err)
		}
	}
}

// Query returns entries matching f, newest first unless f.OrderDir is ASC.
func (l *Logger) Query(ctx context.Context, f Filter) ([]*Entry, error) {
	q := `SELECT entry_id, timestamp, operation, transport, request_id, username,
		filename, bytes, sections, duration_ms, status, error
		FROM audit_log WHERE 1=1`
	var args []any

	if !f.Since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, f.Since.Unix())
	}
	if !f.Until.IsZero() {
		q += " AND timestamp <= ?"
		args = append(args, f.Until.Unix())
	}
	if f.Operation != "" {
		q += " AND operation = ?"
		args = append(args, f.Operation)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}

	dir := "DESC"
	if f.OrderDir != "" {
		switch strings.ToUpper(f.OrderDir) {
		case "ASC", "DESC":
			dir = strings.ToUpper(f.OrderDir)
		default:
			return nil, fmt.Errorf("audit: invalid order_dir: %q", f.OrderDir)
		}
	}
	q += " ORDER BY timestamp " + dir + ", rowid " + dir

	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var sections string
		if err := rows.Scan(&e.ID, &ts, &e.Operation, &e.Transport, &e.RequestID, &e.Username,
			&e.Filename, &e.Bytes, &sections, &e.DurationMs, &e.Status, &e.Error); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		if sections != "" && sections != "{}" {
			if err := json.Unmarshal([]byte(sections), &e.Sections); err != nil {
				return nil, fmt.Errorf("audit: decode sections of %s: %w", e.ID, err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Cleanup deletes entries older than retention and returns how many went.
func (l *Logger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).Unix()
	res, err := dbopen.Exec(ctx, l.db, "DELETE FROM audit_log WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close drains the buffer and stops the flush goroutine. Later calls wait
// for the same drain and return nil.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.closeOnce.Do(func() { close(l.stop) })
	<-l.done
	return nil
}

func (l *Logger) fillDefaults(e *Entry) {
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Status == "" {
		e.Status = StatusSuccess
		if e.Error != "" {
			e.Status = StatusError
		}
	}
}

func (l *Logger) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	batch := make([]*Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
			for _, e := range batch {
				if err := l.insert(ctx, tx, e); err != nil {
					return fmt.Errorf("insert %s: %w", e.ID, err)
				}
			}
			return nil
		})
		if err != nil {
			l.logger.Error("audit flush failed", "error", err, "dropped", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-l.stop:
			for {
				select {
				case e := <-l.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (l *Logger) insert(ctx context.Context, x execer, e *Entry) error {
	sections := "{}"
	if len(e.Sections) > 0 {
		b, err := json.Marshal(e.Sections)
		if err != nil {
			return fmt.Errorf("audit: encode sections: %w", err)
		}
		sections = string(b)
	}
	_, err := x.ExecContext(ctx, `INSERT INTO audit_log
		(entry_id, timestamp, operation, transport, request_id, username,
		 filename, bytes, sections, duration_ms, status, error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Timestamp.Unix(), e.Operation, e.Transport, e.RequestID, e.Username,
		e.Filename, e.Bytes, sections, e.DurationMs, e.Status, e.Error)
	return err
}

// Middleware journals every call of an endpoint under op.
func Middleware(l *Logger, op string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			l.LogAsync(NewEntry(ctx, op, err, time.Since(start)))
			return resp, err
		}
	}
}
