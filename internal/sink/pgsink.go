package sink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PGConfig holds configuration for the Postgres sink.
type PGConfig struct {
	DSN       string
	Table     string
	BatchSize int
	FlushMS   int
	UseCopy   bool
}

// PGSink buffers batches and writes them to a JSONB table, either with
// COPY or with a multi-row INSERT.
type PGSink struct {
	config PGConfig
	db     *sql.DB
	log    *zap.Logger

	mu    sync.Mutex
	batch []Batch

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

func validateTableName(name string) error {
	if !tableNameRe.MatchString(name) {
		return errors.Errorf("invalid table name %q", name)
	}
	return nil
}

// NewPGSinkFromEnv creates a PGSink from environment variables
func NewPGSinkFromEnv(logger *zap.Logger) *PGSink {
	return &PGSink{
		config: PGConfig{
			DSN:       getEnvOr("PG_DSN", "postgres://localhost/passivecaptcha?sslmode=disable"),
			Table:     getEnvOr("PG_TABLE", "captcha_batches"),
			BatchSize: getIntEnv("PG_BATCH_SIZE", 500),
			FlushMS:   getIntEnv("PG_FLUSH_MS", 500),
			UseCopy:   getBoolEnv("PG_COPY", true),
		},
		log: named(logger, "postgres"),
	}
}

// NewPGSink creates a PGSink with default batching for dsn.
func NewPGSink(dsn string) *PGSink {
	return &PGSink{
		config: PGConfig{DSN: dsn, Table: "captcha_batches", BatchSize: 500, FlushMS: 500, UseCopy: true},
		log:    named(nil, "postgres"),
	}
}

func (s *PGSink) Name() string { return "postgres" }

func (s *PGSink) Start(ctx context.Context) error {
	if err := validateTableName(s.config.Table); err != nil {
		return err
	}
	db, err := sql.Open("postgres", s.config.DSN)
	if err != nil {
		return errors.Wrap(err, "failed to open postgres")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return errors.Wrap(err, "failed to connect to postgres")
	}
	s.db = db
	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.ensureSchema(); err != nil {
		s.cancel()
		db.Close()
		return err
	}
	s.done = make(chan struct{})
	go s.flushRoutine()
	return nil
}

func (s *PGSink) ensureSchema() error {
	t := s.config.Table
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	batch_id    TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL,
	body        JSONB NOT NULL
)`, t)
	if _, err := s.db.ExecContext(s.ctx, ddl); err != nil {
		return errors.Wrap(err, "failed to create table")
	}
	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_ts ON %s (received_at)", t, t),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_gin ON %s USING GIN (body)", t, t),
	}
	for _, q := range indexes {
		if _, err := s.db.ExecContext(s.ctx, q); err != nil {
			return errors.Wrap(err, "failed to create index")
		}
	}
	return nil
}

func (s *PGSink) Enqueue(b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = append(s.batch, b)
	if s.config.BatchSize > 0 && len(s.batch) >= s.config.BatchSize {
		return s.flushBatch()
	}
	return nil
}

// Pending is the number of batches waiting for the next flush.
func (s *PGSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batch)
}

// flushBatch writes the pending rows. On failure the rows stay pending for
// the next attempt. Callers hold s.mu.
func (s *PGSink) flushBatch() error {
	if len(s.batch) == 0 {
		return nil
	}
	var err error
	if s.config.UseCopy {
		err = s.flushWithCopy()
	} else {
		err = s.flushWithInsert()
	}
	if err != nil {
		return err
	}
	s.batch = s.batch[:0]
	return nil
}

type pgRow struct {
	id, session, kind string
	at                time.Time
	body              []byte
}

func (s *PGSink) rows() ([]pgRow, error) {
	out := make([]pgRow, 0, len(s.batch))
	for _, b := range s.batch {
		body, err := json.Marshal(b)
		if err != nil {
			return nil, errors.Wrapf(err, "encode batch %s", b.BatchID)
		}
		out = append(out, pgRow{b.BatchID, b.SessionID(), b.Kind, b.ReceivedAt, body})
	}
	return out, nil
}

func (s *PGSink) flushWithInsert() error {
	if len(s.batch) == 0 {
		return nil
	}
	rows, err := s.rows()
	if err != nil {
		return err
	}
	var (
		sb   strings.Builder
		args = make([]any, 0, len(rows)*5)
	)
	fmt.Fprintf(&sb, "INSERT INTO %s (batch_id, session_id, kind, received_at, body) VALUES ", s.config.Table)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5)
		args = append(args, r.id, r.session, r.kind, r.at, string(r.body))
	}
	sb.WriteString(" ON CONFLICT (batch_id) DO NOTHING")

	if _, err := s.db.ExecContext(s.ctx, sb.String(), args...); err != nil {
		return errors.Wrap(err, "failed to insert batch")
	}
	return nil
}

func (s *PGSink) flushWithCopy() error {
	rows, err := s.rows()
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(s.ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	stmt, err := tx.Prepare(pq.CopyIn(s.config.Table, "batch_id", "session_id", "kind", "received_at", "body"))
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "failed to prepare copy")
	}
	for _, r := range rows {
		if _, err := stmt.Exec(r.id, r.session, r.kind, r.at, string(r.body)); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return errors.Wrap(err, "failed to copy row")
		}
	}
	if _, err := stmt.Exec(); err != nil {
		_ = stmt.Close()
		_ = tx.Rollback()
		return errors.Wrap(err, "failed to finish copy")
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "failed to close copy")
	}
	return errors.Wrap(tx.Commit(), "failed to commit copy")
}

func (s *PGSink) flushRoutine() {
	defer close(s.done)
	interval := time.Duration(s.config.FlushMS) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if err := s.flushBatch(); err != nil && s.log != nil {
				s.log.Warn("periodic flush failed", zap.Error(err), zap.Int("pending", len(s.batch)))
			}
			s.mu.Unlock()
		}
	}
}

func (s *PGSink) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	if s.db == nil {
		return nil
	}
	s.mu.Lock()
	s.ctx = context.Background()
	err := s.flushBatch()
	s.mu.Unlock()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}
