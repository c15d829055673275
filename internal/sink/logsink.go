package sink

import (
	"bufio"
	"context"
	"os"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// LogSink appends batches as NDJSON to a file, or to stdout when LOG_PATH
// is "stdout".
type LogSink struct {
	dst string

	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func NewLogSink() *LogSink {
	return &LogSink{dst: getEnvOr("LOG_PATH", "ndjson.log")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dst == "stdout" {
		s.w = bufio.NewWriter(os.Stdout)
		return nil
	}
	f, err := os.OpenFile(s.dst, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", s.dst)
	}
	s.f = f
	s.w = bufio.NewWriter(f)
	return nil
}

func (s *LogSink) Enqueue(b Batch) error {
	line, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "encode batch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return errors.New("log sink not started")
	}
	line = append(line, '\n')
	if _, err := s.w.Write(line); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.w != nil {
		err = s.w.Flush()
		s.w = nil
	}
	if s.f != nil {
		if cerr := s.f.Close(); err == nil {
			err = cerr
		}
		s.f = nil
	}
	return err
}
