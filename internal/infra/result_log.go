package infra

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// DefaultResultLogName is the file name of the JSON-lines result log.
const DefaultResultLogName = "bid_results.log"

// FileResultLog is an append-only JSON-lines record of bid outcomes.
// Appends take an exclusive file lock so concurrent bidbot processes
// never interleave partial lines.
type FileResultLog struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileResultLog creates a result log at path. The file is created on first append.
func NewFileResultLog(path string, logger *zap.Logger) *FileResultLog {
	return &FileResultLog{path: path, logger: logger}
}

// Path returns the result log file path.
func (l *FileResultLog) Path() string {
	return l.path
}

// Append writes one outcome as a single JSON line.
func (l *FileResultLog) Append(outcome domain.BidOutcome) error {
	line, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("failed to create result log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open result log: %w", err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer unlockFile(f)

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append outcome: %w", err)
	}
	return nil
}

// List reads every recorded outcome, oldest first. Malformed lines are skipped.
func (l *FileResultLog) List() ([]domain.BidOutcome, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read result log: %w", err)
	}

	var outcomes []domain.BidOutcome
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var outcome domain.BidOutcome
		if err := json.Unmarshal(raw, &outcome); err != nil {
			l.logger.Warn("skipping malformed result log line",
				zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan result log: %w", err)
	}
	return outcomes, nil
}

// MultiResultLog appends to a primary log and best-effort mirrors.
type MultiResultLog struct {
	primary domain.ResultLog
	mirrors []domain.ResultLog
	logger  *zap.Logger
}

// NewMultiResultLog fans appends out to primary and mirrors.
// Only a primary failure is returned.
func NewMultiResultLog(logger *zap.Logger, primary domain.ResultLog, mirrors ...domain.ResultLog) *MultiResultLog {
	return &MultiResultLog{primary: primary, mirrors: mirrors, logger: logger}
}

func (m *MultiResultLog) Append(outcome domain.BidOutcome) error {
	for _, mirror := range m.mirrors {
		if err := mirror.Append(outcome); err != nil {
			m.logger.Warn("failed to mirror outcome",
				zap.String("session_id", outcome.SessionID), zap.Error(err))
		}
	}
	return m.primary.Append(outcome)
}

// Ensure result logs implement the domain ports.
var (
	_ domain.ResultLog      = (*FileResultLog)(nil)
	_ domain.OutcomeHistory = (*FileResultLog)(nil)
	_ domain.ResultLog      = (*MultiResultLog)(nil)
)
