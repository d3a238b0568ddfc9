// Package audit writes a durable, rotated, retention-bounded record of every
// query, response, and rejection the gateway handles. Entries from one
// server run share a random session identifier so they can be correlated.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Rotation schemes.
const (
	RotationDaily  = "daily"
	RotationWeekly = "weekly"
	RotationSize   = "size"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

const (
	defaultMaxSizeMB     = 100
	defaultRetentionDays = 90
)

// Config holds audit logger settings.
type Config struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	LogDirectory  string `yaml:"log_directory" json:"log_directory"`
	Format        string `yaml:"format" json:"format"`
	Rotation      string `yaml:"rotation" json:"rotation"`
	MaxSizeMB     int    `yaml:"max_size_mb" json:"max_size_mb"`
	RetentionDays int    `yaml:"retention_days" json:"retention_days"`
	LogQueries    bool   `yaml:"log_queries" json:"log_queries"`
	LogResponses  bool   `yaml:"log_responses" json:"log_responses"`
	LogErrors     bool   `yaml:"log_errors" json:"log_errors"`
	PIIRedaction  bool   `yaml:"pii_redaction" json:"pii_redaction"`
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		LogDirectory:  "audit-logs",
		Format:        FormatJSON,
		Rotation:      RotationDaily,
		MaxSizeMB:     defaultMaxSizeMB,
		RetentionDays: defaultRetentionDays,
		LogQueries:    true,
		LogResponses:  true,
		LogErrors:     true,
		PIIRedaction:  false,
	}
}

// Entry is one audit record. JSON format writes one entry per line.
type Entry struct {
	Timestamp       string         `json:"timestamp"`
	SessionID       string         `json:"sessionId"`
	EventType       string         `json:"eventType"`
	Tool            string         `json:"tool"`
	Query           string         `json:"query"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	Response        string         `json:"response,omitempty"`
	Error           string         `json:"error,omitempty"`
	ErrorType       string         `json:"errorType,omitempty"`
	Success         bool           `json:"success"`
	ExecutionTimeMs int64          `json:"executionTimeMs,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Logger appends audit entries to rotated files under the configured
// directory. Safe for concurrent use; each write holds the file exclusively
// and closes it before returning. Write failures are reported on the
// process log and swallowed so that auditing never blocks the request path.
type Logger struct {
	cfg       Config
	sessionID string

	mu  sync.Mutex
	now func() time.Time
}

// NewLogger creates a logger, ensures the log directory exists, and removes
// files older than the retention window.
func NewLogger(cfg Config) (*Logger, error) {
	if cfg.LogDirectory == "" {
		cfg.LogDirectory = "audit-logs"
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.Rotation == "" {
		cfg.Rotation = RotationDaily
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultMaxSizeMB
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}

	l := &Logger{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}

	if cfg.Enabled {
		if err := os.MkdirAll(cfg.LogDirectory, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit log directory: %w", err)
		}
		l.cleanup()
	}
	return l, nil
}

// SessionID returns the identifier attached to every entry this logger
// writes.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogQuery records an inbound query.
func (l *Logger) LogQuery(tool, query string, parameters map[string]any, metadata map[string]any) {
	if !l.cfg.Enabled || !l.cfg.LogQueries {
		return
	}
	l.write(Entry{
		EventType:  "query",
		Tool:       tool,
		Query:      l.Redact(query),
		Parameters: parameters,
		Success:    true,
		Metadata:   metadata,
	})
}

// LogResponse records a successful execution and its duration.
func (l *Logger) LogResponse(tool, query, response string, executionTime time.Duration, metadata map[string]any) {
	if !l.cfg.Enabled || !l.cfg.LogResponses {
		return
	}
	l.write(Entry{
		EventType:       "response",
		Tool:            tool,
		Query:           l.Redact(query),
		Response:        l.Redact(response),
		Success:         true,
		ExecutionTimeMs: executionTime.Milliseconds(),
		Metadata:        metadata,
	})
}

// LogError records a rejection or execution failure. errorType carries the
// pipeline stage that produced the rejection.
func (l *Logger) LogError(tool, query, errMsg, errorType string, metadata map[string]any) {
	if !l.cfg.Enabled || !l.cfg.LogErrors {
		return
	}
	l.write(Entry{
		EventType: "error",
		Tool:      tool,
		Query:     l.Redact(query),
		Error:     l.Redact(errMsg),
		ErrorType: errorType,
		Success:   false,
		Metadata:  metadata,
	})
}

func (l *Logger) write(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Timestamp = l.now().UTC().Format(time.RFC3339)
	e.SessionID = l.sessionID

	target, err := l.currentLogTarget()
	if err != nil {
		log.Warn().Err(err).Msg("Audit log target unavailable")
		return
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("file", target).Msg("Failed to open audit log")
		return
	}
	defer f.Close()

	var rendered []byte
	if l.cfg.Format == FormatText {
		rendered = []byte(l.renderText(e))
	} else {
		rendered, err = json.Marshal(e)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to marshal audit entry")
			return
		}
		rendered = append(rendered, '\n')
	}

	if _, err := f.Write(rendered); err != nil {
		log.Warn().Err(err).Str("file", target).Msg("Failed to write audit entry")
	}
}

// currentLogTarget picks the active log file for the configured rotation
// scheme, rotating the size-based file when it exceeds the ceiling.
func (l *Logger) currentLogTarget() (string, error) {
	now := l.now()

	switch l.cfg.Rotation {
	case RotationWeekly:
		year, week := now.ISOWeek()
		return filepath.Join(l.cfg.LogDirectory, fmt.Sprintf("audit-%d-W%02d.log", year, week)), nil

	case RotationSize:
		target := filepath.Join(l.cfg.LogDirectory, "audit.log")
		info, err := os.Stat(target)
		if err == nil && info.Size() > int64(l.cfg.MaxSizeMB)*1024*1024 {
			rotated := filepath.Join(l.cfg.LogDirectory,
				fmt.Sprintf("audit-%s.log", now.Format("20060102-150405")))
			if err := os.Rename(target, rotated); err != nil {
				return "", fmt.Errorf("rotating audit log: %w", err)
			}
		}
		return target, nil

	default: // daily
		return filepath.Join(l.cfg.LogDirectory, fmt.Sprintf("audit-%s.log", now.Format("2006-01-02"))), nil
	}
}

// renderText is the fixed multi-line rendering of an entry.
func (l *Logger) renderText(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] session=%s event=%s tool=%s success=%t\n", e.Timestamp, e.SessionID, e.EventType, e.Tool, e.Success)
	fmt.Fprintf(&b, "  query: %s\n", e.Query)
	if len(e.Parameters) > 0 {
		params, _ := json.Marshal(e.Parameters)
		fmt.Fprintf(&b, "  parameters: %s\n", params)
	}
	if e.Response != "" {
		fmt.Fprintf(&b, "  response: %s\n", e.Response)
	}
	if e.Error != "" {
		fmt.Fprintf(&b, "  error: %s (%s)\n", e.Error, e.ErrorType)
	}
	if e.ExecutionTimeMs > 0 {
		fmt.Fprintf(&b, "  executionTimeMs: %d\n", e.ExecutionTimeMs)
	}
	if len(e.Metadata) > 0 {
		meta, _ := json.Marshal(e.Metadata)
		fmt.Fprintf(&b, "  metadata: %s\n", meta)
	}
	return b.String()
}

// cleanup removes log files older than the retention window, by file
// modification time. A missing directory is not an error.
func (l *Logger) cleanup() {
	entries, err := os.ReadDir(l.cfg.LogDirectory)
	if err != nil {
		return
	}

	cutoff := l.now().AddDate(0, 0, -l.cfg.RetentionDays)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(l.cfg.LogDirectory, entry.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Str("directory", l.cfg.LogDirectory).Msg("Removed expired audit logs")
	}
}
