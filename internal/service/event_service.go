package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/tubevault/internal/config"
	"github.com/iconidentify/tubevault/internal/domain"
)

// EventService keeps the download history: a ring buffer of recent outcomes
// plus optional SQLite persistence and live subscribers.
type EventService struct {
	size          int
	retentionDays int
	logger        *slog.Logger

	mu       sync.RWMutex
	events   []domain.Event
	head     int
	count    int
	eventSeq uint64

	db *sql.DB

	subMu       sync.RWMutex
	subscribers map[uint64]chan domain.Event
	subSeq      uint64
}

// NewEventService creates the history store. SQLite is enabled when
// cfg.SQLitePath is set.
func NewEventService(cfg config.HistoryConfig, logger *slog.Logger) (*EventService, error) {
	size := cfg.RingBufferSize
	if size <= 0 {
		size = 1000
	}

	svc := &EventService{
		size:          size,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
		events:        make([]domain.Event, size),
		subscribers:   make(map[uint64]chan domain.Event),
	}

	if cfg.SQLitePath != "" {
		if err := svc.initSQLite(cfg.SQLitePath); err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		logger.Info("download history persistence enabled", "path", cfg.SQLitePath)
	}

	return svc, nil
}

func (s *EventService) initSQLite(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS downloads (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			tier TEXT NOT NULL,
			url TEXT NOT NULL,
			bucket TEXT,
			object_key TEXT,
			subject TEXT,
			message TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			metadata TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_downloads_timestamp ON downloads(timestamp);
		CREATE INDEX IF NOT EXISTS idx_downloads_outcome ON downloads(outcome);
	`)
	if err != nil {
		db.Close()
		return fmt.Errorf("create table: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database, if any.
func (s *EventService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Emit records an orchestration outcome.
func (s *EventService) Emit(event domain.Event) {
	if event.ID == "" {
		seq := atomic.AddUint64(&s.eventSeq, 1)
		event.ID = domain.EventID(fmt.Sprintf("dl_%d_%d", time.Now().UnixNano(), seq))
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	s.events[s.head] = event
	s.head = (s.head + 1) % s.size
	if s.count < s.size {
		s.count++
	}
	s.mu.Unlock()

	if s.db != nil {
		s.persistEvent(event)
	}

	s.notifySubscribers(event)
}

func (s *EventService) persistEvent(event domain.Event) {
	metadata := ""
	if event.Metadata != nil {
		metadata = string(event.Metadata)
	}

	_, err := s.db.Exec(`
		INSERT INTO downloads (id, timestamp, outcome, tier, url, bucket, object_key, subject, message, duration_ms, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(event.ID), event.Timestamp.UnixMilli(), string(event.Outcome), string(event.Tier), event.URL,
		event.Bucket, event.Key, event.Subject, event.Message, event.DurationMS, metadata)
	if err != nil {
		s.logger.Warn("failed to persist download event", "event_id", event.ID, "error", err)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

// Query returns recent events from the ring buffer, newest first.
func (s *EventService) Query(ctx context.Context, query domain.EventQuery) (*domain.EventQueryResult, error) {
	query.Limit = clampLimit(query.Limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Event, 0, s.count)
	for i := 0; i < s.count; i++ {
		idx := (s.head - 1 - i + s.size) % s.size
		if e := s.events[idx]; matchesFilter(e, query.Filter) {
			matched = append(matched, e)
		}
	}

	total := len(matched)
	start := query.Offset
	if start >= total {
		return &domain.EventQueryResult{Events: []domain.Event{}, Total: total}, nil
	}
	end := start + query.Limit
	if end > total {
		end = total
	}

	return &domain.EventQueryResult{
		Events:  matched[start:end],
		Total:   total,
		HasMore: end < total,
	}, nil
}

// QueryHistorical queries persisted events, newest first.
func (s *EventService) QueryHistorical(ctx context.Context, query domain.EventQuery) (*domain.EventQueryResult, error) {
	if s.db == nil {
		return &domain.EventQueryResult{Events: []domain.Event{}}, nil
	}
	query.Limit = clampLimit(query.Limit)

	var conditions []string
	var args []interface{}

	if query.Filter.Outcome != nil {
		conditions = append(conditions, "outcome = ?")
		args = append(args, string(*query.Filter.Outcome))
	}
	if query.Filter.Since != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, query.Filter.Since.UnixMilli())
	}
	if query.Filter.SearchText != "" {
		conditions = append(conditions, "(url LIKE ? OR object_key LIKE ? OR message LIKE ?)")
		like := "%" + query.Filter.SearchText + "%"
		args = append(args, like, like, like)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM downloads "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count downloads: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, outcome, tier, url, bucket, object_key, subject, message, duration_ms, metadata
		FROM downloads `+where+`
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`, append(args, query.Limit, query.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0, query.Limit)
	for rows.Next() {
		var (
			e                          domain.Event
			id, outcome, tier          string
			ts                         int64
			bucket, key, subject, meta sql.NullString
		)
		if err := rows.Scan(&id, &ts, &outcome, &tier, &e.URL, &bucket, &key, &subject, &e.Message, &e.DurationMS, &meta); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		e.ID = domain.EventID(id)
		e.Timestamp = time.UnixMilli(ts).UTC()
		e.Outcome = domain.EventOutcome(outcome)
		e.Tier = domain.QualityTier(tier)
		e.Bucket = bucket.String
		e.Key = key.String
		e.Subject = subject.String
		if meta.Valid && meta.String != "" {
			e.Metadata = json.RawMessage(meta.String)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate downloads: %w", err)
	}

	return &domain.EventQueryResult{
		Events:  events,
		Total:   total,
		HasMore: query.Offset+len(events) < total,
	}, nil
}

// GetRecent returns the most recent n events.
func (s *EventService) GetRecent(n int) []domain.Event {
	if n <= 0 {
		n = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > s.count {
		n = s.count
	}
	result := make([]domain.Event, 0, n)
	for i := 0; i < n; i++ {
		result = append(result, s.events[(s.head-1-i+s.size)%s.size])
	}
	return result
}

func matchesFilter(e domain.Event, filter domain.EventFilter) bool {
	if e.ID == "" {
		return false
	}
	if filter.Outcome != nil && e.Outcome != *filter.Outcome {
		return false
	}
	if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
		return false
	}
	if filter.SearchText != "" {
		needle := strings.ToLower(filter.SearchText)
		if !strings.Contains(strings.ToLower(e.URL), needle) &&
			!strings.Contains(strings.ToLower(e.Key), needle) &&
			!strings.Contains(strings.ToLower(e.Message), needle) {
			return false
		}
	}
	return true
}

// Subscribe registers a live listener. The caller must call Unsubscribe.
func (s *EventService) Subscribe() (uint64, <-chan domain.Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.subSeq++
	id := s.subSeq
	ch := make(chan domain.Event, 100)
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *EventService) Unsubscribe(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *EventService) notifySubscribers(event domain.Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Warn("history subscriber buffer full, dropping event", "subscriber_id", id, "event_id", event.ID)
		}
	}
}

// EventStats describes the history store.
type EventStats struct {
	BufferSize    int  `json:"buffer_size"`
	BufferUsed    int  `json:"buffer_used"`
	Subscribers   int  `json:"subscribers"`
	SQLiteEnabled bool `json:"sqlite_enabled"`
}

func (s *EventService) Stats() EventStats {
	s.mu.RLock()
	used := s.count
	s.mu.RUnlock()

	s.subMu.RLock()
	subs := len(s.subscribers)
	s.subMu.RUnlock()

	return EventStats{
		BufferSize:    s.size,
		BufferUsed:    used,
		Subscribers:   subs,
		SQLiteEnabled: s.db != nil,
	}
}

// CleanupOldEvents removes persisted events older than the retention period.
func (s *EventService) CleanupOldEvents(ctx context.Context) error {
	if s.db == nil || s.retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	result, err := s.db.ExecContext(ctx, "DELETE FROM downloads WHERE timestamp < ?", cutoff.UnixMilli())
	if err != nil {
		return fmt.Errorf("delete old downloads: %w", err)
	}

	if deleted, _ := result.RowsAffected(); deleted > 0 {
		s.logger.Info("cleaned up old download history", "deleted", deleted, "cutoff", cutoff)
	}
	return nil
}
