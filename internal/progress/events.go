package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventLogger records accepted score submissions.
type EventLogger interface {
	LogEvent(ctx context.Context, ev ScoreEvent) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(context.Context, ScoreEvent) error {
	return nil
}

// MemoryEventLogger keeps events in memory for tests and single-node use.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []ScoreEvent
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []ScoreEvent{},
	}
}

func (l *MemoryEventLogger) LogEvent(_ context.Context, ev ScoreEvent) error {
	if ev.ID == "" {
		return fmt.Errorf("event id is required")
	}

	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []ScoreEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ScoreEvent{}, l.events...)
}

// PostgresEventLogger inserts events into the score_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(ctx context.Context, ev ScoreEvent) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if ev.ID == "" {
		return fmt.Errorf("event id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := l.pool.Exec(ctx,
		`INSERT INTO score_events (id, learner_id, course_id, chapter_id, score, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID,
		ev.LearnerID,
		ev.CourseID,
		ev.ChapterID,
		ev.Score,
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert score event: %w", err)
	}

	slog.Debug("score event logged",
		"event_id", ev.ID,
		"learner_id", ev.LearnerID,
		"course_id", ev.CourseID,
	)
	return nil
}
