package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a PostgreSQL-backed Store. Tables are created by
// database.Migrate.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

// NewPostgresStore creates a store on top of pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool, db: pool}, nil
}

func (s *PostgresStore) GetCourse(ctx context.Context, learnerID, courseID string) (CourseAggregate, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	c := CourseAggregate{CourseID: courseID}
	var lastChapter *string
	var difficulty string

	err := s.db.QueryRow(ctx,
		`SELECT last_chapter_id, avg_score, difficulty, updated_at
		 FROM course_progress
		 WHERE learner_id = $1 AND course_id = $2`,
		learnerID,
		courseID,
	).Scan(&lastChapter, &c.AverageScore, &difficulty, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CourseAggregate{}, false, nil
		}
		return CourseAggregate{}, false, fmt.Errorf("get course progress: %w", err)
	}

	if lastChapter != nil {
		c.LastChapterID = *lastChapter
	}
	c.Difficulty = Difficulty(difficulty)
	return c, true, nil
}

func (s *PostgresStore) GetChapter(ctx context.Context, learnerID, courseID, chapterID string) (ChapterAggregate, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	ch := ChapterAggregate{ChapterID: chapterID}

	err := s.db.QueryRow(ctx,
		`SELECT scores, avg_score, version, last_updated
		 FROM chapter_progress
		 WHERE learner_id = $1 AND course_id = $2 AND chapter_id = $3`,
		learnerID,
		courseID,
		chapterID,
	).Scan(&ch.Scores, &ch.AverageScore, &ch.Version, &ch.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChapterAggregate{}, false, nil
		}
		return ChapterAggregate{}, false, fmt.Errorf("get chapter progress: %w", err)
	}

	if ch.Scores == nil {
		ch.Scores = []int{}
	}
	return ch, true, nil
}

func (s *PostgresStore) PutChapter(ctx context.Context, learnerID, courseID string, ch ChapterAggregate) (ChapterAggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		cmd pgconn.CommandTag
		err error
	)
	if ch.Version == 0 {
		cmd, err = s.db.Exec(ctx,
			`INSERT INTO chapter_progress (learner_id, course_id, chapter_id, scores, avg_score, version, last_updated)
			 VALUES ($1, $2, $3, $4, $5, 1, $6)
			 ON CONFLICT (learner_id, course_id, chapter_id) DO NOTHING`,
			learnerID,
			courseID,
			ch.ChapterID,
			ch.Scores,
			ch.AverageScore,
			ch.LastUpdated,
		)
	} else {
		cmd, err = s.db.Exec(ctx,
			`UPDATE chapter_progress
			 SET scores = $4, avg_score = $5, version = version + 1, last_updated = $6
			 WHERE learner_id = $1 AND course_id = $2 AND chapter_id = $3 AND version = $7`,
			learnerID,
			courseID,
			ch.ChapterID,
			ch.Scores,
			ch.AverageScore,
			ch.LastUpdated,
			ch.Version,
		)
	}
	if err != nil {
		return ChapterAggregate{}, fmt.Errorf("put chapter progress: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ChapterAggregate{}, ErrVersionConflict
	}

	ch.Version++
	return ch, nil
}

func (s *PostgresStore) ListChapters(ctx context.Context, learnerID, courseID string) ([]ChapterAggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT chapter_id, scores, avg_score, version, last_updated
		 FROM chapter_progress
		 WHERE learner_id = $1 AND course_id = $2
		 ORDER BY chapter_id ASC`,
		learnerID,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chapter progress: %w", err)
	}
	defer rows.Close()

	chapters := []ChapterAggregate{}
	for rows.Next() {
		var ch ChapterAggregate
		if err := rows.Scan(&ch.ChapterID, &ch.Scores, &ch.AverageScore, &ch.Version, &ch.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan chapter progress: %w", err)
		}
		if ch.Scores == nil {
			ch.Scores = []int{}
		}
		chapters = append(chapters, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chapter progress: %w", err)
	}
	return chapters, nil
}

func (s *PostgresStore) PutCourse(ctx context.Context, learnerID string, c CourseAggregate) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.db.Exec(ctx,
		`INSERT INTO course_progress (learner_id, course_id, last_chapter_id, avg_score, difficulty, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (learner_id, course_id) DO UPDATE
		 SET last_chapter_id = EXCLUDED.last_chapter_id,
		     avg_score = EXCLUDED.avg_score,
		     difficulty = EXCLUDED.difficulty,
		     updated_at = EXCLUDED.updated_at`,
		learnerID,
		c.CourseID,
		nullIfEmpty(c.LastChapterID),
		c.AverageScore,
		string(c.Difficulty),
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put course progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCourses(ctx context.Context, learnerID string) ([]CourseAggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT course_id, last_chapter_id, avg_score, difficulty, updated_at
		 FROM course_progress
		 WHERE learner_id = $1
		 ORDER BY course_id ASC`,
		learnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query course progress: %w", err)
	}
	defer rows.Close()

	courses := []CourseAggregate{}
	for rows.Next() {
		var c CourseAggregate
		var lastChapter *string
		var difficulty string
		if err := rows.Scan(&c.CourseID, &lastChapter, &c.AverageScore, &difficulty, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan course progress: %w", err)
		}
		if lastChapter != nil {
			c.LastChapterID = *lastChapter
		}
		c.Difficulty = Difficulty(difficulty)
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate course progress: %w", err)
	}
	return courses, nil
}

func (s *PostgresStore) GetGlobal(ctx context.Context, learnerID string) (GlobalAggregate, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	g := GlobalAggregate{LearnerID: learnerID}
	err := s.db.QueryRow(ctx,
		`SELECT global_avg_score, last_updated
		 FROM learners
		 WHERE id = $1 AND last_updated IS NOT NULL`,
		learnerID,
	).Scan(&g.GlobalAverageScore, &g.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GlobalAggregate{}, false, nil
		}
		return GlobalAggregate{}, false, fmt.Errorf("get learner: %w", err)
	}
	return g, true, nil
}

func (s *PostgresStore) PutGlobal(ctx context.Context, g GlobalAggregate) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.db.Exec(ctx,
		`INSERT INTO learners (id, global_avg_score, last_updated)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE
		 SET global_avg_score = EXCLUDED.global_avg_score,
		     last_updated = EXCLUDED.last_updated`,
		g.LearnerID,
		g.GlobalAverageScore,
		g.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("put learner: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLearners(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT id FROM learners WHERE last_updated IS NOT NULL
		 UNION
		 SELECT DISTINCT learner_id FROM course_progress
		 ORDER BY 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("query learners: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan learner: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate learners: %w", err)
	}
	return ids, nil
}

// InTx runs fn in a transaction holding a row lock on the learner, so
// submissions for one learner commit one at a time.
func (s *PostgresStore) InTx(ctx context.Context, learnerID string, fn func(ctx context.Context, s Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	tx, err := s.begin(ctx, learnerID)
	if err != nil {
		return err
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		_ = tx.Rollback(rctx)
	}()

	if err := fn(ctx, &PostgresStore{pool: s.pool, db: tx, inTx: true}); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	if err := tx.Commit(cctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// begin opens a transaction and takes the learner's row lock. Waiting for
// the lock counts against dbTimeout.
func (s *PostgresStore) begin(ctx context.Context, learnerID string) (pgx.Tx, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO learners (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		learnerID,
	); err != nil {
		_ = tx.Rollback(context.Background())
		return nil, fmt.Errorf("ensure learner: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`SELECT id FROM learners WHERE id = $1 FOR UPDATE`,
		learnerID,
	); err != nil {
		_ = tx.Rollback(context.Background())
		return nil, fmt.Errorf("lock learner: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, learnerID string) (LearnerProfile, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT learner_profile FROM learners
		 WHERE id = $1 AND learner_profile IS NOT NULL`,
		learnerID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LearnerProfile{}, false, nil
		}
		return LearnerProfile{}, false, fmt.Errorf("get profile: %w", err)
	}

	var p LearnerProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return LearnerProfile{}, false, fmt.Errorf("decode profile: %w", err)
	}
	return p, true, nil
}

func (s *PostgresStore) PutProfile(ctx context.Context, learnerID string, p LearnerProfile) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO learners (id, learner_profile)
		 VALUES ($1, $2::jsonb)
		 ON CONFLICT (id) DO UPDATE
		 SET learner_profile = EXCLUDED.learner_profile`,
		learnerID,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
