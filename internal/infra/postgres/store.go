package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizcraft-service/internal/domain"
)

// Store implements app.Store on Postgres. Quiz content and attempt snapshots are
// JSONB; everything that is queried or ranked has its own column.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

func (s *Store) SaveQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = s.now()
	}
	data, err := json.Marshal(quiz)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quizzes (id, topic, data, created_by, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET topic = EXCLUDED.topic, data = EXCLUDED.data`,
		quiz.ID, quiz.Topic, data, quiz.CreatedBy, quiz.CreatedAt)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	return quiz, nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	quiz.ID = quizID
	return quiz, nil
}

func (s *Store) CreateSharedQuiz(ctx context.Context, shared domain.SharedQuiz) (domain.SharedQuiz, error) {
	if shared.ID == "" {
		shared.ID = uuid.NewString()
	}
	if shared.CreatedAt.IsZero() {
		shared.CreatedAt = s.now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO shared_quizzes
		   (id, quiz_id, creator_id, creator_display_name, topic, num_questions, is_timed, time_per_question, proctored, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		shared.ID, shared.QuizID, shared.CreatorID, shared.CreatorDisplayName, shared.Topic,
		shared.NumQuestions, shared.IsTimed, shared.TimePerQuestion, shared.Proctored, shared.CreatedAt)
	if err != nil {
		return domain.SharedQuiz{}, fmt.Errorf("create shared quiz: %w", err)
	}
	return shared, nil
}

func (s *Store) GetSharedQuiz(ctx context.Context, sharedQuizID string) (domain.SharedQuiz, error) {
	var shared domain.SharedQuiz
	err := s.pool.QueryRow(ctx,
		`SELECT id, quiz_id, creator_id, creator_display_name, topic, num_questions, is_timed, time_per_question, proctored, created_at
		 FROM shared_quizzes WHERE id=$1`, sharedQuizID).
		Scan(&shared.ID, &shared.QuizID, &shared.CreatorID, &shared.CreatorDisplayName, &shared.Topic,
			&shared.NumQuestions, &shared.IsTimed, &shared.TimePerQuestion, &shared.Proctored, &shared.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SharedQuiz{}, domain.ErrSharedQuizNotFound
	}
	if err != nil {
		return domain.SharedQuiz{}, fmt.Errorf("load shared quiz: %w", err)
	}
	return shared, nil
}

// UpsertSharedAttempt keeps one row per user; a later attempt overwrites the earlier.
func (s *Store) UpsertSharedAttempt(ctx context.Context, sharedQuizID string, a domain.SharedQuizAttempt) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO shared_quiz_attempts (shared_quiz_id, user_id, user_display_name, score, num_questions, attempted_at)
		 SELECT id, $2, $3, $4, $5, $6 FROM shared_quizzes WHERE id = $1
		 ON CONFLICT (shared_quiz_id, user_id) DO UPDATE SET
		   user_display_name = EXCLUDED.user_display_name,
		   score = EXCLUDED.score,
		   num_questions = EXCLUDED.num_questions,
		   attempted_at = EXCLUDED.attempted_at`,
		sharedQuizID, a.UserID, a.UserDisplayName, a.Score, a.NumQuestions, a.Timestamp)
	if err != nil {
		return fmt.Errorf("save shared attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSharedQuizNotFound
	}
	return nil
}

func (s *Store) Leaderboard(ctx context.Context, sharedQuizID string) ([]domain.LeaderboardEntry, error) {
	if _, err := s.GetSharedQuiz(ctx, sharedQuizID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, user_display_name, score, num_questions, attempted_at
		 FROM shared_quiz_attempts WHERE shared_quiz_id=$1
		 ORDER BY score DESC, attempted_at ASC, user_id ASC`, sharedQuizID)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []domain.LeaderboardEntry{}
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.UserDisplayName, &e.Score, &e.NumQuestions, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) LoadHistory(ctx context.Context, userID string) ([]domain.QuizAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM quiz_attempts WHERE user_id=$1 ORDER BY attempted_at DESC, id DESC LIMIT $2`,
		userID, domain.MaxHistory)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var history []domain.QuizAttempt
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		var a domain.QuizAttempt
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("unmarshal attempt: %w", err)
		}
		history = append(history, a)
	}
	return history, rows.Err()
}

// AppendAttempt writes the attempt and prunes everything past the newest
// domain.MaxHistory in the same transaction.
func (s *Store) AppendAttempt(ctx context.Context, userID string, a domain.QuizAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now()
	}
	a.UserID = userID
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO quiz_attempts
			   (id, user_id, quiz_id, shared_quiz_id, data, score, topic, num_questions, is_timed_quiz, attempted_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			a.ID, userID, a.QuizID, a.SharedQuizID, data, a.Score, a.Topic, a.NumQuestions, a.IsTimedQuiz, a.Timestamp); err != nil {
			return fmt.Errorf("save attempt: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM quiz_attempts WHERE user_id = $1 AND id NOT IN (
			   SELECT id FROM quiz_attempts WHERE user_id = $1 ORDER BY attempted_at DESC, id DESC LIMIT $2)`,
			userID, domain.MaxHistory); err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
		return nil
	})
}

func (s *Store) LoadProgress(ctx context.Context, userID string) (domain.UserProgress, error) {
	p := domain.UserProgress{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT awarded_badge_ids, completed_topics, total_correct_answers, total_quizzes_taken, completed_timed_quiz
		 FROM user_progress WHERE user_id=$1`, userID).
		Scan(&p.AwardedBadgeIDs, &p.CompletedTopics, &p.TotalCorrectAnswers, &p.TotalQuizzesTaken, &p.CompletedTimedQuiz)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserProgress{UserID: userID, AwardedBadgeIDs: []string{}, CompletedTopics: []string{}}, nil
	}
	if err != nil {
		return domain.UserProgress{}, fmt.Errorf("load progress: %w", err)
	}
	return p, nil
}

// SaveProgress merges on conflict: arrays are unioned, counters keep the larger
// value and the timed flag is sticky, so a concurrent stale save never drops a badge.
func (s *Store) SaveProgress(ctx context.Context, userID string, p domain.UserProgress) error {
	badges := p.AwardedBadgeIDs
	if badges == nil {
		badges = []string{}
	}
	topics := p.CompletedTopics
	if topics == nil {
		topics = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_progress
		   (user_id, awarded_badge_ids, completed_topics, total_correct_answers, total_quizzes_taken, completed_timed_quiz)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
		   awarded_badge_ids = user_progress.awarded_badge_ids || ARRAY(
		     SELECT b FROM unnest(EXCLUDED.awarded_badge_ids) b WHERE NOT b = ANY(user_progress.awarded_badge_ids)),
		   completed_topics = user_progress.completed_topics || ARRAY(
		     SELECT t FROM unnest(EXCLUDED.completed_topics) t WHERE NOT t = ANY(user_progress.completed_topics)),
		   total_correct_answers = GREATEST(user_progress.total_correct_answers, EXCLUDED.total_correct_answers),
		   total_quizzes_taken = GREATEST(user_progress.total_quizzes_taken, EXCLUDED.total_quizzes_taken),
		   completed_timed_quiz = user_progress.completed_timed_quiz OR EXCLUDED.completed_timed_quiz`,
		userID, badges, topics, p.TotalCorrectAnswers, p.TotalQuizzesTaken, p.CompletedTimedQuiz)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}
