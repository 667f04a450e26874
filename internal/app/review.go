package app

import (
	"context"
	"fmt"

	"quizcraft-service/internal/domain"
)

// Review shows the results of a stored attempt from its own snapshot.
func (c *Controller) Review(attemptID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, a := range c.history {
		if a.ID != attemptID {
			continue
		}
		c.clearQuizLocked()
		snapshot := a.QuizSnapshot.Clone()
		c.quiz = &snapshot
		c.answers = a.UserAnswers.Clone()
		c.score = a.Score
		c.err = ""
		c.view = ViewResults
		return nil
	}
	return fmt.Errorf("attempt %s: %w", attemptID, domain.ErrQuizNotFound)
}

// Simplify fetches an ELI5 version of question i's explanation. Failures are kept
// per question and never replace the session error.
func (c *Controller) Simplify(ctx context.Context, i int) error {
	c.mu.Lock()
	if c.view != ViewResults || c.quiz == nil {
		c.mu.Unlock()
		return domain.ErrNoActiveQuiz
	}
	if i < 0 || i >= len(c.quiz.Questions) {
		c.mu.Unlock()
		return fmt.Errorf("%w: question %d out of range", domain.ErrInvalidQuiz, i)
	}
	q := c.quiz.Questions[i]
	if q.SimplifiedExplanation != "" || c.simplifying[i] {
		c.mu.Unlock()
		return nil
	}
	if c.deps.Simplifier == nil {
		c.setItemErrorLocked(i, "Gemini API Key is not configured. Cannot simplify explanation.")
		c.mu.Unlock()
		return domain.ErrGenerationUnavailable
	}
	if c.simplifying == nil {
		c.simplifying = map[int]bool{}
	}
	c.simplifying[i] = true
	delete(c.itemErrors, i)
	quiz := c.quiz
	c.mu.Unlock()

	text, err := c.deps.Simplifier.Simplify(ctx, q.Explanation)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.simplifying, i)
	if c.quiz != quiz {
		return nil
	}
	if err != nil {
		c.log.Warn("simplify explanation failed", "question", i, "error", err)
		c.setItemErrorLocked(i, "Could not simplify this explanation.")
		return err
	}
	c.quiz.Questions[i].SimplifiedExplanation = text
	return nil
}

func (c *Controller) setItemErrorLocked(i int, msg string) {
	if c.itemErrors == nil {
		c.itemErrors = map[int]string{}
	}
	c.itemErrors[i] = msg
}

// ShowLeaderboard opens the leaderboard of a shared quiz.
func (c *Controller) ShowLeaderboard(ctx context.Context, sharedQuizID string) error {
	return c.Navigate(ctx, ViewLeaderboard, sharedQuizID)
}

func (c *Controller) loadLeaderboard(ctx context.Context, sharedQuizID string) error {
	c.mu.Lock()
	c.boardID = sharedQuizID
	c.loading = true
	c.mu.Unlock()

	entries, err := c.deps.Store.Leaderboard(ctx, sharedQuizID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if c.boardID != sharedQuizID {
		return nil
	}
	if err != nil {
		c.log.Warn("load leaderboard failed", "shared_quiz_id", sharedQuizID, "error", err)
		c.err = "Could not load the leaderboard."
		return err
	}
	c.board = entries
	return nil
}
