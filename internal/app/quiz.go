package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"quizcraft-service/internal/badges"
	"quizcraft-service/internal/domain"
	"quizcraft-service/internal/play"
)

// GenerateQuiz runs the own-generation path. A shared request from a logged-in user
// publishes the quiz and stays on the form with a link; anything else enters the quiz.
// Failures leave the session on the form with one error message.
func (c *Controller) GenerateQuiz(ctx context.Context, cfg domain.QuizConfig) error {
	cfg, err := cfg.Normalize()
	if err != nil {
		c.failTo(ViewForm, err.Error())
		return err
	}
	if c.deps.Generator == nil {
		c.failTo(ViewForm, "Gemini API Key is not set. Cannot generate quiz.")
		return domain.ErrGenerationUnavailable
	}
	share := cfg.Share && c.user.LoggedIn()

	c.mu.Lock()
	c.loading = true
	c.err = ""
	c.shared = nil
	c.mu.Unlock()
	defer c.setLoading(false)

	quiz, err := c.generate(ctx, cfg)
	if err != nil {
		msg := "Failed to generate quiz: " + err.Error()
		if share {
			msg += " Sharing process might have also been affected."
		}
		c.log.Warn("quiz generation failed", "error", err)
		c.failTo(ViewForm, msg)
		return err
	}

	if share {
		link, err := c.publish(ctx, quiz, cfg.Proctored)
		if err != nil {
			c.log.Warn("publish quiz failed", "error", err)
			c.failTo(ViewForm, "Failed to share quiz: "+err.Error())
			return err
		}
		c.mu.Lock()
		c.shareLink = link
		c.shareProct = cfg.Proctored
		c.view = ViewForm
		c.mu.Unlock()
		return nil
	}

	if c.user.LoggedIn() {
		saved, err := c.deps.Store.SaveQuiz(ctx, quiz)
		if err != nil {
			// Playable without an id; the attempt just won't be recorded.
			c.log.Warn("save quiz failed", "error", err)
		} else {
			quiz = saved
		}
	}
	return c.enterQuiz(quiz, nil, cfg.Proctored)
}

func (c *Controller) generate(ctx context.Context, cfg domain.QuizConfig) (domain.Quiz, error) {
	imageURL := ""
	if c.deps.Images != nil {
		u, err := c.deps.Images.RandomImage(ctx)
		if err != nil {
			c.log.Warn("image fetch failed", "error", err)
		} else {
			imageURL = u
		}
	}
	quiz, err := c.deps.Generator.GenerateQuiz(ctx, domain.GenerationRequest{
		TopicOrText:  cfg.TopicOrText,
		NumQuestions: cfg.NumQuestions,
		ImageURL:     imageURL,
		BloomLevel:   cfg.BloomLevel,
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz = quiz.WithoutSimplifications()
	quiz.IsTimed = cfg.IsTimed
	quiz.TimePerQuestion = 0
	if cfg.IsTimed {
		quiz.TimePerQuestion = c.deps.TimePerQuestion
	}
	quiz.CreatedBy = c.user.ID
	quiz.CreatedAt = c.deps.Now()
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func (c *Controller) publish(ctx context.Context, quiz domain.Quiz, proctored bool) (string, error) {
	saved, err := c.deps.Store.SaveQuiz(ctx, quiz)
	if err != nil {
		return "", fmt.Errorf("save quiz: %w", err)
	}
	shared, err := c.deps.Store.CreateSharedQuiz(ctx, domain.SharedQuiz{
		QuizID:             saved.ID,
		CreatorID:          c.user.ID,
		CreatorDisplayName: c.user.Label(),
		Topic:              saved.Topic,
		NumQuestions:       len(saved.Questions),
		IsTimed:            saved.IsTimed,
		TimePerQuestion:    saved.TimePerQuestion,
		Proctored:          proctored,
		CreatedAt:          c.deps.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("create shared quiz: %w", err)
	}
	return c.link("shareId", shared.ID), nil
}

// JoinShared loads a shared quiz and enters it. Unknown ids return to landing.
func (c *Controller) JoinShared(ctx context.Context, sharedQuizID string) error {
	c.mu.Lock()
	c.loading = true
	c.err = ""
	c.mu.Unlock()
	defer c.setLoading(false)

	shared, err := c.deps.Store.GetSharedQuiz(ctx, sharedQuizID)
	if err != nil {
		msg := "Could not load the shared quiz."
		if errors.Is(err, domain.ErrSharedQuizNotFound) {
			msg = "Shared quiz session not found. The link may be invalid or expired."
		}
		c.log.Warn("join shared quiz failed", "shared_quiz_id", sharedQuizID, "error", err)
		c.failTo(ViewLanding, msg)
		return err
	}
	quiz, err := c.deps.Store.GetQuiz(ctx, shared.QuizID)
	if err != nil {
		c.log.Warn("load shared quiz content failed", "shared_quiz_id", sharedQuizID, "quiz_id", shared.QuizID, "error", err)
		c.failTo(ViewLanding, "The original quiz for this shared session could not be loaded.")
		return err
	}

	quiz = quiz.WithoutSimplifications()
	quiz.IsTimed = shared.IsTimed
	quiz.TimePerQuestion = 0
	if shared.IsTimed {
		quiz.TimePerQuestion = shared.TimePerQuestion
		if quiz.TimePerQuestion <= 0 {
			quiz.TimePerQuestion = c.deps.TimePerQuestion
		}
	}
	if err := c.enterQuiz(quiz, &shared, shared.Proctored); err != nil {
		c.failTo(ViewLanding, "The original quiz for this shared session could not be loaded.")
		return err
	}
	c.mu.Lock()
	c.address = Address{ShareID: shared.ID}
	c.mu.Unlock()
	return nil
}

func (c *Controller) enterQuiz(quiz domain.Quiz, shared *domain.SharedQuiz, proctored bool) error {
	opts := append([]play.Option{play.OnExpire(func(int) { c.changed() })}, c.deps.PlayOptions...)
	player, err := play.New(quiz, opts...)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearQuizLocked()
	active := quiz.Clone()
	c.quiz = &active
	c.shared = shared
	c.player = player
	c.answers = domain.Answers{}
	c.proctoring = proctored
	c.view = ViewQuiz
	return nil
}

// SelectOption answers the current question of the active quiz.
func (c *Controller) SelectOption(key domain.OptionKey) (bool, error) {
	player, err := c.activePlayer()
	if err != nil {
		return false, err
	}
	return player.SelectOption(key), nil
}

// Tick drives the active countdown and returns the remaining seconds.
func (c *Controller) Tick() int {
	player, err := c.activePlayer()
	if err != nil {
		return 0
	}
	return player.Tick()
}

// Advance moves past feedback; after the last question it submits and shows results.
func (c *Controller) Advance(ctx context.Context) (play.Step, error) {
	player, err := c.activePlayer()
	if err != nil {
		return play.StepRejected, err
	}
	step := player.Advance()
	if step == play.StepSubmitted {
		c.submit(ctx, player)
	}
	return step, nil
}

func (c *Controller) activePlayer() (*play.Machine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view != ViewQuiz || c.player == nil {
		return nil, domain.ErrNoActiveQuiz
	}
	return c.player, nil
}

// submit routes a finished quiz to exactly one of: the shared leaderboard, personal
// history, or nowhere. Write failures are logged; results show regardless.
func (c *Controller) submit(ctx context.Context, player *play.Machine) {
	quiz := player.Quiz()
	answers := player.Answers()
	score := play.Score(quiz, answers)

	c.mu.Lock()
	if c.player != player {
		c.mu.Unlock()
		return
	}
	shared := c.shared
	c.answers = answers
	c.score = score
	c.view = ViewResults
	c.mu.Unlock()

	switch {
	case shared != nil && c.user.LoggedIn():
		c.recordShared(ctx, *shared, score, len(quiz.Questions))
	case shared == nil && c.user.LoggedIn() && quiz.ID != "":
		c.recordPersonal(ctx, quiz, answers, score)
	}
}

func (c *Controller) recordShared(ctx context.Context, shared domain.SharedQuiz, score, total int) {
	err := c.deps.Store.UpsertSharedAttempt(ctx, shared.ID, domain.SharedQuizAttempt{
		UserID:          c.user.ID,
		UserDisplayName: c.user.Label(),
		Score:           score,
		NumQuestions:    total,
		Timestamp:       c.deps.Now(),
	})
	if err != nil {
		c.log.Warn("save shared attempt failed", "shared_quiz_id", shared.ID, "error", err)
	}
}

// recordPersonal applies the attempt and the progress update locally first and
// rolls each back if its write fails.
func (c *Controller) recordPersonal(ctx context.Context, quiz domain.Quiz, answers domain.Answers, score int) {
	attempt := domain.QuizAttempt{
		ID:           uuid.NewString(),
		QuizID:       quiz.ID,
		UserID:       c.user.ID,
		QuizSnapshot: quiz.Clone(),
		UserAnswers:  answers.Clone(),
		Score:        score,
		Timestamp:    c.deps.Now(),
		Topic:        quiz.Topic,
		NumQuestions: len(quiz.Questions),
		IsTimedQuiz:  quiz.IsTimed,
	}

	c.mu.Lock()
	previous := c.history
	c.history = prepend(previous, attempt)
	c.mu.Unlock()
	if err := c.deps.Store.AppendAttempt(ctx, c.user.ID, attempt); err != nil {
		c.log.Warn("save quiz attempt failed", "quiz_id", quiz.ID, "error", err)
		c.mu.Lock()
		c.history = previous
		c.mu.Unlock()
	}

	c.mu.Lock()
	before := c.progress
	recorded := before.Record(quiz.Topic, score, quiz.IsTimed)
	updated, awarded := badges.Evaluate(badges.Facts{
		Progress: recorded,
		History:  c.history,
		Location: c.deps.Location,
	})
	c.progress = updated
	c.newBadges = awarded
	c.mu.Unlock()

	if err := c.deps.Store.SaveProgress(ctx, c.user.ID, updated); err != nil {
		c.log.Warn("save progress failed", "quiz_id", quiz.ID, "error", err)
		c.mu.Lock()
		c.progress = before
		c.newBadges = nil
		c.mu.Unlock()
		return
	}
	for _, b := range awarded {
		c.log.Info("badge awarded", "badge_id", b.ID)
	}
}

func prepend(history []domain.QuizAttempt, a domain.QuizAttempt) []domain.QuizAttempt {
	out := make([]domain.QuizAttempt, 0, len(history)+1)
	out = append(out, a)
	out = append(out, history...)
	if len(out) > domain.MaxHistory {
		out = out[:domain.MaxHistory]
	}
	return out
}

func (c *Controller) failTo(view View, msg string) {
	c.mu.Lock()
	if view == ViewLanding {
		c.clearQuizLocked()
		c.address = Address{}
	}
	c.err = msg
	c.view = view
	c.loading = false
	c.mu.Unlock()
}
