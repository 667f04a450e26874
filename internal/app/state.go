package app

import (
	"quizcraft-service/internal/badges"
	"quizcraft-service/internal/domain"
	"quizcraft-service/internal/multiplayer"
	"quizcraft-service/internal/play"
)

// State is everything a client needs to render the session.
type State struct {
	View         View                 `json:"view"`
	Loading      bool                 `json:"loading"`
	Error        string               `json:"error,omitempty"`
	APIKeyStatus string               `json:"apiKeyStatus,omitempty"`
	User         domain.User          `json:"user"`
	Address      Address              `json:"address"`
	Proctoring   bool                 `json:"proctoringActive"`
	Share        *ShareState          `json:"share,omitempty"`
	Quiz         *QuizState           `json:"quiz,omitempty"`
	Results      *ResultsState        `json:"results,omitempty"`
	History      []domain.QuizAttempt `json:"history,omitempty"`
	Progress     domain.UserProgress  `json:"progress"`
	Badges       []badges.Status      `json:"badges,omitempty"`
	NewBadges    []badges.Badge       `json:"newBadges,omitempty"`
	Leaderboard  *LeaderboardState    `json:"leaderboard,omitempty"`
	Room         *multiplayer.View    `json:"room,omitempty"`
	Tutor        *TutorState          `json:"tutor,omitempty"`
}

type ShareState struct {
	Link      string `json:"link"`
	Proctored bool   `json:"proctored"`
}

// QuizState is the question on screen while a quiz is being taken.
type QuizState struct {
	Topic    string    `json:"topic"`
	Shared   bool      `json:"shared"`
	Question play.View `json:"question"`
}

type ResultsState struct {
	play.Summary
	Topic      string            `json:"topic"`
	Questions  []domain.Question `json:"questions"`
	Answers    domain.Answers    `json:"answers"`
	ItemErrors map[int]string    `json:"itemErrors,omitempty"`
	Pending    []int             `json:"pending,omitempty"`
}

type LeaderboardState struct {
	SharedQuizID string                    `json:"sharedQuizId"`
	Entries      []domain.LeaderboardEntry `json:"entries"`
}

// State renders the session. It is safe to call from any goroutine.
func (c *Controller) State() State {
	c.mu.Lock()
	room := c.room
	st := State{
		View:         c.view,
		Loading:      c.loading,
		Error:        c.err,
		APIKeyStatus: c.deps.APIKeyStatus,
		User:         c.user,
		Address:      c.address,
		Proctoring:   c.proctoring,
		Progress:     c.progress.Clone(),
		NewBadges:    append([]badges.Badge(nil), c.newBadges...),
		Tutor:        c.tutor.state(),
	}
	if c.shareLink != "" {
		st.Share = &ShareState{Link: c.shareLink, Proctored: c.shareProct}
	}

	switch c.view {
	case ViewQuiz:
		if c.player != nil && c.quiz != nil {
			st.Quiz = &QuizState{Topic: c.quiz.Topic, Shared: c.shared != nil, Question: c.player.Snapshot()}
		}
	case ViewResults:
		if c.quiz != nil {
			st.Results = c.resultsLocked()
		}
	case ViewHistory:
		st.History = append([]domain.QuizAttempt(nil), c.history...)
	case ViewAchievements:
		st.Badges = badges.Statuses(c.progress)
	case ViewLeaderboard:
		st.Leaderboard = &LeaderboardState{SharedQuizID: c.boardID, Entries: append([]domain.LeaderboardEntry(nil), c.board...)}
	}
	c.mu.Unlock()

	if st.View == ViewMultiplayer && room != nil {
		v := room.View()
		if v.RoomID != "" {
			st.Address = Address{RoomID: v.RoomID}
		}
		st.Room = &v
	}
	return st
}

func (c *Controller) resultsLocked() *ResultsState {
	quiz := c.quiz.Clone()
	res := &ResultsState{
		Summary:   play.Summarize(c.score, len(quiz.Questions)),
		Topic:     quiz.Topic,
		Questions: quiz.Questions,
		Answers:   c.answers.Clone(),
	}
	if len(c.itemErrors) > 0 {
		res.ItemErrors = make(map[int]string, len(c.itemErrors))
		for k, v := range c.itemErrors {
			res.ItemErrors[k] = v
		}
	}
	for i := range c.simplifying {
		res.Pending = append(res.Pending, i)
	}
	return res
}

// RoomLink is the shareable join link for the current room, if any.
func (c *Controller) RoomLink() string {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room == nil || room.RoomID() == "" {
		return ""
	}
	return c.link("room", room.RoomID())
}
