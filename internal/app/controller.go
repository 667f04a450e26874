package app

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"quizcraft-service/internal/badges"
	"quizcraft-service/internal/domain"
	"quizcraft-service/internal/logger"
	"quizcraft-service/internal/multiplayer"
	"quizcraft-service/internal/play"
)

// ErrUnknownView is returned by Navigate for a view name it does not know.
var ErrUnknownView = errors.New("unknown view")

// View names the screen a session is showing.
type View string

const (
	ViewLanding      View = "landing"
	ViewLogin        View = "login"
	ViewSignup       View = "signup"
	ViewForm         View = "form"
	ViewQuiz         View = "quiz"
	ViewResults      View = "results"
	ViewHistory      View = "history"
	ViewAchievements View = "achievements"
	ViewLeaderboard  View = "leaderboard"
	ViewMultiplayer  View = "multiplayer"
)

func (v View) Valid() bool {
	switch v {
	case ViewLanding, ViewLogin, ViewSignup, ViewForm, ViewQuiz, ViewResults,
		ViewHistory, ViewAchievements, ViewLeaderboard, ViewMultiplayer:
		return true
	}
	return false
}

func (v View) needsLogin() bool {
	return v == ViewForm || v == ViewHistory || v == ViewAchievements
}

// Address is the session part of the shareable URL.
type Address struct {
	ShareID string `json:"shareId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// RoomQuizConfig is what a host's room quiz is generated from.
type RoomQuizConfig struct {
	Topic        string
	NumQuestions int
}

// Deps wires a Controller. Generator, Images, Simplifier and Tutor may be nil
// when their credentials are not configured. TimePerQuestion is the countdown
// for timed quizzes that do not carry one.
type Deps struct {
	Store           Store
	Generator       Generator
	Images          ImageSource
	Simplifier      Simplifier
	Tutor           Tutor
	Rooms           multiplayer.RoomStore
	RoomQuiz        RoomQuizConfig
	PublicURL       string
	TimePerQuestion int
	APIKeyStatus    string
	Log             *logger.Logger
	Now             func() time.Time
	Location        *time.Location
	PlayOptions     []play.Option

	// OnChange fires after state changes that happen outside a method call.
	OnChange func()
}

// Controller owns one client session: which view shows and which quiz is active.
// Methods are meant to be called one at a time per session; timers and room
// subscriptions may read state concurrently.
type Controller struct {
	deps Deps
	log  *logger.Logger
	user domain.User

	mu          sync.Mutex
	view        View
	loading     bool
	err         string
	quiz        *domain.Quiz
	shared      *domain.SharedQuiz
	player      *play.Machine
	answers     domain.Answers
	score       int
	history     []domain.QuizAttempt
	progress    domain.UserProgress
	newBadges   []badges.Badge
	shareLink   string
	shareProct  bool
	proctoring  bool
	boardID     string
	board       []domain.LeaderboardEntry
	itemErrors  map[int]string
	simplifying map[int]bool
	tutor       *tutorSession
	address     Address
	room        *multiplayer.Synchronizer
}

// New builds a controller for user. A zero user is anonymous.
func New(user domain.User, deps Deps) *Controller {
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.TimePerQuestion <= 0 {
		deps.TimePerQuestion = domain.DefaultTimePerQuestion
	}
	if deps.RoomQuiz.Topic == "" {
		deps.RoomQuiz.Topic = "General Knowledge"
	}
	if deps.RoomQuiz.NumQuestions <= 0 {
		deps.RoomQuiz.NumQuestions = domain.DefaultQuestions
	}
	return &Controller{
		deps:     deps,
		log:      deps.Log.With("user_id", user.ID),
		user:     user,
		view:     ViewLanding,
		progress: domain.UserProgress{UserID: user.ID},
	}
}

// Start restores user data and follows the address the session was opened with.
// A room id wins over a shared quiz id.
func (c *Controller) Start(ctx context.Context, addr Address) error {
	if c.user.LoggedIn() {
		c.loadUserData(ctx)
	}
	switch {
	case addr.RoomID != "":
		c.mu.Lock()
		c.view = ViewMultiplayer
		c.mu.Unlock()
		return c.JoinRoom(ctx, addr.RoomID)
	case addr.ShareID != "":
		return c.JoinShared(ctx, addr.ShareID)
	}
	return nil
}

func (c *Controller) loadUserData(ctx context.Context) {
	c.setLoading(true)
	defer c.setLoading(false)

	var (
		progress domain.UserProgress
		history  []domain.QuizAttempt
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		progress, err = c.deps.Store.LoadProgress(gctx, c.user.ID)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = c.deps.Store.LoadHistory(gctx, c.user.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		c.log.Warn("load user data failed", "error", err)
		c.setError("Could not load your data. Please try again later.")
		return
	}
	if len(history) > domain.MaxHistory {
		history = history[:domain.MaxHistory]
	}
	progress.UserID = c.user.ID

	c.mu.Lock()
	c.progress = progress
	c.history = history
	c.mu.Unlock()
}

// Navigate switches view. Views that need an identity route anonymous users to login.
// Landing and form drop the active quiz, shared session and address.
func (c *Controller) Navigate(ctx context.Context, view View, associatedID string) error {
	if !view.Valid() {
		return ErrUnknownView
	}
	if view.needsLogin() && !c.user.LoggedIn() {
		view = ViewLogin
	}

	c.mu.Lock()
	leavingRoom := c.view == ViewMultiplayer && view != ViewMultiplayer
	room := c.room
	if leavingRoom {
		c.room = nil
		c.address.RoomID = ""
	}
	c.err = ""
	c.proctoring = false
	if view == ViewLanding || view == ViewForm {
		c.clearQuizLocked()
		c.address = Address{}
	}
	if view != ViewResults {
		c.tutor = nil
	}
	c.boardID = ""
	c.board = nil
	c.view = view
	c.mu.Unlock()

	if leavingRoom && room != nil {
		room.Close()
	}
	if view == ViewLeaderboard && associatedID != "" {
		return c.loadLeaderboard(ctx, associatedID)
	}
	return nil
}

func (c *Controller) clearQuizLocked() {
	if c.player != nil {
		c.player.Close()
	}
	c.player = nil
	c.quiz = nil
	c.shared = nil
	c.answers = nil
	c.score = 0
	c.itemErrors = nil
	c.simplifying = nil
	c.tutor = nil
	c.newBadges = nil
}

// DismissShare closes the share-link prompt shown after publishing a quiz.
func (c *Controller) DismissShare() {
	c.mu.Lock()
	c.shareLink = ""
	c.shareProct = false
	c.mu.Unlock()
}

// Close releases timers and room subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.player != nil {
		c.player.Close()
	}
	room := c.room
	c.room = nil
	c.mu.Unlock()
	if room != nil {
		room.Close()
	}
}

// Address returns the session part of the current URL.
func (c *Controller) Address() Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

func (c *Controller) link(key, id string) string {
	base := strings.TrimRight(c.deps.PublicURL, "/")
	return base + "/?" + url.Values{key: []string{id}}.Encode()
}

func (c *Controller) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	c.err = msg
	c.mu.Unlock()
}

func (c *Controller) changed() {
	if c.deps.OnChange != nil {
		c.deps.OnChange()
	}
}
