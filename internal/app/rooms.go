package app

import (
	"context"

	"quizcraft-service/internal/domain"
	"quizcraft-service/internal/multiplayer"
)

func (c *Controller) synchronizer() *multiplayer.Synchronizer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		c.room = multiplayer.New(c.deps.Rooms, c.roomQuiz, c.user, c.deps.Log,
			multiplayer.WithClock(c.deps.Now),
			multiplayer.WithPlayOptions(c.deps.PlayOptions...),
			multiplayer.OnChange(c.changed),
		)
	}
	return c.room
}

// roomQuiz generates a host's room quiz through the same pipeline as the form.
func (c *Controller) roomQuiz(ctx context.Context) (domain.Quiz, error) {
	if c.deps.Generator == nil {
		return domain.Quiz{}, domain.ErrGenerationUnavailable
	}
	cfg, err := domain.QuizConfig{TopicOrText: c.deps.RoomQuiz.Topic, NumQuestions: c.deps.RoomQuiz.NumQuestions}.Normalize()
	if err != nil {
		return domain.Quiz{}, err
	}
	return c.generate(ctx, cfg)
}

func (c *Controller) enterMultiplayer() {
	c.mu.Lock()
	c.clearQuizLocked()
	c.err = ""
	c.view = ViewMultiplayer
	c.mu.Unlock()
}

// CreateRoom opens a new room hosted by this user.
func (c *Controller) CreateRoom(ctx context.Context) error {
	if !c.user.LoggedIn() {
		c.failTo(ViewLogin, "Log in to play multiplayer.")
		return domain.ErrNotLoggedIn
	}
	c.enterMultiplayer()
	id, err := c.synchronizer().CreateRoom(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.address = Address{RoomID: id}
	c.mu.Unlock()
	return nil
}

// JoinRoom enters an existing room by id.
func (c *Controller) JoinRoom(ctx context.Context, roomID string) error {
	if !c.user.LoggedIn() {
		c.failTo(ViewLogin, "Log in to play multiplayer.")
		return domain.ErrNotLoggedIn
	}
	c.enterMultiplayer()
	if err := c.synchronizer().JoinRoom(ctx, roomID); err != nil {
		return err
	}
	c.mu.Lock()
	c.address = Address{RoomID: roomID}
	c.mu.Unlock()
	return nil
}

func (c *Controller) activeRoom() (*multiplayer.Synchronizer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view != ViewMultiplayer || c.room == nil {
		return nil, domain.ErrNotInRoom
	}
	return c.room, nil
}

func (c *Controller) StartRoomQuiz(ctx context.Context) error {
	room, err := c.activeRoom()
	if err != nil {
		return err
	}
	return room.StartQuiz(ctx)
}

func (c *Controller) Rematch(ctx context.Context) error {
	room, err := c.activeRoom()
	if err != nil {
		return err
	}
	return room.Rematch(ctx)
}

func (c *Controller) SendChat(ctx context.Context, text string) error {
	room, err := c.activeRoom()
	if err != nil {
		return err
	}
	return room.SendChat(ctx, text)
}

// RoomSelectOption answers the current room question.
func (c *Controller) RoomSelectOption(key domain.OptionKey) (bool, error) {
	room, err := c.activeRoom()
	if err != nil {
		return false, err
	}
	return room.SelectOption(key), nil
}

func (c *Controller) RoomAdvance(ctx context.Context) error {
	room, err := c.activeRoom()
	if err != nil {
		return err
	}
	_, err = room.Advance(ctx)
	return err
}

// TickAll drives whichever countdown is active.
func (c *Controller) TickAll() {
	c.Tick()
	if room, err := c.activeRoom(); err == nil {
		room.Tick()
	}
}
