package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"quizcraft-service/internal/domain"
)

type tutorSession struct {
	topic    string
	mode     domain.TutorMode
	messages []domain.TutorMessage
	busy     bool
	err      string
}

// TutorState is the render-ready tutor conversation.
type TutorState struct {
	Topic    string                `json:"topic"`
	Mode     domain.TutorMode      `json:"mode"`
	Messages []domain.TutorMessage `json:"messages"`
	Busy     bool                  `json:"busy,omitempty"`
	Error    string                `json:"error,omitempty"`
}

func greeting(topic string, mode domain.TutorMode) string {
	if mode == domain.TutorSocratic {
		return fmt.Sprintf("Hello! I'm your Socratic Guide for %q. Let's explore this topic together. What's on your mind?", topic)
	}
	return fmt.Sprintf("Hello! I'm your AI Tutor for %q. How can I help you understand this topic better? Ask me anything!", topic)
}

// StartTutor opens (or restarts in another mode) a tutor chat about the quiz on screen.
func (c *Controller) StartTutor(mode domain.TutorMode) error {
	if !mode.Valid() {
		mode = domain.TutorStandard
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view != ViewResults || c.quiz == nil {
		return domain.ErrNoActiveQuiz
	}
	topic := c.quiz.Topic
	session := &tutorSession{topic: topic, mode: mode}
	if c.deps.Tutor == nil {
		session.err = "Gemini API Key is not configured. AI Tutor is unavailable."
		session.messages = []domain.TutorMessage{c.message(domain.RoleSystem,
			fmt.Sprintf("Error: Could not start AI Tutor session for %q.", topic))}
		c.tutor = session
		return domain.ErrGenerationUnavailable
	}
	session.messages = []domain.TutorMessage{c.message(domain.RoleModel, greeting(topic, mode))}
	c.tutor = session
	return nil
}

// TutorSend posts one user turn and appends the tutor's reply.
func (c *Controller) TutorSend(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c.mu.Lock()
	session := c.tutor
	if session == nil || c.deps.Tutor == nil {
		c.mu.Unlock()
		return domain.ErrGenerationUnavailable
	}
	if session.busy {
		c.mu.Unlock()
		return nil
	}
	session.messages = append(session.messages, c.message(domain.RoleUser, text))
	session.busy = true
	session.err = ""
	req := domain.TutorRequest{
		Topic:   session.topic,
		Mode:    session.mode,
		History: append([]domain.TutorMessage(nil), session.messages...),
	}
	c.mu.Unlock()

	reply, err := c.deps.Tutor.Reply(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	session.busy = false
	if err != nil {
		c.log.Warn("tutor reply failed", "error", err)
		session.err = "AI Tutor error: " + err.Error()
		session.messages = append(session.messages, c.message(domain.RoleSystem, "Error: "+err.Error()))
		return err
	}
	if strings.TrimSpace(reply) == "" {
		reply = "I'm not sure how to respond to that. Could you try rephrasing?"
	}
	session.messages = append(session.messages, c.message(domain.RoleModel, reply))
	return nil
}

// SimplifyTutorMessage adds an ELI5 rewrite to one tutor message.
func (c *Controller) SimplifyTutorMessage(ctx context.Context, messageID string) error {
	c.mu.Lock()
	session := c.tutor
	if session == nil {
		c.mu.Unlock()
		return domain.ErrNoActiveQuiz
	}
	idx := -1
	for i, m := range session.messages {
		if m.ID == messageID {
			idx = i
		}
	}
	if idx < 0 || session.messages[idx].SimplifiedText != "" {
		c.mu.Unlock()
		return nil
	}
	if c.deps.Simplifier == nil {
		session.err = "Gemini API Key is not configured. Cannot simplify explanation."
		c.mu.Unlock()
		return domain.ErrGenerationUnavailable
	}
	original := session.messages[idx].Text
	c.mu.Unlock()

	simplified, err := c.deps.Simplifier.Simplify(ctx, original)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log.Warn("simplify tutor message failed", "error", err)
		session.err = err.Error()
		simplified = "[Could not simplify this message]"
	}
	session.messages[idx].SimplifiedText = simplified
	return err
}

func (c *Controller) message(role domain.TutorRole, text string) domain.TutorMessage {
	return domain.TutorMessage{ID: uuid.NewString(), Role: role, Text: text, Timestamp: c.deps.Now().UnixMilli()}
}

func (t *tutorSession) state() *TutorState {
	if t == nil {
		return nil
	}
	return &TutorState{
		Topic:    t.topic,
		Mode:     t.mode,
		Messages: append([]domain.TutorMessage(nil), t.messages...),
		Busy:     t.busy,
		Error:    t.err,
	}
}
