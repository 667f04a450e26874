package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quizcraft-service/internal/app"
	"quizcraft-service/internal/domain"
	"quizcraft-service/internal/logger"
)

// tickInterval drives countdowns. Remaining seconds always come from the clock.
const tickInterval = time.Second

// SessionHandler hosts one client session per websocket. The client sends
// commands and receives the full rendered state after every change.
type SessionHandler struct {
	deps     app.Deps
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewSessionHandler(deps app.Deps, log *logger.Logger) *SessionHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &SessionHandler{
		deps: deps,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type topicPayload struct {
	Topic string `json:"topic"`
}

type roomLinkPayload struct {
	Link string `json:"link"`
}

// ServeWS upgrades the request and runs the session until the socket closes.
// Query: userId, name, email identify the user (all optional); shareId or room
// open the session on a shared quiz or a multiplayer room.
func (h *SessionHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user := domain.User{ID: q.Get("userId"), DisplayName: q.Get("name"), Email: q.Get("email")}
	addr := app.Address{ShareID: q.Get("shareId"), RoomID: q.Get("room")}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	log := h.log.With("user_id", user.ID)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	dirty := make(chan struct{}, 1)
	markDirty := func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	}
	deps := h.deps
	deps.Log = log
	deps.OnChange = markDirty
	ctrl := app.New(user, deps)
	defer ctrl.Close()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pusherDone := make(chan struct{})

	// the writer is the only goroutine touching conn for writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write failed", "error", err)
				cancel()
				return
			}
		}
	}()

	go func() {
		defer close(pusherDone)
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		var last []byte
		for {
			select {
			case <-dirty:
			case <-ticker.C:
				ctrl.TickAll()
			case <-closeSignals:
				return
			}
			st := ctrl.State()
			encoded, err := json.Marshal(st)
			if err != nil || bytes.Equal(encoded, last) {
				continue
			}
			last = encoded
			select {
			case send <- outboundMessage{Type: "state", Payload: json.RawMessage(encoded)}:
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-ctx.Done():
		}
	}

	if err := ctrl.Start(ctx, addr); err != nil {
		log.Debug("session start", "error", err)
	}
	markDirty()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		out, err := h.dispatch(ctx, ctrl, inbound)
		if err != nil {
			reply(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
		}
		if out != nil {
			reply(*out)
		}
		markDirty()
	}

	close(closeSignals)
	<-pusherDone
	close(send)
	<-writerDone
}

var errUnsupported = errors.New("unsupported message type")

type viewPayload struct {
	View string `json:"view"`
	ID   string `json:"id,omitempty"`
}

type idPayload struct {
	ID string `json:"id"`
}

type keyPayload struct {
	Key domain.OptionKey `json:"key"`
}

type indexPayload struct {
	Index int `json:"index"`
}

type textPayload struct {
	Text string `json:"text"`
}

type modePayload struct {
	Mode domain.TutorMode `json:"mode"`
}

// dispatch runs one command. Failures the user should see already live in the
// state; the returned error is an extra notice for the client.
func (h *SessionHandler) dispatch(ctx context.Context, ctrl *app.Controller, in inboundMessage) (*outboundMessage, error) {
	switch in.Type {
	case "navigate":
		var p viewPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, ctrl.Navigate(ctx, app.View(p.View), p.ID)
	case "surprise":
		return &outboundMessage{Type: "surpriseTopic", Payload: topicPayload{Topic: domain.SurpriseTopic()}}, nil
	case "generate":
		var cfg domain.QuizConfig
		if err := decode(in.Payload, &cfg); err != nil {
			return nil, err
		}
		return nil, ctrl.GenerateQuiz(ctx, cfg)
	case "dismissShare":
		ctrl.DismissShare()
		return nil, nil
	case "joinShared":
		var p idPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, ctrl.JoinShared(ctx, p.ID)
	case "select":
		var p keyPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		_, err := ctrl.SelectOption(p.Key)
		return nil, err
	case "advance":
		_, err := ctrl.Advance(ctx)
		return nil, err
	case "simplify":
		var p indexPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, ctrl.Simplify(ctx, p.Index)
	case "review":
		var p idPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, ctrl.Review(p.ID)
	case "leaderboard":
		var p idPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, ctrl.ShowLeaderboard(ctx, p.ID)
	case "tutorStart":
		var p modePayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, ctrl.StartTutor(p.Mode)
	case "tutorSend":
		var p textPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, ctrl.TutorSend(ctx, p.Text)
	case "tutorSimplify":
		var p idPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, ctrl.SimplifyTutorMessage(ctx, p.ID)
	case "createRoom":
		if err := ctrl.CreateRoom(ctx); err != nil {
			return nil, err
		}
		return &outboundMessage{Type: "roomLink", Payload: roomLinkPayload{Link: ctrl.RoomLink()}}, nil
	case "joinRoom":
		var p idPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, ctrl.JoinRoom(ctx, p.ID)
	case "startRoomQuiz":
		return nil, ctrl.StartRoomQuiz(ctx)
	case "rematch":
		return nil, ctrl.Rematch(ctx)
	case "chat":
		var p textPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, ctrl.SendChat(ctx, p.Text)
	case "roomSelect":
		var p keyPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		_, err := ctrl.RoomSelectOption(p.Key)
		return nil, err
	case "roomAdvance":
		return nil, ctrl.RoomAdvance(ctx)
	}
	return nil, errUnsupported
}

var errInvalidPayload = errors.New("invalid payload")

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errInvalidPayload
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errInvalidPayload
	}
	return nil
}
