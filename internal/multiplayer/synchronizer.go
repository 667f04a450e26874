package multiplayer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"quizcraft-service/internal/domain"
	"quizcraft-service/internal/logger"
	"quizcraft-service/internal/play"
)

type Phase int

const (
	NoRoom Phase = iota
	RoomLoading
	InLobby
	InQuiz
	ShowingLeaderboard
)

func (p Phase) String() string {
	switch p {
	case NoRoom:
		return "noRoom"
	case RoomLoading:
		return "roomLoading"
	case InLobby:
		return "inLobby"
	case InQuiz:
		return "inQuiz"
	case ShowingLeaderboard:
		return "showingLeaderboard"
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// RoomStore is the shared room document plus its chat collection.
// Subscriptions deliver the current snapshot first, then one snapshot per remote write.
type RoomStore interface {
	CreateRoom(ctx context.Context, host domain.Participant) (domain.Room, error)
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)
	AddParticipant(ctx context.Context, roomID string, p domain.Participant) (domain.Room, error)
	StartQuiz(ctx context.Context, roomID string, quiz domain.Quiz) (domain.Room, error)
	WriteLeaderboard(ctx context.Context, roomID string, entries []domain.RoomScore) error
	AppendChat(ctx context.Context, roomID string, msg domain.ChatMessage) error
	Subscribe(ctx context.Context, roomID string) (<-chan domain.Room, func(), error)
	SubscribeChat(ctx context.Context, roomID string) (<-chan []domain.ChatMessage, func(), error)
}

// QuizFactory produces the quiz a host starts a round with.
type QuizFactory func(ctx context.Context) (domain.Quiz, error)

type Option func(*Synchronizer)

func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithPlayOptions passes options to every per-round play.Machine.
func WithPlayOptions(opts ...play.Option) Option {
	return func(s *Synchronizer) { s.playOpts = append(s.playOpts, opts...) }
}

// OnChange is called after any state change not caused by a direct method call:
// remote snapshots, chat updates and countdown expiry.
func OnChange(fn func()) Option {
	return func(s *Synchronizer) { s.onChange = fn }
}

// Synchronizer projects one participant's view of a room from the latest remote snapshot.
type Synchronizer struct {
	store   RoomStore
	newQuiz QuizFactory
	user    domain.User
	log     *logger.Logger

	now      func() time.Time
	playOpts []play.Option
	onChange func()

	mu        sync.Mutex
	phase     Phase
	roomID    string
	room      domain.Room
	chat      []domain.ChatMessage
	round     int
	player    *play.Machine
	submitted bool
	score     int
	starting  bool
	err       string
	cancels   []func()
}

func New(store RoomStore, newQuiz QuizFactory, user domain.User, log *logger.Logger, opts ...Option) *Synchronizer {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Synchronizer{
		store:   store,
		newQuiz: newQuiz,
		user:    user,
		log:     log.With("user_id", user.ID),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synchronizer) self() domain.Participant {
	return domain.Participant{ID: s.user.ID, Name: s.user.Label()}
}

// CreateRoom allocates a room with this user as host and sole participant.
func (s *Synchronizer) CreateRoom(ctx context.Context) (string, error) {
	if !s.user.LoggedIn() {
		return "", domain.ErrNotLoggedIn
	}
	s.reset(RoomLoading, "")

	room, err := s.store.CreateRoom(ctx, s.self())
	if err != nil {
		s.fail(NoRoom, "Failed to create room.")
		return "", fmt.Errorf("create room: %w", err)
	}
	s.mu.Lock()
	s.roomID = room.ID
	s.mu.Unlock()

	s.OnRemoteUpdate(room)
	if err := s.watch(ctx, room.ID); err != nil {
		s.leave("Failed to connect to the room.")
		return "", err
	}
	return room.ID, nil
}

// JoinRoom adds this user to an existing room. Rejoining does not duplicate the participant.
func (s *Synchronizer) JoinRoom(ctx context.Context, roomID string) error {
	if !s.user.LoggedIn() {
		return domain.ErrNotLoggedIn
	}
	roomID = strings.TrimSpace(roomID)
	s.reset(RoomLoading, roomID)

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			s.fail(NoRoom, "Room not found.")
			return err
		}
		s.fail(NoRoom, "Failed to join room.")
		return fmt.Errorf("get room %s: %w", roomID, err)
	}
	if !room.HasParticipant(s.user.ID) {
		room, err = s.store.AddParticipant(ctx, roomID, s.self())
		if err != nil {
			s.fail(NoRoom, "Failed to join room.")
			return fmt.Errorf("join room %s: %w", roomID, err)
		}
	}

	s.OnRemoteUpdate(room)
	if err := s.watch(ctx, roomID); err != nil {
		s.leave("Failed to connect to the room.")
		return err
	}
	return nil
}

func (s *Synchronizer) watch(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithCancel(ctx)
	rooms, stopRooms, err := s.store.Subscribe(ctx, roomID)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe room %s: %w", roomID, err)
	}
	chat, stopChat, err := s.store.SubscribeChat(ctx, roomID)
	if err != nil {
		stopRooms()
		cancel()
		return fmt.Errorf("subscribe chat %s: %w", roomID, err)
	}

	s.mu.Lock()
	s.cancels = append(s.cancels, stopRooms, stopChat, cancel)
	s.mu.Unlock()

	go func() {
		for room := range rooms {
			s.OnRemoteUpdate(room)
			s.changed()
		}
	}()
	go func() {
		for msgs := range chat {
			s.OnChatUpdate(msgs)
			s.changed()
		}
	}()
	return nil
}

// OnRemoteUpdate folds a room snapshot into local state. A higher round starts a
// fresh local quiz; a non-empty leaderboard shows the leaderboard.
func (s *Synchronizer) OnRemoteUpdate(room domain.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == NoRoom || room.ID != s.roomID || room.Round < s.round {
		return
	}
	s.room = room

	if room.Started && room.Quiz != nil && room.Round > s.round {
		s.round = room.Round
		s.startPlayerLocked(*room.Quiz)
	}
	switch {
	case len(room.Leaderboard) > 0:
		s.phase = ShowingLeaderboard
	case s.phase == RoomLoading:
		s.phase = InLobby
	}
}

func (s *Synchronizer) startPlayerLocked(quiz domain.Quiz) {
	if s.player != nil {
		s.player.Close()
	}
	s.player = nil
	s.submitted = false
	s.score = 0
	s.phase = InQuiz

	opts := append([]play.Option{play.OnExpire(func(int) { s.changed() })}, s.playOpts...)
	player, err := play.New(quiz.WithoutSimplifications(), opts...)
	if err != nil {
		s.err = "The room quiz has no questions."
		s.log.Warn("room quiz rejected", "room_id", s.roomID, "error", err)
		return
	}
	s.player = player
}

// OnChatUpdate replaces the chat with msgs ordered by send time.
func (s *Synchronizer) OnChatUpdate(msgs []domain.ChatMessage) {
	sorted := append([]domain.ChatMessage(nil), msgs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	s.mu.Lock()
	if s.phase != NoRoom {
		s.chat = sorted
	}
	s.mu.Unlock()
}

// StartQuiz is host-only: generates a quiz and writes it with an empty leaderboard.
func (s *Synchronizer) StartQuiz(ctx context.Context) error {
	s.mu.Lock()
	roomID, phase := s.roomID, s.phase
	host := s.room.HostID == s.user.ID
	s.mu.Unlock()

	if phase == NoRoom || phase == RoomLoading {
		return domain.ErrNotInRoom
	}
	if !host {
		return domain.ErrNotHost
	}
	return s.startRound(ctx, roomID)
}

// Rematch is host-only: clears local results and starts a new round.
func (s *Synchronizer) Rematch(ctx context.Context) error {
	s.mu.Lock()
	roomID, phase := s.roomID, s.phase
	host := s.room.HostID == s.user.ID
	if phase == NoRoom || phase == RoomLoading {
		s.mu.Unlock()
		return domain.ErrNotInRoom
	}
	if !host {
		s.mu.Unlock()
		return domain.ErrNotHost
	}
	if s.player != nil {
		s.player.Close()
	}
	s.player = nil
	s.submitted = false
	s.score = 0
	s.room.Leaderboard = nil
	s.phase = InLobby
	s.mu.Unlock()

	return s.startRound(ctx, roomID)
}

func (s *Synchronizer) startRound(ctx context.Context, roomID string) error {
	s.mu.Lock()
	s.starting = true
	s.err = ""
	s.mu.Unlock()

	quiz, err := s.newQuiz(ctx)
	if err == nil {
		err = quiz.Validate()
	}
	if err != nil {
		s.mu.Lock()
		s.starting = false
		s.err = "Failed to generate the room quiz. Please try again."
		s.mu.Unlock()
		s.log.Warn("room quiz generation failed", "room_id", roomID, "error", err)
		return fmt.Errorf("generate room quiz: %w", err)
	}

	room, err := s.store.StartQuiz(ctx, roomID, quiz)
	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.err = "Failed to start the quiz."
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("start room quiz: %w", err)
	}
	s.OnRemoteUpdate(room)
	return nil
}

// SelectOption answers the current question of this round.
func (s *Synchronizer) SelectOption(key domain.OptionKey) bool {
	player := s.activePlayer()
	return player != nil && player.SelectOption(key)
}

// Tick drives the countdown of a timed room quiz.
func (s *Synchronizer) Tick() {
	if player := s.activePlayer(); player != nil {
		player.Tick()
	}
}

// Advance moves to the next question; after the last one it writes this participant's
// score over the last observed leaderboard.
func (s *Synchronizer) Advance(ctx context.Context) (play.Step, error) {
	player := s.activePlayer()
	if player == nil {
		return play.StepRejected, domain.ErrNoActiveQuiz
	}
	step := player.Advance()
	if step != play.StepSubmitted {
		return step, nil
	}
	return step, s.submit(ctx, player)
}

func (s *Synchronizer) submit(ctx context.Context, player *play.Machine) error {
	score := play.Score(player.Quiz(), player.Answers())
	entry := domain.RoomScore{ID: s.user.ID, Name: s.user.Label(), Score: score, Timestamp: s.now().UnixMilli()}

	s.mu.Lock()
	roomID := s.roomID
	entries := replaceEntry(s.room.Leaderboard, entry)
	s.submitted = true
	s.score = score
	s.room.Leaderboard = entries
	s.phase = ShowingLeaderboard
	s.mu.Unlock()

	if err := s.store.WriteLeaderboard(ctx, roomID, entries); err != nil {
		s.log.Warn("leaderboard write failed", "room_id", roomID, "error", err)
		return fmt.Errorf("write leaderboard: %w", err)
	}
	return nil
}

// replaceEntry drops any entry with the same id, then appends e.
func replaceEntry(entries []domain.RoomScore, e domain.RoomScore) []domain.RoomScore {
	out := make([]domain.RoomScore, 0, len(entries)+1)
	for _, existing := range entries {
		if existing.ID != e.ID {
			out = append(out, existing)
		}
	}
	return append(out, e)
}

// RankLeaderboard orders by score descending; ties keep their stored order.
func RankLeaderboard(entries []domain.RoomScore) []domain.RoomScore {
	out := append([]domain.RoomScore(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// SendChat appends a message to the room chat.
func (s *Synchronizer) SendChat(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > domain.MaxChatLength {
		return domain.ErrInvalidMessage
	}
	s.mu.Lock()
	roomID, phase := s.roomID, s.phase
	s.mu.Unlock()
	if phase == NoRoom || roomID == "" {
		return domain.ErrNotInRoom
	}
	msg := domain.ChatMessage{ID: s.user.ID, Name: s.user.Label(), Text: text, Timestamp: s.now().UnixMilli()}
	if err := s.store.AppendChat(ctx, roomID, msg); err != nil {
		return fmt.Errorf("send chat: %w", err)
	}
	return nil
}

func (s *Synchronizer) activePlayer() *play.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted || (s.phase != InQuiz && s.phase != ShowingLeaderboard) {
		return nil
	}
	return s.player
}

// Close releases the room subscriptions and returns to NoRoom.
func (s *Synchronizer) Close() {
	s.reset(NoRoom, "")
}

func (s *Synchronizer) reset(phase Phase, roomID string) {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	if s.player != nil {
		s.player.Close()
	}
	s.phase = phase
	s.roomID = roomID
	s.room = domain.Room{}
	s.chat = nil
	s.round = 0
	s.player = nil
	s.submitted = false
	s.score = 0
	s.starting = false
	s.err = ""
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// leave drops the room entirely and shows msg from NoRoom.
func (s *Synchronizer) leave(msg string) {
	s.reset(NoRoom, "")
	s.fail(NoRoom, msg)
}

func (s *Synchronizer) fail(phase Phase, msg string) {
	s.mu.Lock()
	s.phase = phase
	s.err = msg
	s.mu.Unlock()
}

func (s *Synchronizer) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// View is the render-ready multiplayer state.
type View struct {
	Phase        Phase                `json:"phase"`
	RoomID       string               `json:"roomId,omitempty"`
	HostID       string               `json:"hostId,omitempty"`
	IsHost       bool                 `json:"isHost"`
	Participants []domain.Participant `json:"participants,omitempty"`
	Chat         []domain.ChatMessage `json:"chat,omitempty"`
	Play         *play.View           `json:"play,omitempty"`
	Submitted    bool                 `json:"submitted"`
	Score        int                  `json:"score"`
	Leaderboard  []domain.RoomScore   `json:"leaderboard,omitempty"`
	Starting     bool                 `json:"starting,omitempty"`
	Error        string               `json:"error,omitempty"`
}

func (s *Synchronizer) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		Phase:        s.phase,
		RoomID:       s.roomID,
		HostID:       s.room.HostID,
		IsHost:       s.room.HostID != "" && s.room.HostID == s.user.ID,
		Participants: append([]domain.Participant(nil), s.room.Participants...),
		Chat:         append([]domain.ChatMessage(nil), s.chat...),
		Submitted:    s.submitted,
		Score:        s.score,
		Leaderboard:  RankLeaderboard(s.room.Leaderboard),
		Starting:     s.starting,
		Error:        s.err,
	}
	if s.player != nil && !s.submitted {
		pv := s.player.Snapshot()
		v.Play = &pv
	}
	return v
}

// Phase returns the current phase.
func (s *Synchronizer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// RoomID returns the joined room, if any.
func (s *Synchronizer) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}
