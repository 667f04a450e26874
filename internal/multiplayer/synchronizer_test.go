package multiplayer_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"quizcraft-service/internal/domain"
	"quizcraft-service/internal/multiplayer"
	"quizcraft-service/internal/play"
)

// fakeStore keeps one document per room. Subscriptions never push on their own;
// tests hand snapshots to OnRemoteUpdate to control interleavings.
type fakeStore struct {
	mu         sync.Mutex
	rooms      map[string]domain.Room
	chat       map[string][]domain.ChatMessage
	adds       int
	starts     int
	cancelled  int
	nextRoomID string
	chatErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rooms: map[string]domain.Room{}, chat: map[string][]domain.ChatMessage{}, nextRoomID: "room-1"}
}

func (f *fakeStore) CreateRoom(_ context.Context, host domain.Participant) (domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := domain.Room{ID: f.nextRoomID, HostID: host.ID, HostName: host.Name, Participants: []domain.Participant{host}}
	f.rooms[room.ID] = room
	return room, nil
}

func (f *fakeStore) GetRoom(_ context.Context, id string) (domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (f *fakeStore) AddParticipant(_ context.Context, id string, p domain.Participant) (domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds++
	room := f.rooms[id]
	if !room.HasParticipant(p.ID) {
		room.Participants = append(room.Participants, p)
	}
	f.rooms[id] = room
	return room, nil
}

func (f *fakeStore) StartQuiz(_ context.Context, id string, quiz domain.Quiz) (domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	room := f.rooms[id]
	room.Quiz = &quiz
	room.Started = true
	room.Leaderboard = []domain.RoomScore{}
	room.Round++
	f.rooms[id] = room
	return room, nil
}

func (f *fakeStore) WriteLeaderboard(_ context.Context, id string, entries []domain.RoomScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := f.rooms[id]
	room.Leaderboard = entries
	f.rooms[id] = room
	return nil
}

func (f *fakeStore) AppendChat(_ context.Context, id string, msg domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chat[id] = append(f.chat[id], msg)
	return nil
}

func (f *fakeStore) Subscribe(context.Context, string) (<-chan domain.Room, func(), error) {
	ch := make(chan domain.Room)
	return ch, f.closer(func() { close(ch) }), nil
}

func (f *fakeStore) SubscribeChat(context.Context, string) (<-chan []domain.ChatMessage, func(), error) {
	if f.chatErr != nil {
		return nil, nil, f.chatErr
	}
	ch := make(chan []domain.ChatMessage)
	return ch, f.closer(func() { close(ch) }), nil
}

func (f *fakeStore) closer(fn func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.cancelled++
			f.mu.Unlock()
			fn()
		})
	}
}

func (f *fakeStore) room(id string) domain.Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms[id]
}

func oneQuestionQuiz(context.Context) (domain.Quiz, error) {
	return domain.Quiz{Topic: "General Knowledge", Questions: []domain.Question{{
		Question:      "2+2?",
		Options:       map[domain.OptionKey]string{"A": "3", "B": "4", "C": "5", "D": "6"},
		CorrectAnswer: domain.OptionB,
		Explanation:   "arithmetic",
		Difficulty:    domain.DifficultyEasy,
	}}}, nil
}

var (
	alice = domain.User{ID: "u1", DisplayName: "Alice"}
	bob   = domain.User{ID: "u2", Email: "bob@example.com"}
)

func TestRankLeaderboardKeepsInsertionOrderOnTies(t *testing.T) {
	entries := []domain.RoomScore{
		{ID: "c", Score: 3}, {ID: "a", Score: 5}, {ID: "b", Score: 5}, {ID: "d", Score: 1},
	}
	ranked := multiplayer.RankLeaderboard(entries)
	var got []string
	for _, e := range ranked {
		got = append(got, e.ID)
	}
	if strings.Join(got, ",") != "a,b,c,d" {
		t.Fatalf("expected a,b,c,d got %v", got)
	}
	if entries[0].ID != "c" {
		t.Fatalf("ranking must not reorder the input")
	}
}

func TestHostStartsAndGuestFollows(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	host := multiplayer.New(store, oneQuestionQuiz, alice, nil)
	guest := multiplayer.New(store, oneQuestionQuiz, bob, nil)
	defer host.Close()
	defer guest.Close()

	roomID, err := host.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if host.Phase() != multiplayer.InLobby {
		t.Fatalf("host should be in lobby, got %v", host.Phase())
	}
	if err := guest.JoinRoom(ctx, roomID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if guest.Phase() != multiplayer.InLobby {
		t.Fatalf("guest should be in lobby, got %v", guest.Phase())
	}

	if err := guest.StartQuiz(ctx); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	if store.starts != 0 || guest.Phase() != multiplayer.InLobby {
		t.Fatalf("non-host start must not change anything")
	}

	if err := host.StartQuiz(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if host.Phase() != multiplayer.InQuiz {
		t.Fatalf("host should be in quiz, got %v", host.Phase())
	}
	guest.OnRemoteUpdate(store.room(roomID))
	if guest.Phase() != multiplayer.InQuiz {
		t.Fatalf("guest should follow into quiz, got %v", guest.Phase())
	}
	if v := guest.View(); v.Play == nil || v.Play.Question.Text != "2+2?" {
		t.Fatalf("guest should see the room quiz, got %+v", v.Play)
	}
}

func TestSubscribeFailureLeavesRoom(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.chatErr = errors.New("pubsub down")

	host := multiplayer.New(store, oneQuestionQuiz, alice, nil)
	roomID, err := host.CreateRoom(ctx)
	if err == nil || roomID != "" {
		t.Fatalf("expected create to fail without a room id, got %q, %v", roomID, err)
	}
	if v := host.View(); v.Phase != multiplayer.NoRoom || v.RoomID != "" || v.Error == "" {
		t.Fatalf("expected NoRoom with an error, got %+v", v)
	}
	if store.cancelled != 1 {
		t.Fatalf("expected the room subscription released, got %d cancels", store.cancelled)
	}

	guest := multiplayer.New(store, oneQuestionQuiz, bob, nil)
	if err := guest.JoinRoom(ctx, "room-1"); err == nil {
		t.Fatalf("expected join to fail")
	}
	if guest.Phase() != multiplayer.NoRoom || guest.RoomID() != "" {
		t.Fatalf("expected guest back in NoRoom, got %v %q", guest.Phase(), guest.RoomID())
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	s := multiplayer.New(newFakeStore(), oneQuestionQuiz, bob, nil)
	err := s.JoinRoom(context.Background(), "missing")
	if !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if v := s.View(); v.Phase != multiplayer.NoRoom || v.Error != "Room not found." {
		t.Fatalf("unexpected view %+v", v)
	}
}

func TestRejoinDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	host := multiplayer.New(store, oneQuestionQuiz, alice, nil)
	roomID, _ := host.CreateRoom(ctx)

	again := multiplayer.New(store, oneQuestionQuiz, alice, nil)
	if err := again.JoinRoom(ctx, roomID); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if store.adds != 0 {
		t.Fatalf("rejoin should not write a participant")
	}
	if n := len(store.room(roomID).Participants); n != 1 {
		t.Fatalf("expected 1 participant, got %d", n)
	}
}

// Both participants submit from the same observed empty leaderboard, so the
// second write drops the first entry. This pins the current behaviour.
func TestConcurrentSubmitLastWriterWins(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	host := multiplayer.New(store, oneQuestionQuiz, alice, nil)
	guest := multiplayer.New(store, oneQuestionQuiz, bob, nil)
	roomID, _ := host.CreateRoom(ctx)
	_ = guest.JoinRoom(ctx, roomID)
	if err := host.StartQuiz(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	guest.OnRemoteUpdate(store.room(roomID))

	host.SelectOption(domain.OptionB)
	guest.SelectOption(domain.OptionA)
	if _, err := host.Advance(ctx); err != nil {
		t.Fatalf("host submit: %v", err)
	}
	if _, err := guest.Advance(ctx); err != nil {
		t.Fatalf("guest submit: %v", err)
	}

	final := store.room(roomID).Leaderboard
	if len(final) != 1 || final[0].ID != bob.ID {
		t.Fatalf("expected only the last writer's entry, got %+v", final)
	}
	if final[0].Name != "bob@example.com" || final[0].Score != 0 {
		t.Fatalf("unexpected entry %+v", final[0])
	}

	host.OnRemoteUpdate(store.room(roomID))
	if host.Phase() != multiplayer.ShowingLeaderboard {
		t.Fatalf("host should show leaderboard, got %v", host.Phase())
	}
}

func TestSubmitReplacesOwnEntry(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	host := multiplayer.New(store, oneQuestionQuiz, alice, nil)
	roomID, _ := host.CreateRoom(ctx)
	_ = host.StartQuiz(ctx)

	room := store.room(roomID)
	room.Leaderboard = []domain.RoomScore{{ID: "u9", Name: "Zed", Score: 1}, {ID: alice.ID, Name: "Alice", Score: 0}}
	_ = store.WriteLeaderboard(ctx, roomID, room.Leaderboard)

	host.SelectOption(domain.OptionB)
	host.OnRemoteUpdate(store.room(roomID))
	if step, err := host.Advance(ctx); err != nil || step != play.StepSubmitted {
		t.Fatalf("expected submit, got %v %v", step, err)
	}

	final := store.room(roomID).Leaderboard
	if len(final) != 2 || final[0].ID != "u9" || final[1].ID != alice.ID || final[1].Score != 1 {
		t.Fatalf("unexpected leaderboard %+v", final)
	}
	if v := host.View(); !v.Submitted || v.Score != 1 || v.Play != nil {
		t.Fatalf("unexpected view after submit %+v", v)
	}
}

func TestRematchStartsNewRound(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	host := multiplayer.New(store, oneQuestionQuiz, alice, nil)
	guest := multiplayer.New(store, oneQuestionQuiz, bob, nil)
	roomID, _ := host.CreateRoom(ctx)
	_ = guest.JoinRoom(ctx, roomID)
	_ = host.StartQuiz(ctx)
	guest.OnRemoteUpdate(store.room(roomID))

	host.SelectOption(domain.OptionB)
	_, _ = host.Advance(ctx)
	guest.OnRemoteUpdate(store.room(roomID))
	if guest.Phase() != multiplayer.ShowingLeaderboard {
		t.Fatalf("guest should see the leaderboard, got %v", guest.Phase())
	}

	if err := guest.Rematch(ctx); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	if guest.Phase() != multiplayer.ShowingLeaderboard {
		t.Fatalf("non-host rematch must not clear state")
	}

	if err := host.Rematch(ctx); err != nil {
		t.Fatalf("rematch: %v", err)
	}
	if v := host.View(); v.Phase != multiplayer.InQuiz || v.Submitted || len(v.Leaderboard) != 0 {
		t.Fatalf("host should be in a fresh round, got %+v", v)
	}
	guest.OnRemoteUpdate(store.room(roomID))
	if v := guest.View(); v.Phase != multiplayer.InQuiz || v.Play == nil {
		t.Fatalf("guest should be back in quiz, got %+v", v)
	}
}

func TestChatOrderingAndValidation(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	host := multiplayer.New(store, oneQuestionQuiz, alice, nil)
	_, _ = host.CreateRoom(ctx)

	if err := host.SendChat(ctx, "   "); !errors.Is(err, domain.ErrInvalidMessage) {
		t.Fatalf("blank message accepted: %v", err)
	}
	if err := host.SendChat(ctx, strings.Repeat("x", domain.MaxChatLength+1)); !errors.Is(err, domain.ErrInvalidMessage) {
		t.Fatalf("oversized message accepted: %v", err)
	}
	if err := host.SendChat(ctx, " hi "); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := store.chat["room-1"]; len(got) != 1 || got[0].Text != "hi" || got[0].Name != "Alice" {
		t.Fatalf("unexpected chat %+v", got)
	}

	host.OnChatUpdate([]domain.ChatMessage{{Text: "late", Timestamp: 30}, {Text: "first", Timestamp: 10}, {Text: "mid", Timestamp: 20}})
	chat := host.View().Chat
	if chat[0].Text != "first" || chat[1].Text != "mid" || chat[2].Text != "late" {
		t.Fatalf("chat not ordered by timestamp: %+v", chat)
	}
}

func TestCloseReleasesSubscriptions(t *testing.T) {
	store := newFakeStore()
	host := multiplayer.New(store, oneQuestionQuiz, alice, nil)
	_, _ = host.CreateRoom(context.Background())
	host.Close()
	if store.cancelled != 2 {
		t.Fatalf("expected both subscriptions released, got %d", store.cancelled)
	}
	if host.Phase() != multiplayer.NoRoom {
		t.Fatalf("expected NoRoom after close")
	}
}

func TestAnonymousCannotCreateRoom(t *testing.T) {
	s := multiplayer.New(newFakeStore(), oneQuestionQuiz, domain.User{}, nil)
	if _, err := s.CreateRoom(context.Background()); !errors.Is(err, domain.ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
}
