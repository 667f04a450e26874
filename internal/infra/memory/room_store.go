package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizcraft-service/internal/domain"
)

// RoomStore is an in-memory implementation of multiplayer.RoomStore. Every write
// fans the new room document (or chat list) out to that room's subscribers.
type RoomStore struct {
	now func() time.Time

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	doc      domain.Room
	chat     []domain.ChatMessage
	docSubs  fanout[domain.Room]
	chatSubs fanout[[]domain.ChatMessage]
}

func NewRoomStore() *RoomStore {
	return NewRoomStoreWithClock(time.Now)
}

func NewRoomStoreWithClock(now func() time.Time) *RoomStore {
	return &RoomStore{now: now, rooms: make(map[string]*room)}
}

func (s *RoomStore) CreateRoom(_ context.Context, host domain.Participant) (domain.Room, error) {
	r := &room{doc: domain.Room{
		ID:           uuid.NewString(),
		HostID:       host.ID,
		HostName:     host.Name,
		Participants: []domain.Participant{host},
		CreatedAt:    s.now(),
	}}
	s.mu.Lock()
	s.rooms[r.doc.ID] = r
	s.mu.Unlock()
	return cloneRoom(r.doc), nil
}

func (s *RoomStore) GetRoom(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return cloneRoom(r.doc), nil
}

// AddParticipant is a set-union on participant id.
func (s *RoomStore) AddParticipant(_ context.Context, roomID string, p domain.Participant) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if !r.doc.HasParticipant(p.ID) {
		r.doc.Participants = append(r.doc.Participants, p)
		r.docSubs.broadcast(cloneRoom(r.doc))
	}
	return cloneRoom(r.doc), nil
}

// StartQuiz publishes a round: new quiz, empty leaderboard, next round number.
func (s *RoomStore) StartQuiz(_ context.Context, roomID string, quiz domain.Quiz) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	q := quiz.Clone()
	r.doc.Quiz = &q
	r.doc.Leaderboard = []domain.RoomScore{}
	r.doc.Started = true
	r.doc.Round++
	r.docSubs.broadcast(cloneRoom(r.doc))
	return cloneRoom(r.doc), nil
}

// WriteLeaderboard replaces the whole leaderboard field; the last writer wins.
func (s *RoomStore) WriteLeaderboard(_ context.Context, roomID string, entries []domain.RoomScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	r.doc.Leaderboard = append([]domain.RoomScore{}, entries...)
	r.docSubs.broadcast(cloneRoom(r.doc))
	return nil
}

func (s *RoomStore) AppendChat(_ context.Context, roomID string, msg domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	r.chat = append(r.chat, msg)
	r.chatSubs.broadcast(r.chatSnapshot())
	return nil
}

// Subscribe streams the room document, starting with its current state.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *RoomStore) Subscribe(ctx context.Context, roomID string) (<-chan domain.Room, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	ch, cancel := r.docSubs.subscribe(&s.mu, cloneRoom(r.doc))
	return ch, cancelOnDone(ctx, cancel), nil
}

// SubscribeChat streams the full chat list, ordered by timestamp, on every append.
func (s *RoomStore) SubscribeChat(ctx context.Context, roomID string) (<-chan []domain.ChatMessage, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	ch, cancel := r.chatSubs.subscribe(&s.mu, r.chatSnapshot())
	return ch, cancelOnDone(ctx, cancel), nil
}

func (r *room) chatSnapshot() []domain.ChatMessage {
	out := append([]domain.ChatMessage{}, r.chat...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func cloneRoom(r domain.Room) domain.Room {
	out := r
	out.Participants = append([]domain.Participant{}, r.Participants...)
	if r.Quiz != nil {
		q := r.Quiz.Clone()
		out.Quiz = &q
	}
	if r.Leaderboard != nil {
		out.Leaderboard = append([]domain.RoomScore{}, r.Leaderboard...)
	}
	return out
}

// cancelOnDone also releases the subscription when ctx ends.
func cancelOnDone(ctx context.Context, cancel func()) func() {
	var once sync.Once
	done := make(chan struct{})
	release := func() {
		once.Do(func() {
			close(done)
			cancel()
		})
	}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				release()
			case <-done:
			}
		}()
	}
	return release
}
