package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quizcraft-service/internal/domain"
)

const maxTxRetries = 8

// RoomStore keeps multiplayer rooms in Redis so that participants connected to
// different instances share one room document. Layout:
//
//	SET     room:{id}         <room json>
//	RPUSH   room:{id}:chat    <message json>...
//	PUBLISH room:{id}:updates <round>   after every room write
//	PUBLISH room:{id}:chat:updates      after every chat append
//
// Subscribers re-read the key on every notification, so a dropped or coalesced
// message never leaves them on a stale document.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRoomStore keeps rooms for ttl after their last write; zero keeps them forever.
func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{client: client, ttl: ttl, now: time.Now}
}

func (s *RoomStore) CreateRoom(ctx context.Context, host domain.Participant) (domain.Room, error) {
	room := domain.Room{
		ID:           uuid.NewString(),
		HostID:       host.ID,
		HostName:     host.Name,
		Participants: []domain.Participant{host},
		CreatedAt:    s.now().UTC(),
	}
	data, err := json.Marshal(room)
	if err != nil {
		return domain.Room{}, fmt.Errorf("encode room: %w", err)
	}
	if err := s.client.Set(ctx, roomKey(room.ID), data, s.ttl).Err(); err != nil {
		return domain.Room{}, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	return readRoom(ctx, s.client, roomID)
}

func (s *RoomStore) AddParticipant(ctx context.Context, roomID string, p domain.Participant) (domain.Room, error) {
	return s.update(ctx, roomID, func(room *domain.Room) bool {
		if room.HasParticipant(p.ID) {
			return false
		}
		room.Participants = append(room.Participants, p)
		return true
	})
}

func (s *RoomStore) StartQuiz(ctx context.Context, roomID string, quiz domain.Quiz) (domain.Room, error) {
	return s.update(ctx, roomID, func(room *domain.Room) bool {
		q := quiz.Clone()
		room.Quiz = &q
		room.Leaderboard = []domain.RoomScore{}
		room.Started = true
		room.Round++
		return true
	})
}

// WriteLeaderboard replaces the leaderboard field as a whole; the last writer wins.
func (s *RoomStore) WriteLeaderboard(ctx context.Context, roomID string, entries []domain.RoomScore) error {
	_, err := s.update(ctx, roomID, func(room *domain.Room) bool {
		room.Leaderboard = append([]domain.RoomScore{}, entries...)
		return true
	})
	return err
}

func (s *RoomStore) AppendChat(ctx context.Context, roomID string, msg domain.ChatMessage) error {
	n, err := s.client.Exists(ctx, roomKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("append chat: %w", err)
	}
	if n == 0 {
		return domain.ErrRoomNotFound
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, chatKey(roomID), data)
	if s.ttl > 0 {
		pipe.Expire(ctx, chatKey(roomID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append chat: %w", err)
	}
	return s.client.Publish(ctx, chatUpdatesKey(roomID), msg.Timestamp).Err()
}

// Subscribe streams the room document, starting with its current state.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *RoomStore) Subscribe(ctx context.Context, roomID string) (<-chan domain.Room, func(), error) {
	return stream(ctx, s.client, updatesKey(roomID), func(ctx context.Context) (domain.Room, error) {
		return readRoom(ctx, s.client, roomID)
	})
}

// SubscribeChat streams the whole chat list, ordered by timestamp.
func (s *RoomStore) SubscribeChat(ctx context.Context, roomID string) (<-chan []domain.ChatMessage, func(), error) {
	if _, err := readRoom(ctx, s.client, roomID); err != nil {
		return nil, nil, err
	}
	return stream(ctx, s.client, chatUpdatesKey(roomID), func(ctx context.Context) ([]domain.ChatMessage, error) {
		return s.readChat(ctx, roomID)
	})
}

// update is an optimistic read-modify-write on the room key. mutate reports
// whether anything changed; unchanged rooms are neither written nor announced.
func (s *RoomStore) update(ctx context.Context, roomID string, mutate func(*domain.Room) bool) (domain.Room, error) {
	key := roomKey(roomID)
	var (
		out     domain.Room
		changed bool
	)
	txf := func(tx *redis.Tx) error {
		room, err := readRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		changed = mutate(&room)
		out = room
		if !changed {
			return nil
		}
		data, err := json.Marshal(room)
		if err != nil {
			return fmt.Errorf("encode room: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, domain.ErrRoomNotFound) {
				return domain.Room{}, err
			}
			return domain.Room{}, fmt.Errorf("update room %s: %w", roomID, err)
		}
		if changed {
			if err := s.client.Publish(ctx, updatesKey(roomID), out.Round).Err(); err != nil {
				return out, fmt.Errorf("announce room %s: %w", roomID, err)
			}
		}
		return out, nil
	}
	return domain.Room{}, fmt.Errorf("update room %s: %w", roomID, redis.TxFailedErr)
}

func readRoom(ctx context.Context, c redis.Cmdable, roomID string) (domain.Room, error) {
	data, err := c.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("read room %s: %w", roomID, err)
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return domain.Room{}, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return room, nil
}

func (s *RoomStore) readChat(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	raw, err := s.client.LRange(ctx, chatKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read chat %s: %w", roomID, err)
	}
	msgs := make([]domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })
	return msgs, nil
}

// stream subscribes to channel and emits load's result first and then after every
// notification. A slow reader loses its oldest pending value, never the newest.
func stream[T any](ctx context.Context, client *redis.Client, channel string, load func(context.Context) (T, error)) (<-chan T, func(), error) {
	sub := client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	// read after subscribing so that no write falls between the two
	initial, err := load(ctx)
	if err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan T, 8)
	out <- initial
	streamCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-streamCtx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				v, err := load(streamCtx)
				if err != nil {
					continue
				}
				select {
				case out <- v:
				default:
					select {
					case <-out:
					default:
					}
					out <- v
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			_ = sub.Close()
			<-done
		})
	}
	return out, cancel, nil
}

func roomKey(roomID string) string        { return "room:" + roomID }
func chatKey(roomID string) string        { return "room:" + roomID + ":chat" }
func updatesKey(roomID string) string     { return "room:" + roomID + ":updates" }
func chatUpdatesKey(roomID string) string { return "room:" + roomID + ":chat:updates" }
