package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizcraft-service/internal/domain"
)

func recvRoom(t *testing.T, ch <-chan domain.Room) domain.Room {
	t.Helper()
	select {
	case r, ok := <-ch:
		if !ok {
			t.Fatalf("subscription closed")
		}
		return r
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for room update")
	}
	return domain.Room{}
}

func TestRoomStoreSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	room, err := store.CreateRoom(ctx, domain.Participant{ID: "host", Name: "Hana"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	ch, cancel, err := store.Subscribe(ctx, room.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := recvRoom(t, ch)
	if initial.HostID != "host" || len(initial.Participants) != 1 {
		t.Fatalf("unexpected initial snapshot %+v", initial)
	}

	if _, err := store.AddParticipant(ctx, room.ID, domain.Participant{ID: "guest", Name: "Gus"}); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	if got := recvRoom(t, ch); len(got.Participants) != 2 {
		t.Fatalf("expected two participants, got %+v", got.Participants)
	}

	if _, err := store.StartQuiz(ctx, room.ID, sampleQuiz()); err != nil {
		t.Fatalf("start quiz: %v", err)
	}
	started := recvRoom(t, ch)
	if !started.Started || started.Round != 1 || started.Quiz == nil {
		t.Fatalf("unexpected started room %+v", started)
	}
	if started.Leaderboard == nil || len(started.Leaderboard) != 0 {
		t.Fatalf("expected empty leaderboard on start, got %v", started.Leaderboard)
	}
}

func TestRoomStoreAddParticipantIsUnion(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	room, _ := store.CreateRoom(ctx, domain.Participant{ID: "host", Name: "Hana"})

	for i := 0; i < 3; i++ {
		if _, err := store.AddParticipant(ctx, room.ID, domain.Participant{ID: "guest", Name: "Gus"}); err != nil {
			t.Fatalf("add participant: %v", err)
		}
	}
	got, _ := store.GetRoom(ctx, room.ID)
	if len(got.Participants) != 2 {
		t.Fatalf("expected no duplicates, got %+v", got.Participants)
	}
}

func TestRoomStoreUnknownRoom(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	if _, err := store.GetRoom(ctx, "nope"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if _, _, err := store.Subscribe(ctx, "nope"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound on subscribe, got %v", err)
	}
	if err := store.AppendChat(ctx, "nope", domain.ChatMessage{Text: "hi"}); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound on chat, got %v", err)
	}
}

func TestRoomStoreChatIsOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	room, _ := store.CreateRoom(ctx, domain.Participant{ID: "host", Name: "Hana"})

	ch, cancel, err := store.SubscribeChat(ctx, room.ID)
	if err != nil {
		t.Fatalf("subscribe chat: %v", err)
	}
	defer cancel()
	if initial := <-ch; len(initial) != 0 {
		t.Fatalf("expected empty chat, got %v", initial)
	}

	_ = store.AppendChat(ctx, room.ID, domain.ChatMessage{ID: "host", Text: "second", Timestamp: 20})
	<-ch
	_ = store.AppendChat(ctx, room.ID, domain.ChatMessage{ID: "guest", Text: "first", Timestamp: 10})
	msgs := <-ch
	if len(msgs) != 2 || msgs[0].Text != "first" || msgs[1].Text != "second" {
		t.Fatalf("expected chat ordered by timestamp, got %+v", msgs)
	}
}

func TestRoomStoreSlowSubscriberKeepsLatest(t *testing.T) {
	ctx := context.Background()
	store := NewRoomStore()
	room, _ := store.CreateRoom(ctx, domain.Participant{ID: "host", Name: "Hana"})
	ch, cancel, _ := store.Subscribe(ctx, room.ID)
	defer cancel()

	for i := 0; i < 20; i++ {
		_ = store.WriteLeaderboard(ctx, room.ID, []domain.RoomScore{{ID: "host", Score: i}})
	}

	var last domain.Room
	for len(ch) > 0 {
		last = <-ch
	}
	if len(last.Leaderboard) != 1 || last.Leaderboard[0].Score != 19 {
		t.Fatalf("expected the latest leaderboard to survive, got %+v", last.Leaderboard)
	}
}

func TestRoomStoreCancelReleasesSubscription(t *testing.T) {
	ctx, stop := context.WithCancel(context.Background())
	store := NewRoomStore()
	room, _ := store.CreateRoom(context.Background(), domain.Participant{ID: "host", Name: "Hana"})

	ch, cancel, _ := store.Subscribe(ctx, room.ID)
	<-ch
	stop()

	deadline := time.After(time.Second)
	for {
		store.mu.Lock()
		n := store.rooms[room.ID].docSubs.len()
		store.mu.Unlock()
		if n == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("subscription not released after context cancel")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel() // idempotent
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed")
	}
}
