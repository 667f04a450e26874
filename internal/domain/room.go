package domain

import "time"

// Participant is a member of a multiplayer room, keyed by ID.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomScore is one leaderboard entry inside a room document.
type RoomScore struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// Room is the shared document every participant reads and writes.
// Leaderboard is nil until the first start; Round increases on every quiz start so
// that a rematch write is distinguishable from the quiz already being played.
type Room struct {
	ID           string        `json:"id"`
	HostID       string        `json:"hostId"`
	HostName     string        `json:"hostName"`
	Participants []Participant `json:"participants"`
	Started      bool          `json:"started"`
	Round        int           `json:"round"`
	Quiz         *Quiz         `json:"quizData,omitempty"`
	Leaderboard  []RoomScore   `json:"leaderboard"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// HasParticipant reports whether id already joined.
func (r Room) HasParticipant(id string) bool {
	for _, p := range r.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

// ChatMessage is one entry of a room's append-only chat collection.
type ChatMessage struct {
	ID        string `json:"id"` // sender id
	Name      string `json:"name"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// MaxChatLength bounds a single chat message.
const MaxChatLength = 200
