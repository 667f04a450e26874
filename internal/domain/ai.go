package domain

// GenerationRequest is the input of the generative quiz call.
// ImageURL and BloomLevel are optional.
type GenerationRequest struct {
	TopicOrText  string
	NumQuestions int
	ImageURL     string
	BloomLevel   string
}

type TutorMode string

const (
	TutorStandard TutorMode = "standard"
	TutorSocratic TutorMode = "socratic"
)

func (m TutorMode) Valid() bool {
	return m == TutorStandard || m == TutorSocratic
}

type TutorRole string

const (
	RoleUser   TutorRole = "user"
	RoleModel  TutorRole = "model"
	RoleSystem TutorRole = "system"
)

// TutorMessage is one turn of an AI tutor conversation.
type TutorMessage struct {
	ID             string    `json:"id"`
	Role           TutorRole `json:"role"`
	Text           string    `json:"text"`
	Timestamp      int64     `json:"timestamp"`
	SimplifiedText string    `json:"simplifiedText,omitempty"`
}

// TutorRequest carries the conversation so far; the last message is the user's new turn.
type TutorRequest struct {
	Topic   string
	Mode    TutorMode
	History []TutorMessage
}
