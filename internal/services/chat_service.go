package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/isdelr/neuroscan-be/internal/llm"
	"github.com/isdelr/neuroscan-be/internal/models"
	"github.com/rs/zerolog/log"
)

// UploadMarker tags a prompt as a report request rather than a follow-up question.
const UploadMarker = "[upload]"

// NoFindingsMessage is returned instead of a generated report when nothing was detected.
const NoFindingsMessage = "No obvious abnormalities were found in your scan. Please keep up a healthy lifestyle."

const systemInstruction = `You are a neurology specialist.
If the user message contains the [upload] marker, write a diagnostic report using this template:
Diagnostic report:
Name: <name>
Sex: <sex>
Age: <age>
Visit date: <visit date>
Tumor types: <tumor types>
Then give a medical analysis of the findings, treatment suggestions and follow-up management advice.

If the message does not contain the [upload] marker, answer the question as a neurology specialist.
Do not write a new report; base your answer on the reports generated earlier in this conversation.`

// tumorNames maps detector class labels to display names.
var tumorNames = map[string]string{
	"meningioma": "Meningioma",
	"glioma":     "Glioma",
	"pituitoma":  "Pituitary tumor",
}

// TumorName returns the display name for a detector label, or the label itself when unmapped.
func TumorName(label string) string {
	if name, ok := tumorNames[strings.ToLower(label)]; ok {
		return name
	}
	return label
}

// BuildReportPrompt assembles the report request for a profile and its detected tumor types.
func BuildReportPrompt(p models.Profile, tumorTypes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	fmt.Fprintf(&b, "Sex: %s\n", p.Sex)
	fmt.Fprintf(&b, "Age: %d\n", p.Age)
	fmt.Fprintf(&b, "Visit date: %s\n", p.VisitDate)
	fmt.Fprintf(&b, "Tumor types: %s\n", strings.Join(tumorTypes, ", "))
	b.WriteString(UploadMarker)
	return b.String()
}

// ChatServiceProvider defines the interface for the conversational report composer.
type ChatServiceProvider interface {
	Ask(ctx context.Context, userKey, prompt string) (string, []models.Message, error)
}

// ChatService forwards per-user conversations to the chat-completion provider.
type ChatService struct {
	llm     llm.Completer
	history *HistoryStore
}

// NewChatService creates a new ChatService.
func NewChatService(completer llm.Completer, history *HistoryStore) *ChatService {
	return &ChatService{llm: completer, history: history}
}

// SystemMessage is the instruction every conversation starts with.
func SystemMessage() models.Message {
	return models.Message{Role: models.RoleSystem, Content: systemInstruction}
}

// Ask appends prompt to the user's history, sends the whole history to the
// provider and records the reply. It returns the reply and the updated history.
func (s *ChatService) Ask(ctx context.Context, userKey, prompt string) (string, []models.Message, error) {
	key := UserKey(userKey)
	var reply string
	messages, err := s.history.Turn(key, prompt, func(history []models.Message) (string, error) {
		var err error
		reply, err = s.llm.Complete(ctx, history)
		return reply, err
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", key).Msg("Failed to get assistant reply")
		return "", nil, err
	}
	return reply, messages, nil
}
