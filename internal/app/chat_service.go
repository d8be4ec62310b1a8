package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"pcbrecon/internal/ai"
	"pcbrecon/internal/model"
	"pcbrecon/internal/repository"
)

var (
	ErrMessageEmpty   = errors.New("message content is empty")
	ErrMessageEnqueue = errors.New("message enqueue failed")
)

type HistoryCache interface {
	GetHistory(ctx context.Context, projectID uint, limit int) ([]model.ChatMessage, bool, error)
	SetHistory(ctx context.Context, projectID uint, messages []model.ChatMessage) error
	DeleteHistory(ctx context.Context, projectID uint) error
	MarkDirty(ctx context.Context, projectID uint) error
	IsDirty(ctx context.Context, projectID uint) (bool, error)
}

type ChatService struct {
	projectRepo  *repository.ProjectRepository
	messageRepo  *repository.ChatMessageRepository
	publisher    MessagePublisher
	historyCache HistoryCache
	llm          ai.Client
	chatModel    string
	maxContext   int
}

type SendMessageInput struct {
	ProjectID uint
	Message   string
}

type SendMessageResult struct {
	UserMessage model.ChatMessage `json:"user_message"`
	BotMessage  model.ChatMessage `json:"bot_message"`
}

func NewChatService(
	projectRepo *repository.ProjectRepository,
	messageRepo *repository.ChatMessageRepository,
	publisher MessagePublisher,
	historyCache HistoryCache,
	llm ai.Client,
	chatModel string,
	maxContext int,
) *ChatService {
	if maxContext <= 0 {
		maxContext = 100
	}
	return &ChatService{
		projectRepo:  projectRepo,
		messageRepo:  messageRepo,
		publisher:    publisher,
		historyCache: historyCache,
		llm:          llm,
		chatModel:    chatModel,
		maxContext:   maxContext,
	}
}

// SendMessage stores the user's message, asks the chat model with the
// full project context and stores the bot's reply.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	return s.exchange(ctx, input, func(req ai.Request) (string, error) {
		return s.llm.Generate(ctx, req)
	})
}

// StreamMessage behaves like SendMessage but forwards reply chunks to
// onChunk as they arrive.
func (s *ChatService) StreamMessage(ctx context.Context, input SendMessageInput, onChunk func(string) error) (*SendMessageResult, error) {
	return s.exchange(ctx, input, func(req ai.Request) (string, error) {
		return s.llm.StreamGenerate(ctx, req, onChunk)
	})
}

func (s *ChatService) exchange(
	ctx context.Context,
	input SendMessageInput,
	call func(ai.Request) (string, error),
) (*SendMessageResult, error) {
	project, content, err := s.target(input)
	if err != nil {
		return nil, err
	}

	// history is read before the new message is stored so it is sent once
	history, err := s.history(ctx, input.ProjectID, s.maxContext)
	if err != nil {
		return nil, err
	}
	req := ai.Request{
		Model: s.chatModel,
		Turns: BuildConversation(project, history, content),
	}

	if s.publisher == nil {
		return nil, ErrMessageEnqueue
	}
	s.invalidate(ctx, input.ProjectID)

	userMessage := &model.ChatMessage{
		ProjectID: input.ProjectID,
		Sender:    model.SenderUser,
		Message:   content,
		CreatedAt: time.Now(),
	}
	if err := s.publisher.Publish(ctx, userMessage); err != nil {
		return nil, ErrMessageEnqueue
	}

	reply, err := call(req)
	if err != nil {
		return nil, err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = emptyModelReply
	}

	botMessage := &model.ChatMessage{
		ProjectID: input.ProjectID,
		Sender:    model.SenderBot,
		Message:   reply,
		CreatedAt: time.Now(),
	}
	s.invalidate(ctx, input.ProjectID)
	if err := s.publisher.Publish(ctx, botMessage); err != nil {
		return nil, ErrMessageEnqueue
	}

	return &SendMessageResult{
		UserMessage: *userMessage,
		BotMessage:  *botMessage,
	}, nil
}

// Precheck runs the validation of SendMessage without storing anything,
// so a streamed reply can be refused before any event is written.
func (s *ChatService) Precheck(input SendMessageInput) error {
	_, _, err := s.target(input)
	return err
}

// target resolves the project a message is sent to and the trimmed text.
func (s *ChatService) target(input SendMessageInput) (*model.Project, string, error) {
	if input.ProjectID == 0 {
		return nil, "", ErrInvalidInput
	}
	content := strings.TrimSpace(input.Message)
	if content == "" {
		return nil, "", ErrMessageEmpty
	}
	project, err := s.projectRepo.GetByID(input.ProjectID)
	if err != nil {
		return nil, "", err
	}
	if project == nil {
		return nil, "", ErrProjectNotFound
	}
	return project, content, nil
}

// ListMessages returns the conversation of a project in chronological
// order; limit > 0 keeps only the most recent messages.
func (s *ChatService) ListMessages(ctx context.Context, projectID uint, limit int) ([]model.ChatMessage, error) {
	if projectID == 0 {
		return nil, ErrInvalidInput
	}
	project, err := s.projectRepo.GetByID(projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}

	return s.history(ctx, projectID, limit)
}

// BuildConversation assembles the turns sent to the chat model: a user turn
// carrying the system prompt, the initial analysis and the board image, the
// model's acknowledgement, the stored history in chronological order and
// finally the new user message.
func BuildConversation(project *model.Project, history []model.ChatMessage, userMessage string) []ai.Turn {
	seed := []ai.Part{ai.TextPart(chatSystemPrompt + "\nInitial analysis: " + project.Analysis)}
	if len(project.Image) > 0 {
		mime := project.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		seed = append(seed, ai.ImagePart(mime, project.Image))
	}

	ordered := make([]model.ChatMessage, len(history))
	copy(ordered, history)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	turns := make([]ai.Turn, 0, len(ordered)+3)
	turns = append(turns,
		ai.Turn{Role: ai.RoleUser, Parts: seed},
		ai.Turn{Role: ai.RoleModel, Parts: []ai.Part{ai.TextPart(chatAcknowledgement)}},
	)
	for _, msg := range ordered {
		role := ai.RoleModel
		if msg.Sender == model.SenderUser {
			role = ai.RoleUser
		}
		turns = append(turns, ai.Turn{Role: role, Parts: []ai.Part{ai.TextPart(msg.Message)}})
	}
	turns = append(turns, ai.Turn{Role: ai.RoleUser, Parts: []ai.Part{ai.TextPart(userMessage)}})
	return turns
}

// history returns the last limit messages (all for limit <= 0), from the
// cached window when it is clean and long enough, else from the database.
func (s *ChatService) history(ctx context.Context, projectID uint, limit int) ([]model.ChatMessage, error) {
	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, projectID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, projectID, limit); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.messageRepo.ListByProjectID(projectID, 0)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, projectID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, projectID, messages)
		}
	}
	return trimMessages(messages, limit), nil
}

func (s *ChatService) invalidate(ctx context.Context, projectID uint) {
	if s.historyCache == nil {
		return
	}
	_ = s.historyCache.MarkDirty(ctx, projectID)
	_ = s.historyCache.DeleteHistory(ctx, projectID)
}

func trimMessages(messages []model.ChatMessage, limit int) []model.ChatMessage {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
