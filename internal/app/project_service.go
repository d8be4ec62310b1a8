package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"pcbrecon/internal/ai"
	"pcbrecon/internal/model"
	"pcbrecon/internal/repository"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrProjectNotFound = errors.New("project not found")
	ErrImageInvalid    = errors.New("image is missing or not a supported image format")
	ErrAnalysisFailed  = errors.New("pcb analysis failed")
)

const maxProjectNameLength = 128

// Models names the model used for each kind of call.
type Models struct {
	Analysis string
	Chat     string
	Text     string
}

type AnalysisCache interface {
	GetAnalysis(ctx context.Context, digest string) (string, bool, error)
	SetAnalysis(ctx context.Context, digest, analysis string) error
}

type ProjectService struct {
	projectRepo   *repository.ProjectRepository
	messageRepo   *repository.ChatMessageRepository
	analysisCache AnalysisCache
	historyCache  HistoryCache
	llm           ai.Client
	models        Models
}

type CreateProjectInput struct {
	Name      string
	ImagePath string
	Image     []byte
}

func NewProjectService(
	projectRepo *repository.ProjectRepository,
	messageRepo *repository.ChatMessageRepository,
	analysisCache AnalysisCache,
	historyCache HistoryCache,
	llm ai.Client,
	models Models,
) *ProjectService {
	return &ProjectService{
		projectRepo:   projectRepo,
		messageRepo:   messageRepo,
		analysisCache: analysisCache,
		historyCache:  historyCache,
		llm:           llm,
		models:        models,
	}
}

// CreateProject analyses the image, stores the project and seeds the chat
// with a short welcome message from the bot. Nothing is stored when the
// analysis fails.
func (s *ProjectService) CreateProject(ctx context.Context, input CreateProjectInput) (*model.Project, error) {
	name := strings.TrimSpace(input.Name)
	imagePath := strings.TrimSpace(input.ImagePath)
	if name == "" || utf8.RuneCountInString(name) > maxProjectNameLength || imagePath == "" {
		return nil, ErrInvalidInput
	}

	mime, err := SniffImageMIME(input.Image)
	if err != nil {
		return nil, err
	}
	digest := ImageDigest(input.Image)

	analysis, err := s.analyze(ctx, digest, mime, input.Image)
	if err != nil {
		return nil, err
	}

	project := &model.Project{
		Name:        name,
		ImagePath:   imagePath,
		Image:       input.Image,
		ImageMIME:   mime,
		ImageDigest: digest,
		Analysis:    analysis,
	}
	if err := s.projectRepo.Create(project); err != nil {
		return nil, err
	}

	welcome := &model.ChatMessage{
		ProjectID: project.ID,
		Sender:    model.SenderBot,
		Message:   s.welcomeMessage(ctx, project.Name),
		CreatedAt: time.Now(),
	}
	if err := s.messageRepo.Create(welcome); err != nil {
		return nil, err
	}
	project.ChatMessages = []model.ChatMessage{*welcome}
	return project, nil
}

func (s *ProjectService) ListProjects(offset, limit int) ([]model.Project, error) {
	return s.projectRepo.List(offset, limit)
}

func (s *ProjectService) GetProject(projectID uint) (*model.Project, error) {
	if projectID == 0 {
		return nil, ErrInvalidInput
	}
	project, err := s.projectRepo.GetByIDWithMessages(projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}
	return project, nil
}

func (s *ProjectService) DeleteProject(ctx context.Context, projectID uint) error {
	if projectID == 0 {
		return ErrInvalidInput
	}
	deleted, err := s.projectRepo.DeleteByID(projectID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrProjectNotFound
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, projectID)
	}
	return nil
}

// analyze returns a cached analysis for an identical image when one exists
// and otherwise asks the vision model.
func (s *ProjectService) analyze(ctx context.Context, digest, mime string, image []byte) (string, error) {
	if s.analysisCache != nil {
		if cached, hit, err := s.analysisCache.GetAnalysis(ctx, digest); err == nil && hit && cached != "" {
			return cached, nil
		}
	}
	if stored, err := s.projectRepo.FindAnalysisByDigest(digest); err == nil && stored != "" {
		s.rememberAnalysis(ctx, digest, stored)
		return stored, nil
	}

	text, err := s.llm.Generate(ctx, ai.Prompt(s.models.Analysis,
		ai.TextPart(analysisPrompt),
		ai.ImagePart(mime, image),
	))
	if err != nil {
		log.Printf("pcb analysis failed: %v", err)
		return "", fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrAnalysisFailed, "empty analysis")
	}
	s.rememberAnalysis(ctx, digest, text)
	return text, nil
}

func (s *ProjectService) rememberAnalysis(ctx context.Context, digest, analysis string) {
	if s.analysisCache == nil {
		return
	}
	if err := s.analysisCache.SetAnalysis(ctx, digest, analysis); err != nil {
		log.Printf("cache analysis failed: %v", err)
	}
}

func (s *ProjectService) welcomeMessage(ctx context.Context, projectName string) string {
	fallback := fmt.Sprintf(fallbackWelcomeFormat, projectName)
	text, err := s.llm.Generate(ctx, ai.Prompt(s.models.Text,
		ai.TextPart(fmt.Sprintf(welcomePromptFormat, projectName)),
	))
	if err != nil {
		log.Printf("generate welcome message failed: %v", err)
		return fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	return text
}
