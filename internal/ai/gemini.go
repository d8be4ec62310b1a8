package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"
)

const geminiAPIVersion = "v1beta"

var ErrEmptyCandidates = errors.New("empty llm candidates")

// GeminiClient adapts the Gen AI SDK to Client. The SDK client is built on
// first use so a missing key only fails the calls that need it.
type GeminiClient struct {
	cfg genai.ClientConfig

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiClient accepts base URLs with or without the trailing API
// version segment; an empty base URL uses the SDK default endpoint.
func NewGeminiClient(httpClient *http.Client, baseURL, apiKey string) *GeminiClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimSuffix(strings.TrimRight(strings.TrimSpace(baseURL), "/"), "/"+geminiAPIVersion)
	if baseURL != "" {
		baseURL += "/"
	}
	return &GeminiClient{cfg: genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: geminiAPIVersion,
		},
	}}
}

func (c *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		cfg := c.cfg
		c.client, c.initErr = genai.NewClient(ctx, &cfg)
		if c.initErr != nil {
			c.initErr = fmt.Errorf("create gemini client failed: %w", c.initErr)
		}
	})
	return c.client, c.initErr
}

func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}
	client, err := c.sdk(ctx)
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, toGeminiContents(req), nil)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	if err := blocked(resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", ErrEmptyCandidates
	}
	return candidateText(resp), nil
}

func (c *GeminiClient) StreamGenerate(ctx context.Context, req Request, onChunk func(chunk string) error) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}
	client, err := c.sdk(ctx)
	if err != nil {
		return "", err
	}

	var full strings.Builder
	for resp, err := range client.Models.GenerateContentStream(ctx, req.Model, toGeminiContents(req), nil) {
		if err != nil {
			return "", fmt.Errorf("llm stream failed: %w", err)
		}
		if err := blocked(resp); err != nil {
			return "", err
		}
		text := candidateText(resp)
		if text == "" {
			continue
		}
		full.WriteString(text)
		if err := onChunk(text); err != nil {
			return "", err
		}
	}
	return full.String(), nil
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Model) == "" {
		return fmt.Errorf("llm model is empty")
	}
	if len(req.Turns) == 0 {
		return fmt.Errorf("llm request has no turns")
	}
	return nil
}

func blocked(resp *genai.GenerateContentResponse) error {
	if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	return nil
}

// candidateText joins the text parts of the first candidate.
func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func toGeminiContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.Turns))
	for _, turn := range req.Turns {
		parts := make([]*genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			if p.InlineData != nil {
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{
					MIMEType: p.InlineData.MIMEType,
					Data:     p.InlineData.Data,
				}})
				continue
			}
			parts = append(parts, &genai.Part{Text: p.Text})
		}
		contents = append(contents, &genai.Content{Role: string(turn.Role), Parts: parts})
	}
	return contents
}
