package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

// ChatMessage is one OpenAI chat message. Content is a string for text-only
// turns and a []openAIContentPart when images are attached.
type ChatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type OpenAICompatibleClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewOpenAICompatibleClient(httpClient *http.Client, baseURL, apiKey string) *OpenAICompatibleClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAICompatibleClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

func (c *OpenAICompatibleClient) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := c.do(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse llm json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyCandidates
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *OpenAICompatibleClient) StreamGenerate(ctx context.Context, req Request, onChunk func(chunk string) error) (string, error) {
	resp, err := c.do(ctx, req, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("llm stream status %d: %s", resp.StatusCode, string(raw))
	}

	var full strings.Builder
	err = readSSE(resp.Body, func(payload string) (bool, error) {
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return false, nil
		}
		if len(chunk.Choices) == 0 {
			return false, nil
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			return false, nil
		}
		full.WriteString(text)
		return false, onChunk(text)
	})
	if err != nil {
		return "", err
	}
	return full.String(), nil
}

func (c *OpenAICompatibleClient) do(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, fmt.Errorf("llm model is empty")
	}
	if len(req.Turns) == 0 {
		return nil, fmt.Errorf("llm request has no turns")
	}

	reqBody := map[string]interface{}{
		"model":    req.Model,
		"messages": ToChatMessages(req.Turns),
		"stream":   stream,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal llm request failed: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build llm request failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	return resp, nil
}

// ToChatMessages maps turns onto OpenAI roles; model turns become
// "assistant" turns.
func ToChatMessages(turns []Turn) []ChatMessage {
	messages := make([]ChatMessage, 0, len(turns))
	for _, turn := range turns {
		role := "user"
		if turn.Role == RoleModel {
			role = "assistant"
		}

		hasImage := false
		var text strings.Builder
		for _, p := range turn.Parts {
			if p.InlineData != nil {
				hasImage = true
				continue
			}
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(p.Text)
		}
		if !hasImage {
			messages = append(messages, ChatMessage{Role: role, Content: text.String()})
			continue
		}

		parts := make([]openAIContentPart, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			if p.InlineData != nil {
				dataURL := "data:" + p.InlineData.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.InlineData.Data)
				parts = append(parts, openAIContentPart{Type: "image_url", ImageURL: &openAIImageURL{URL: dataURL}})
				continue
			}
			parts = append(parts, openAIContentPart{Type: "text", Text: p.Text})
		}
		messages = append(messages, ChatMessage{Role: role, Content: parts})
	}
	return messages
}
