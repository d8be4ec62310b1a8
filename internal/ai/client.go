package ai

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Blob is inline binary content such as an image.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Part is either text or inline data.
type Part struct {
	Text       string
	InlineData *Blob
}

func TextPart(text string) Part {
	return Part{Text: text}
}

func ImagePart(mimeType string, data []byte) Part {
	return Part{InlineData: &Blob{MIMEType: mimeType, Data: data}}
}

type Turn struct {
	Role  Role
	Parts []Part
}

// Request is a provider-neutral generation request. A single user turn is
// a one-shot prompt; more turns form a conversation whose last turn is the
// message being answered.
type Request struct {
	Model string
	Turns []Turn
}

// Prompt builds a single-turn request from parts.
func Prompt(model string, parts ...Part) Request {
	return Request{
		Model: model,
		Turns: []Turn{{Role: RoleUser, Parts: parts}},
	}
}

type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
	StreamGenerate(ctx context.Context, req Request, onChunk func(chunk string) error) (string, error)
}

type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// New returns the client for cfg.Provider ("gemini" or "openai").
func New(cfg Config) (Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "gemini":
		return NewGeminiClient(httpClient, cfg.BaseURL, cfg.APIKey), nil
	case "openai":
		return NewOpenAICompatibleClient(httpClient, cfg.BaseURL, cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// readSSE calls onData with the payload of every "data:" line until the
// stream ends, onData asks to stop, or "[DONE]" arrives.
func readSSE(body io.Reader, onData func(payload string) (stop bool, err error)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return nil
		}
		stop, err := onData(payload)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan llm stream failed: %w", err)
	}
	return nil
}
