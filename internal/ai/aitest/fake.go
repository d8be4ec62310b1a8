// Package aitest provides an in-memory ai.Client for tests.
package aitest

import (
	"context"
	"strings"
	"sync"

	"pcbrecon/internal/ai"
)

// Reply is one scripted answer. Err wins over Text.
type Reply struct {
	Text string
	Err  error
}

// FakeClient answers requests from a per-model script and records every
// request it receives. Models without a script get Default.
type FakeClient struct {
	mu       sync.Mutex
	Scripts  map[string][]Reply
	Default  Reply
	Requests []ai.Request
}

func NewFakeClient() *FakeClient {
	return &FakeClient{Scripts: map[string][]Reply{}}
}

// On queues replies for model.
func (f *FakeClient) On(model string, replies ...Reply) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scripts[model] = append(f.Scripts[model], replies...)
	return f
}

func (f *FakeClient) Generate(_ context.Context, req ai.Request) (string, error) {
	reply := f.next(req)
	if reply.Err != nil {
		return "", reply.Err
	}
	return reply.Text, nil
}

// StreamGenerate emits the scripted text word by word.
func (f *FakeClient) StreamGenerate(_ context.Context, req ai.Request, onChunk func(string) error) (string, error) {
	reply := f.next(req)
	if reply.Err != nil {
		return "", reply.Err
	}
	words := strings.SplitAfter(reply.Text, " ")
	for _, w := range words {
		if w == "" {
			continue
		}
		if err := onChunk(w); err != nil {
			return "", err
		}
	}
	return reply.Text, nil
}

// Last returns the most recent request for model.
func (f *FakeClient) Last(model string) (ai.Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Requests) - 1; i >= 0; i-- {
		if f.Requests[i].Model == model {
			return f.Requests[i], true
		}
	}
	return ai.Request{}, false
}

func (f *FakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

func (f *FakeClient) next(req ai.Request) Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	queue := f.Scripts[req.Model]
	if len(queue) == 0 {
		return f.Default
	}
	f.Scripts[req.Model] = queue[1:]
	return queue[0]
}
