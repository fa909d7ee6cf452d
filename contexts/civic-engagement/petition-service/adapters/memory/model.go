package memory

import (
	"context"
	"sync"

	"petitionhub/contexts/civic-engagement/petition-service/ports"
)

const approveAllResponse = `{"isAbusive": false, "confidence": 0.9, "reason": "no abuse detected"}`

// ScriptedReply is one canned model answer.
type ScriptedReply struct {
	Raw string
	Err error
}

// ScriptedModel replays queued replies in order and falls back to an
// approve-all answer once the queue is empty.
type ScriptedModel struct {
	mu      sync.Mutex
	replies []ScriptedReply
	prompts []string
}

var _ ports.ContentClassifier = (*ScriptedModel)(nil)

func NewScriptedModel(replies ...ScriptedReply) *ScriptedModel {
	return &ScriptedModel{replies: replies}
}

func (m *ScriptedModel) ClassifyContent(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if len(m.replies) == 0 {
		return approveAllResponse, nil
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	return next.Raw, next.Err
}

func (m *ScriptedModel) ModelName() string {
	return "scripted"
}

func (m *ScriptedModel) Enqueue(replies ...ScriptedReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
}

func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}
