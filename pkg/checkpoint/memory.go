package checkpoint

import (
	"context"
	"sync"

	"github.com/agentloom/loom/pkg/config"
	"github.com/agentloom/loom/pkg/llm"
)

// MemorySaver keeps thread histories in process memory. State survives
// across turns within one process and is lost on restart.
type MemorySaver struct {
	mu      sync.RWMutex
	threads map[string][]llm.Message
}

// NewMemory is the builder for "memory" checkpointer specs.
func NewMemory(spec *config.CheckpointerSpec) (Saver, error) {
	return NewMemorySaver(), nil
}

func NewMemorySaver() *MemorySaver {
	return &MemorySaver{threads: make(map[string][]llm.Message)}
}

func (s *MemorySaver) Load(ctx context.Context, threadID string) ([]llm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.threads[threadID]
	if !ok {
		return nil, nil
	}
	messages := make([]llm.Message, len(stored))
	copy(messages, stored)
	return messages, nil
}

func (s *MemorySaver) Save(ctx context.Context, threadID string, messages []llm.Message) error {
	stored := make([]llm.Message, len(messages))
	copy(stored, messages)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = stored
	return nil
}

func (s *MemorySaver) Close() error {
	return nil
}
