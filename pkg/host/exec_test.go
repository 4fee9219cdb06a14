package host

import (
	"context"
	"strings"
	"sync"
)

// scriptRunner answers commands from a handler and records every invocation.
type scriptRunner struct {
	mu      sync.Mutex
	calls   []string
	handler func(cmd string) ([]byte, error)
}

func (s *scriptRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	cmd := strings.TrimSpace(name + " " + strings.Join(args, " "))
	s.mu.Lock()
	s.calls = append(s.calls, cmd)
	s.mu.Unlock()
	if s.handler == nil {
		return nil, nil
	}
	return s.handler(cmd)
}

func (s *scriptRunner) count(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
