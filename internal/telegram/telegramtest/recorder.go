// Package telegramtest provides an in-memory telegram.Sender for tests.
package telegramtest

import (
	"context"
	"strings"
	"sync"

	"github.com/miguel-bm/repobot/internal/telegram"
)

// Recorder captures every reply and callback answer instead of sending them.
type Recorder struct {
	mu       sync.Mutex
	Replies  []telegram.Reply
	Answered []string
	// Err, when set, is returned from every call.
	Err error
}

func (r *Recorder) Send(ctx context.Context, reply telegram.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Replies = append(r.Replies, reply)
	return nil
}

func (r *Recorder) AnswerCallback(ctx context.Context, queryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Answered = append(r.Answered, queryID)
	return nil
}

// Last returns the most recent reply, or the zero Reply if none was sent.
func (r *Recorder) Last() telegram.Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Replies) == 0 {
		return telegram.Reply{}
	}
	return r.Replies[len(r.Replies)-1]
}

// Count returns the number of replies sent.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Replies)
}

// Contains reports whether any reply text contains substr.
func (r *Recorder) Contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reply := range r.Replies {
		if strings.Contains(reply.Text, substr) {
			return true
		}
	}
	return false
}
