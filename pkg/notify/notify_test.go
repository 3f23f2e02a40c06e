package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingNotifier captures sent messages and fails for chosen recipients.
type recordingNotifier struct {
	mu     sync.Mutex
	sent   []Message
	failTo map[string]bool
}

func (r *recordingNotifier) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTo[msg.To] {
		return fmt.Errorf("relay refused %s", msg.To)
	}
	r.sent = append(r.sent, msg)
	return nil
}

func TestDispatch_AwaitsAll(t *testing.T) {
	n := &recordingNotifier{}
	msgs := []Message{
		{To: "a@example.com", Subject: "s"},
		{To: "b@example.com", Subject: "s"},
		{To: "c@example.com", Subject: "s"},
	}

	sent, failed := Dispatch(context.Background(), n, nil, msgs)

	assert.Equal(t, 3, sent)
	assert.Equal(t, 0, failed)
	assert.Len(t, n.sent, 3)
}

func TestDispatch_IsolatesFailures(t *testing.T) {
	n := &recordingNotifier{failTo: map[string]bool{"b@example.com": true}}
	msgs := []Message{
		{To: "a@example.com"},
		{To: "b@example.com"},
		{To: "c@example.com"},
	}

	sent, failed := Dispatch(context.Background(), n, nil, msgs)

	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, failed)
}

func TestDispatch_EmptyBatch(t *testing.T) {
	n := &recordingNotifier{}
	sent, failed := Dispatch(context.Background(), n, nil, nil)
	assert.Zero(t, sent)
	assert.Zero(t, failed)
}
