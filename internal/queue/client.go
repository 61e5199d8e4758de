package queue

import (
	"context"
	"sync"
)

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// MemoryClient collects messages in process so a caller can inspect what a
// workflow published. Without a queue URL the workflow has no notifier at all.
type MemoryClient struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *MemoryClient) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (c *MemoryClient) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

var _ Client = (*MemoryClient)(nil)
