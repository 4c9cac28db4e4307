// SPDX-License-Identifier: AGPL-3.0-or-later

package bus

import (
	"context"
	"sync"
)

// Fake is an in-memory Client double used by tests in place of a real
// broker connection.
type Fake struct {
	mu        sync.Mutex
	handler   Handler
	Published []Message
	Subbed    []string
}

// NewFake returns an empty Fake client.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Connect(ctx context.Context) error { return nil }

func (f *Fake) Publish(ctx context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = append(f.Published, Message{Topic: topic, Payload: payload})
	return nil
}

func (f *Fake) Subscribe(ctx context.Context, topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Subbed = append(f.Subbed, topics...)
	return nil
}

func (f *Fake) Unsubscribe(ctx context.Context, topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Subbed = removeAll(f.Subbed, topics)
	return nil
}

func (f *Fake) SetHandler(h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *Fake) Disconnect(ctx context.Context) error { return nil }

// Deliver simulates an inbound publish from the broker.
func (f *Fake) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(Message{Topic: topic, Payload: payload})
	}
}
