package shared

import "sync"

// FlashMessage is a one-time notification shown on the next rendered page.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Flashes queues flash messages for the single user of the shell.
type Flashes struct {
	mu    sync.Mutex
	queue []FlashMessage
}

// Add queues a flash message.
func (f *Flashes) Add(msg FlashMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, msg)
}

// Pop retrieves and clears the oldest flash message.
func (f *Flashes) Pop() *FlashMessage {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil
	}
	msg := f.queue[0]
	f.queue = f.queue[1:]
	return &msg
}
