package logger

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Broadcaster is a logrus hook that fans formatted log lines out to
// subscribers (the admin websocket stream).
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan string]bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan string]bool)}
}

func (b *Broadcaster) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (b *Broadcaster) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	b.Publish(line)
	return nil
}

// Publish sends msg to every subscriber without blocking on slow readers.
func (b *Broadcaster) Publish(msg string) {
	b.mu.Lock()
	for ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
	b.mu.Unlock()
}

// Subscribe creates a new channel receiving log lines.
func (b *Broadcaster) Subscribe() chan string {
	ch := make(chan string, 100)
	b.mu.Lock()
	b.subscribers[ch] = true
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) Unsubscribe(ch chan string) {
	b.mu.Lock()
	if b.subscribers[ch] {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
