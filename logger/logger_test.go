package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatter(t *testing.T) {
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "[CHAT] slow store",
	}
	out, err := (&Formatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2026-01-02 03:04:05] [WARN] [] [CHAT] slow store\n", string(out))
}

func TestBroadcasterHook(t *testing.T) {
	l := logrus.New()
	l.SetOutput(&bytes.Buffer{})
	l.SetFormatter(&Formatter{})
	b := NewBroadcaster()
	l.AddHook(b)

	ch := b.Subscribe()
	l.Info("hello")

	select {
	case line := <-ch:
		assert.Contains(t, line, "hello")
		assert.Contains(t, line, "[INFO]")
	case <-time.After(time.Second):
		t.Fatal("no log line delivered")
	}

	b.Unsubscribe(ch)
	assert.Equal(t, 0, b.Subscribers())
	// second unsubscribe must not panic on closed channel
	b.Unsubscribe(ch)
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	for i := 0; i < 150; i++ {
		b.Publish("x")
	}
	assert.Len(t, ch, 100)
}
