package notifier

import (
	"context"
	"time"
)

// Config controls the notification pipeline.
type Config struct {
	Enabled bool
	// RatePerSec bounds outgoing messages. Default 1.
	RatePerSec int
	// RetryMax is the number of extra attempts per message. Default 2.
	RetryMax  int
	RetryBase time.Duration
	// QueueSize is the event buffer. Events beyond it are dropped.
	QueueSize int
	// OnSuccess also reports runs that finished without failures.
	OnSuccess bool
}

// Sender delivers one text message.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, text string) error

func (f SenderFunc) Send(ctx context.Context, text string) error { return f(ctx, text) }
