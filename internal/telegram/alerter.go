package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sportscouncil/tournament-gateway/internal/auth"
	"go.uber.org/zap"
)

const alertQueueSize = 64

// Alerter forwards forged-token attempts to a Telegram chat. Sending happens
// on a background goroutine; alerts are dropped when the queue is full so a
// flood of bad tokens never slows request handling.
type Alerter struct {
	sender Sender
	chatID int64
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan string
	done   chan struct{}
}

func NewAlerter(sender Sender, chatID int64, logger *zap.Logger) *Alerter {
	a := &Alerter{
		sender: sender,
		chatID: chatID,
		logger: logger,
		now:    time.Now,
		queue:  make(chan string, alertQueueSize),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Alerter) Observe(_ context.Context, ev auth.Event) {
	if ev.Op != auth.OpAuthenticate || !errors.Is(ev.Reason, auth.ErrInvalidSignature) {
		return
	}
	text := fmt.Sprintf("Rejected token with invalid signature at %s", a.now().UTC().Format(time.RFC3339))
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- text:
	default:
		a.logger.Warn("alert queue full, dropping alert")
	}
}

// Close drains queued alerts and stops the worker.
func (a *Alerter) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *Alerter) run() {
	defer close(a.done)
	for text := range a.queue {
		if err := a.sender.SendMessage(a.chatID, text); err != nil {
			a.logger.Warn("failed to send telegram alert", zap.Error(err))
		}
	}
}
