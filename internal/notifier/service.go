package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"alertbot/internal/alert"
	"alertbot/internal/eventbus"
	kit "alertbot/internal/transport"
	logx "alertbot/pkg/logx"
)

const historySize = 50

var ErrNoTarget = errors.New("alert chat not configured")

// Service implements alert.Notifier for one chat target. Safe for
// concurrent use.
type Service struct {
	mu      sync.Mutex
	log     logx.Logger
	sender  Sender
	bus     eventbus.Bus
	cfg     Config
	limiter *rate.Limiter
	target  kit.ChatTarget

	hmu     sync.Mutex
	history []HistoryItem
}

var _ alert.Notifier = (*Service)(nil)

func New(cfg Config, sender Sender, target kit.ChatTarget, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, sender: sender, bus: bus, target: target}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// SetTarget rebinds the alert chat (config hot reload).
func (s *Service) SetTarget(t kit.ChatTarget) {
	s.mu.Lock()
	s.target = t
	s.mu.Unlock()
}

func (s *Service) Target() kit.ChatTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Notify sends text to the alert chat, retrying transient failures. It
// returns nil only once the chat accepted the message.
func (s *Service) Notify(ctx context.Context, text string) error {
	s.mu.Lock()
	cfg, lim, to, sender := s.cfg, s.limiter, s.target, s.sender
	s.mu.Unlock()

	if sender == nil || to.ChatID == 0 {
		return fmt.Errorf("%w: %w", alert.ErrDelivery, ErrNoTarget)
	}

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			lastErr = err
			break
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := sender.SendText(callCtx, to, text, &kit.SendOptions{DisablePreview: true})
		cancel()
		if err == nil {
			s.appendHistory(text)
			eventbus.Publish(s.bus, eventbus.TypeNotifierSent, Event{ChatID: to.ChatID, ThreadID: to.ThreadID, Attempts: attempt, At: time.Now()})
			return nil
		}
		lastErr = err
		s.log.Debug("alert send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			lastErr = ctx.Err()
			attempt = attempts
		}
	}

	eventbus.Publish(s.bus, eventbus.TypeNotifierFailed, Event{ChatID: to.ChatID, ThreadID: to.ThreadID, Attempts: attempts, At: time.Now(), Error: lastErr.Error()})
	return fmt.Errorf("%w: %w", alert.ErrDelivery, lastErr)
}

// History returns the most recent successfully sent alerts, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Text: text})
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1), capped,
// with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(d, cfg.RetryMaxDelay)
}
