package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SendFunc delivers one plain text log line to a chat.
type SendFunc func(ctx context.Context, chatID int64, threadID int, text string) error

const telegramMaxLen = 3500

// telegramSink is a zerolog.LevelWriter forwarding records at or above a
// minimum level to the log group. Writes never block logging: records are
// queued, and dropped when the queue is full or the rate limit is hit.
type telegramSink struct {
	mu       sync.Mutex
	send     SendFunc
	chatID   int64
	threadID int
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue  chan string
	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newTelegramSink() *telegramSink {
	return &telegramSink{
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
		queue:    make(chan string, 256),
	}
}

func (t *telegramSink) setTarget(send SendFunc, chatID int64) {
	t.mu.Lock()
	t.send = send
	t.chatID = chatID
	t.mu.Unlock()
}

func (t *telegramSink) apply(cfg TelegramConfig) {
	rps := cfg.RatePerSec
	if rps < 1 {
		rps = 1
	}
	t.mu.Lock()
	t.minLevel = ParseLevel(cfg.MinLevel, zerolog.WarnLevel)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	t.threadID = cfg.ThreadID
	t.mu.Unlock()

	if cfg.Enabled {
		t.once.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			t.cancel = cancel
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.run(ctx)
			}()
		})
	}
}

func (t *telegramSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-t.queue:
			t.mu.Lock()
			send, chatID, threadID := t.send, t.chatID, t.threadID
			t.mu.Unlock()
			if send == nil || chatID == 0 {
				continue
			}
			_ = send(ctx, chatID, threadID, msg)
		}
	}
}

func (t *telegramSink) close() {
	if t.cancel != nil {
		t.cancel()
		t.wg.Wait()
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	ok := t.chatID != 0 && t.send != nil && level >= t.minLevel
	lim := t.limiter
	t.mu.Unlock()
	if !ok || !lim.Allow() {
		return len(p), nil
	}
	msg := formatRecord(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case t.queue <- msg:
	default:
	}
	return len(p), nil
}

// formatRecord turns a zerolog JSON line into "[LEVEL] message" followed by
// one "- key=value" line per field, sorted by key.
func formatRecord(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), telegramMaxLen)
	}
	lvl, _ := m["level"].(string)
	msg, _ := m[zerolog.MessageFieldName].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", zerolog.MessageFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		limit := 600
		if k == "stack" {
			limit = 900
		}
		fmt.Fprintf(&b, "\n- %s=%s", k, truncate(fmt.Sprint(m[k]), limit))
	}
	return truncate(b.String(), telegramMaxLen)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
