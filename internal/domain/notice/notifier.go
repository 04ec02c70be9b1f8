package notice

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(context.Context, Notice) {})

const defaultBufferSize = 50

// Buffer keeps the most recent notices for clients that poll, and logs each one.
type Buffer struct {
	mu     sync.Mutex
	items  []Notice
	limit  int
	nextID int64
	logger *slog.Logger
}

// NewBuffer creates a buffer holding at most limit notices.
func NewBuffer(limit int, logger *slog.Logger) *Buffer {
	if limit <= 0 {
		limit = defaultBufferSize
	}
	return &Buffer{limit: limit, logger: logger}
}

// Notify records a notice, evicting the oldest when full.
func (b *Buffer) Notify(ctx context.Context, n Notice) {
	if n.Variant == "" {
		n.Variant = VariantDefault
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	b.mu.Lock()
	b.nextID++
	n.ID = b.nextID
	b.items = append(b.items, n)
	if len(b.items) > b.limit {
		b.items = append([]Notice(nil), b.items[len(b.items)-b.limit:]...)
	}
	b.mu.Unlock()

	if b.logger != nil {
		level := slog.LevelInfo
		if n.Variant == VariantDestructive {
			level = slog.LevelWarn
		}
		b.logger.Log(ctx, level, "notice", "title", n.Title, "description", n.Description)
	}
}

// Since returns notices with an ID greater than afterID, oldest first.
func (b *Buffer) Since(afterID int64) []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Notice, 0, len(b.items))
	for _, n := range b.items {
		if n.ID > afterID {
			out = append(out, n)
		}
	}
	return out
}
