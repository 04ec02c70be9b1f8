package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rpggio/biodata/internal/domain/notice"
)

// DefaultNotificationTitle is used when a push message carries no title.
const DefaultNotificationTitle = "BioData Gatherer"

// PushMessage is the payload of a push event.
type PushMessage struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	URL   string `json:"url,omitempty"`
}

// ParsePushMessage decodes a push payload. A payload that is not a JSON
// object is shown verbatim as the notification body.
func ParsePushMessage(data []byte) PushMessage {
	var msg PushMessage
	trimmed := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &msg); err != nil {
		msg = PushMessage{Body: trimmed}
	}
	if msg.Title == "" {
		msg.Title = DefaultNotificationTitle
	}
	if msg.URL == "" {
		msg.URL = DefaultShell
	}
	return msg
}

// Windows focuses or opens application windows.
type Windows interface {
	// Focus brings an existing window showing target to the front. It
	// reports false when no such window exists.
	Focus(ctx context.Context, target string) (bool, error)
	// Open opens a new window at target.
	Open(ctx context.Context, target string) error
}

// Notifications turns push events into notices and routes notification
// clicks to a window.
type Notifications struct {
	origin   *url.URL
	notifier notice.Notifier
	windows  Windows
}

// NewNotifications creates a push handler. windows may be nil, in which case
// clicks only resolve their target.
func NewNotifications(origin *url.URL, notifier notice.Notifier, windows Windows) *Notifications {
	if notifier == nil {
		notifier = notice.Discard
	}
	return &Notifications{origin: origin, notifier: notifier, windows: windows}
}

// HandlePush shows the notification described by data.
func (n *Notifications) HandlePush(ctx context.Context, data []byte) notice.Notice {
	msg := ParsePushMessage(data)
	nt := notice.Notice{
		Title:       msg.Title,
		Description: msg.Body,
		Variant:     notice.VariantDefault,
		URL:         msg.URL,
	}
	n.notifier.Notify(ctx, nt)
	return nt
}

// HandleClick focuses a window showing target, or opens one. An empty target
// means the application root. It returns the absolute URL navigated to.
func (n *Notifications) HandleClick(ctx context.Context, target string) (string, error) {
	if target == "" {
		target = DefaultShell
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid notification url %q: %w", target, err)
	}
	resolved := ref
	if n.origin != nil {
		resolved = n.origin.ResolveReference(ref)
	}
	abs := resolved.String()

	if n.windows == nil {
		return abs, nil
	}
	focused, err := n.windows.Focus(ctx, abs)
	if err != nil {
		return "", fmt.Errorf("focusing window: %w", err)
	}
	if focused {
		return abs, nil
	}
	if err := n.windows.Open(ctx, abs); err != nil {
		return "", fmt.Errorf("opening window: %w", err)
	}
	return abs, nil
}
