package offline

import (
	"context"
	"fmt"
	"sync"
)

// Outcome is the user's answer to an install prompt.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDismissed Outcome = "dismissed"
)

// InstallPrompt is the capability offered by the platform once the app is
// installable. It may be used at most once.
type InstallPrompt interface {
	Prompt(ctx context.Context) error
	UserChoice(ctx context.Context) (Outcome, error)
}

// Installer holds a deferred install prompt until the user asks to install.
type Installer struct {
	mu     sync.Mutex
	prompt InstallPrompt
}

// Defer keeps p for later use, replacing any earlier prompt.
func (i *Installer) Defer(p InstallPrompt) {
	i.mu.Lock()
	i.prompt = p
	i.mu.Unlock()
}

// Available reports whether an install prompt is being held.
func (i *Installer) Available() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.prompt != nil
}

// Install shows the held prompt and waits for the user's choice. The prompt
// is consumed when the user accepts.
func (i *Installer) Install(ctx context.Context) (Outcome, error) {
	i.mu.Lock()
	p := i.prompt
	i.mu.Unlock()
	if p == nil {
		return "", ErrNoInstallPrompt
	}

	if err := p.Prompt(ctx); err != nil {
		return "", fmt.Errorf("showing install prompt: %w", err)
	}
	outcome, err := p.UserChoice(ctx)
	if err != nil {
		return "", fmt.Errorf("waiting for install choice: %w", err)
	}

	if outcome == OutcomeAccepted {
		i.mu.Lock()
		if i.prompt == p {
			i.prompt = nil
		}
		i.mu.Unlock()
	}
	return outcome, nil
}
