package recording

import (
	"context"
	"fmt"
	"sync"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
)

// Authorizer answers whether the microphone may be used.
type Authorizer interface {
	// Status reports the current decision without prompting.
	Status() types.PermissionStatus
	// Request prompts when undetermined and blocks until answered or ctx
	// is done.
	Request(ctx context.Context) (bool, error)
}

// Static is an authorizer with a fixed decision.
type Static bool

// Status implements Authorizer.
func (s Static) Status() types.PermissionStatus {
	if s {
		return types.PermissionGranted
	}
	return types.PermissionDenied
}

// Request implements Authorizer.
func (s Static) Request(context.Context) (bool, error) {
	return bool(s), nil
}

// Prompt is an authorizer that asks an operator. The first answer is kept
// for the rest of the process lifetime.
type Prompt struct {
	mu      sync.Mutex
	status  types.PermissionStatus
	waiters []chan bool

	// OnPrompt, when set, is called each time a request starts waiting.
	OnPrompt func()
}

// NewPrompt creates an undetermined prompt authorizer.
func NewPrompt() *Prompt {
	return &Prompt{status: types.PermissionUndetermined}
}

// Status implements Authorizer.
func (p *Prompt) Status() types.PermissionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Request implements Authorizer.
func (p *Prompt) Request(ctx context.Context) (bool, error) {
	p.mu.Lock()
	switch p.status {
	case types.PermissionGranted:
		p.mu.Unlock()
		return true, nil
	case types.PermissionDenied:
		p.mu.Unlock()
		return false, nil
	}
	ch := make(chan bool, 1)
	p.waiters = append(p.waiters, ch)
	notify := p.OnPrompt
	p.mu.Unlock()

	if notify != nil {
		notify()
	}

	select {
	case granted := <-ch:
		return granted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Pending reports whether a request is waiting for an answer.
func (p *Prompt) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters) > 0
}

// Resolve answers all waiting requests and records the decision.
func (p *Prompt) Resolve(granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = types.PermissionDenied
	if granted {
		p.status = types.PermissionGranted
	}
	for _, ch := range p.waiters {
		ch <- granted
	}
	p.waiters = nil
}

// NewAuthorizer returns the authorizer for a configured policy.
func NewAuthorizer(policy string) (Authorizer, error) {
	switch policy {
	case "granted":
		return Static(true), nil
	case "denied":
		return Static(false), nil
	case "prompt":
		return NewPrompt(), nil
	default:
		return nil, fmt.Errorf("unknown microphone policy %q", policy)
	}
}
