package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ent0n29/taskpal/internal/reliability"
)

// FallbackProvider tries a primary provider first and the secondary on error.
// Every error it returns, other than caller cancellation, matches ErrUnavailable.
type FallbackProvider struct {
	primary  Provider
	fallback Provider
	onError  func(provider string, err error)
}

func NewFallbackProvider(primary, fallback Provider) *FallbackProvider {
	return &FallbackProvider{primary: primary, fallback: fallback}
}

// SetErrorHook registers fn to be called for every failed provider attempt.
func (p *FallbackProvider) SetErrorHook(fn func(provider string, err error)) {
	p.onError = fn
}

func (p *FallbackProvider) Primary() Provider   { return p.primary }
func (p *FallbackProvider) Secondary() Provider { return p.fallback }

func (p *FallbackProvider) Name() string {
	if p.fallback == nil {
		return p.primary.Name()
	}
	return p.primary.Name() + "+" + p.fallback.Name()
}

func (p *FallbackProvider) Complete(ctx context.Context, req Request) (string, error) {
	if p.primary == nil {
		return "", fmt.Errorf("%w: no provider configured", ErrUnavailable)
	}
	text, err := p.primary.Complete(ctx, req)
	if err == nil {
		return text, nil
	}
	if reliability.IsCancellation(err) {
		return "", err
	}
	p.report(p.primary, err)
	if p.fallback == nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUnavailable, p.primary.Name(), err)
	}

	text, fbErr := p.fallback.Complete(ctx, req)
	if fbErr != nil {
		if reliability.IsCancellation(fbErr) {
			return "", fbErr
		}
		p.report(p.fallback, fbErr)
		return "", fmt.Errorf("%w: %s: %w; %s: %w", ErrUnavailable, p.primary.Name(), err, p.fallback.Name(), fbErr)
	}
	return text, nil
}

func (p *FallbackProvider) report(provider Provider, err error) {
	if p.onError != nil {
		p.onError(provider.Name(), err)
	}
}

// Close releases providers that hold client resources.
func (p *FallbackProvider) Close() error {
	var errs []error
	for _, provider := range []Provider{p.primary, p.fallback} {
		if c, ok := provider.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
