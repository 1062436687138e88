package llm

import (
	"context"
	"errors"
)

// unconfiguredProvider fails every call immediately.
type unconfiguredProvider struct {
	err *ErrNotConfigured
}

func (u *unconfiguredProvider) Generate(context.Context, Request) (*Response, error) {
	return nil, u.err
}

func (u *unconfiguredProvider) ModelID() string {
	return "unconfigured"
}

func asNotConfigured(err error) (*ErrNotConfigured, bool) {
	var nc *ErrNotConfigured
	if errors.As(err, &nc) {
		return nc, true
	}
	return nil, false
}
