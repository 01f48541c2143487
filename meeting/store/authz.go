package store

import (
	"context"
	"errors"
)

var ErrForbidden = errors.New("forbidden")

type Action string

const (
	ActionSaveExtraction    Action = "save_extraction"
	ActionReplaceMilestones Action = "replace_milestones"
)

// Authorizer decides whether actor may perform action on resource. A non-nil error
// aborts the write before any row is touched.
type Authorizer interface {
	Authorize(ctx context.Context, actor string, action Action, resource string) error
}

type AuthorizerFunc func(ctx context.Context, actor string, action Action, resource string) error

func (f AuthorizerFunc) Authorize(ctx context.Context, actor string, action Action, resource string) error {
	return f(ctx, actor, action, resource)
}

// AllowAll permits every write.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, string, Action, string) error { return nil }

// Actors permits writes only from the listed actors.
type Actors []string

func (a Actors) Authorize(_ context.Context, actor string, _ Action, _ string) error {
	for _, allowed := range a {
		if actor != "" && actor == allowed {
			return nil
		}
	}
	return ErrForbidden
}
