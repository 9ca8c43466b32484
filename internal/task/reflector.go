package task

import (
	"context"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
)

// Reflector carries a committed task transition over to the originating
// request.
type Reflector interface {
	Reflect(ctx context.Context, change models.TaskStatusChange) error
}

// RequestApplier is the request side of the reconciliation.
type RequestApplier interface {
	ApplyTaskStatus(ctx context.Context, change models.TaskStatusChange) (models.Request, bool, error)
}

// ReflectorFunc adapts a plain function to Reflector.
type ReflectorFunc func(ctx context.Context, change models.TaskStatusChange) error

func (f ReflectorFunc) Reflect(ctx context.Context, change models.TaskStatusChange) error {
	return f(ctx, change)
}

// NewDirectReflector applies the change in-process, inside the caller's request.
func NewDirectReflector(applier RequestApplier) Reflector {
	return ReflectorFunc(func(ctx context.Context, change models.TaskStatusChange) error {
		_, _, err := applier.ApplyTaskStatus(ctx, change)
		return err
	})
}
