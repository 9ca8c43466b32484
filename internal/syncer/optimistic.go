package syncer

import (
	"context"
	"sync"
)

// Optimistic holds a locally displayed value that mutations update before the
// server confirms them.
type Optimistic[T any] struct {
	mu    sync.RWMutex
	value T
	clone func(T) T
	// gen counts writes so a rollback can tell whether it still owns the value.
	gen uint64
}

// NewOptimistic wraps initial. clone must return a deep enough copy that
// mutating the copy leaves the original intact; nil means plain assignment.
func NewOptimistic[T any](initial T, clone func(T) T) *Optimistic[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Optimistic[T]{value: initial, clone: clone}
}

func (o *Optimistic[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.clone(o.value)
}

// Set replaces the value, typically with a fresh server read.
func (o *Optimistic[T]) Set(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value = v
	o.gen++
}

// Mutate applies the change locally, then commits it remotely. On a commit
// error the pre-mutation snapshot is restored and the error is returned as is.
// A value written by Set or another Mutate while the commit was in flight is
// newer than the snapshot and is kept.
func (o *Optimistic[T]) Mutate(ctx context.Context, apply func(T) T, commit func(ctx context.Context) error) error {
	o.mu.Lock()
	snapshot := o.clone(o.value)
	o.value = apply(o.clone(o.value))
	o.gen++
	applied := o.gen
	o.mu.Unlock()

	if err := commit(ctx); err != nil {
		o.mu.Lock()
		if o.gen == applied {
			o.value = snapshot
			o.gen++
		}
		o.mu.Unlock()
		return err
	}
	return nil
}
