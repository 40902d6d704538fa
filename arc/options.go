// Copyright 2024 The Podseidon Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package arc

import (
	"context"

	"github.com/kubewharf/sharedcell/arc/observer"
	"github.com/kubewharf/sharedcell/util/o11y"
)

// Customizes a shared cell at construction.
type Option[T any] func(*config[T])

type config[T any] struct {
	//nolint:containedctx // passed to observers over the whole lifetime of the cell, not function-scoped.
	ctx        context.Context
	name       string
	destructor func(T)
	observer   *observer.Observer
}

// Runs fn with the payload when the last owning handle is dropped.
//
// fn runs on the goroutine that dropped the last owning handle,
// after every other owning handle's accesses to the payload have completed.
// It is not called for payloads taken out with TryUnwrap.
func WithDestructor[T any](fn func(T)) Option[T] {
	return func(cfg *config[T]) {
		if prev := cfg.destructor; prev != nil {
			cfg.destructor = func(value T) {
				prev(value)
				fn(value)
			}
		} else {
			cfg.destructor = fn
		}
	}
}

// Reports lifecycle events of the cell to obs. Multiple observers are joined.
func WithObserver[T any](obs observer.Observer) Option[T] {
	// The option may be applied to many cells, so obs itself must stay untouched.
	return func(cfg *config[T]) {
		var joined observer.Observer
		if cfg.observer != nil {
			joined = cfg.observer.Join(obs)
		} else {
			joined = o11y.ReflectPopulate(obs)
		}

		cfg.observer = &joined
	}
}

// Sets the context passed to observers. Defaults to context.Background().
func WithContext[T any](ctx context.Context) Option[T] {
	return func(cfg *config[T]) { cfg.ctx = ctx }
}

// Sets the cell name reported to observers. Defaults to the payload type name.
func WithName[T any](name string) Option[T] {
	return func(cfg *config[T]) { cfg.name = name }
}
