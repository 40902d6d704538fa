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

package arc_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kubewharf/sharedcell/arc"
	"github.com/kubewharf/sharedcell/arc/observer"
)

type eventCounter struct {
	created   atomic.Int64
	destroyed atomic.Int64
	freed     atomic.Int64
}

func (counter *eventCounter) observer() observer.Observer {
	//nolint:exhaustruct
	return observer.Observer{
		Create:         func(context.Context, observer.Create) { counter.created.Add(1) },
		DestroyPayload: func(context.Context, observer.DestroyPayload) { counter.destroyed.Add(1) },
		FreeAllocation: func(context.Context, observer.FreeAllocation) { counter.freed.Add(1) },
	}
}

func TestSharedObserverOptionAppliesPerCell(t *testing.T) {
	t.Parallel()

	counter := &eventCounter{}
	opt := arc.WithObserver[int](counter.observer())

	for i := range 4 {
		before := counter.created.Load()

		// The same option value twice joins two copies of the observer into this cell only.
		arc.New(i, opt, opt).Drop()

		assert.Equal(t, int64(2), counter.created.Load()-before, "cell %d", i)
	}

	assert.Equal(t, int64(8), counter.destroyed.Load())
	assert.Equal(t, int64(8), counter.freed.Load())
}

func TestSharedOptionsFromConcurrentConstructors(t *testing.T) {
	t.Parallel()

	const (
		workers = 8
		cells   = 500
	)

	counter := &eventCounter{}
	opts := []arc.Option[int]{
		arc.WithName[int]("shared"),
		arc.WithObserver[int](counter.observer()),
		arc.WithDestructor(func(int) {}),
	}

	var wg sync.WaitGroup

	for worker := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range cells {
				owner := arc.New(worker*cells+i, opts...)
				weak := owner.Downgrade()
				owner.Drop()
				weak.Drop()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int64(workers*cells), counter.created.Load())
	assert.Equal(t, int64(workers*cells), counter.destroyed.Load())
	assert.Equal(t, int64(workers*cells), counter.freed.Load())
}
