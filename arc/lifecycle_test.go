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
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubewharf/sharedcell/arc"
	"github.com/kubewharf/sharedcell/internal/celltrack"
)

func assertCleanLifecycle(t *testing.T, tracker *celltrack.Tracker, ids []int) {
	t.Helper()

	assert.Equal(t, int64(len(ids)), tracker.Created())
	assert.Equal(t, int64(len(ids)), tracker.Destroyed())
	assert.Equal(t, int64(len(ids)), tracker.Freed())

	for _, id := range ids {
		assert.Equal(
			t,
			[]celltrack.Event{celltrack.EventCreate, celltrack.EventDestroy, celltrack.EventFree},
			tracker.Events(id),
			"cell %d", id,
		)
	}
}

// 8 goroutines clone and drop an owning handle while another goroutine keeps upgrading a weak handle.
func TestConcurrentCloneDropWithUpgrader(t *testing.T) {
	t.Parallel()

	const (
		workers    = 8
		iterations = 10000
	)

	tracker := celltrack.NewTracker()
	owner := tracker.NewObserved(0)
	id := (*owner.Get()).ID

	var workerWg sync.WaitGroup

	for range workers {
		mine := owner.Clone()

		workerWg.Add(1)

		go func() {
			defer workerWg.Done()
			defer mine.Drop()

			for range iterations {
				clone := mine.Clone()
				(*clone.Get()).MustBeAlive()
				clone.Drop()
			}
		}()
	}

	weak := owner.Downgrade()
	upgraderDone := make(chan int)

	go func() {
		defer weak.Drop()

		successes := 0

		for {
			upgraded, ok := weak.Upgrade().Get()
			if !ok {
				upgraderDone <- successes
				return
			}

			(*upgraded.Get()).MustBeAlive()
			upgraded.Drop()

			successes++
		}
	}()

	workerWg.Wait()
	assert.Zero(t, tracker.Destroyed())

	owner.Drop()
	<-upgraderDone

	assert.Eventually(t, func() bool { return tracker.Freed() == 1 }, 5*time.Second, time.Millisecond)
	assertCleanLifecycle(t, tracker, []int{id})
}

// Random clone, downgrade, upgrade and drop operations over many cells from many goroutines.
func TestRandomOperationsNeverLeak(t *testing.T) {
	t.Parallel()

	const (
		cells      = 16
		workers    = 8
		operations = 2000
	)

	tracker := celltrack.NewTracker()

	owners := make([]*arc.Arc[*celltrack.Payload], cells)
	ids := make([]int, cells)

	for i := range owners {
		owners[i] = tracker.NewObserved(i)
		ids[i] = (*owners[i].Get()).ID
	}

	var wg sync.WaitGroup

	for worker := range workers {
		strong := make([]*arc.Arc[*celltrack.Payload], 0, cells)
		for _, owner := range owners {
			strong = append(strong, owner.Clone())
		}

		wg.Add(1)

		go func() {
			defer wg.Done()

			rng := rand.New(rand.NewPCG(uint64(worker), 0))
			weak := []*arc.Weak[*celltrack.Payload]{}

			for range operations {
				switch rng.IntN(5) {
				case 0:
					if len(strong) > 0 {
						strong = append(strong, strong[rng.IntN(len(strong))].Clone())
					}
				case 1:
					if len(strong) > 0 {
						weak = append(weak, strong[rng.IntN(len(strong))].Downgrade())
					}
				case 2:
					if len(weak) > 0 {
						if upgraded, ok := weak[rng.IntN(len(weak))].Upgrade().Get(); ok {
							(*upgraded.Get()).MustBeAlive()
							strong = append(strong, upgraded)
						}
					}
				case 3:
					if len(strong) > 0 {
						i := rng.IntN(len(strong))
						(*strong[i].Get()).MustBeAlive()
						strong[i].Drop()
						strong = append(strong[:i], strong[i+1:]...)
					}
				case 4:
					if len(weak) > 0 {
						i := rng.IntN(len(weak))
						weak[i].Drop()
						weak = append(weak[:i], weak[i+1:]...)
					}
				}
			}

			for _, handle := range strong {
				handle.Drop()
			}

			for _, handle := range weak {
				handle.Drop()
			}
		}()
	}

	for _, owner := range owners {
		owner.Drop()
	}

	wg.Wait()

	assertCleanLifecycle(t, tracker, ids)
}

// Once an upgrade has failed, no later upgrade of any weak handle of the same cell succeeds.
func TestUpgradeIsMonotonic(t *testing.T) {
	t.Parallel()

	const (
		upgraders = 8
		attempts  = 500
	)

	for round := range 20 {
		owner := arc.New(round)
		survivor := owner.Downgrade()

		var (
			dead       atomic.Bool
			violations atomic.Int32
			wg         sync.WaitGroup
		)

		start := make(chan struct{})

		for range upgraders {
			weak := owner.Downgrade()

			wg.Add(1)

			go func() {
				defer wg.Done()
				defer weak.Drop()

				<-start

				for range attempts {
					deadBefore := dead.Load()

					upgraded, ok := weak.Upgrade().Get()
					if !ok {
						dead.Store(true)
						continue
					}

					if deadBefore {
						violations.Add(1)
					}

					upgraded.Drop()
				}
			}()
		}

		close(start)
		owner.Drop()

		wg.Wait()

		require.Zero(t, violations.Load(), "round %d", round)
		assert.True(t, survivor.Upgrade().IsNone())

		survivor.Drop()
	}
}

// A clone racing with GetMut must never let a reader observe the payload during an exclusive write.
func TestGetMutExcludesConcurrentReaders(t *testing.T) {
	t.Parallel()

	type counter struct {
		value int
	}

	const rounds = 5000

	owner := arc.New(&counter{value: 0})

	clones := make(chan *arc.Arc[*counter])

	var (
		activeReaders atomic.Int32
		overlaps      atomic.Int32
		readerDone    = make(chan struct{})
	)

	go func() {
		defer close(readerDone)

		for clone := range clones {
			activeReaders.Add(1)
			_ = (*clone.Get()).value
			activeReaders.Add(-1)
			clone.Drop()
		}
	}()

	exclusive := 0

	for i := range rounds {
		if ptr, ok := owner.GetMut().Get(); ok {
			if activeReaders.Load() != 0 {
				overlaps.Add(1)
			}

			(*ptr).value++
			exclusive++
		}

		if i%2 == 0 {
			clones <- owner.Clone()
		}
	}

	close(clones)
	<-readerDone

	assert.Zero(t, overlaps.Load())
	assert.Equal(t, exclusive, (*owner.Get()).value)
	assert.Positive(t, exclusive)

	owner.Drop()
}
