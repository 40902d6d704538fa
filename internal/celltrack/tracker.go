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

// Package celltrack provides instrumented payloads that record shared cell lifecycles.
package celltrack

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kubewharf/sharedcell/arc"
	"github.com/kubewharf/sharedcell/arc/observer"
)

// Written into a payload when it is destroyed.
const Poison uint64 = 0xdead_beef_dead_beef

// A payload that records its own destruction.
type Payload struct {
	ID    int
	Value int

	// Set to Poison by the destructor. Readers holding an owning handle must never observe it.
	guard atomic.Uint64
}

func (payload *Payload) Poisoned() bool {
	return payload.guard.Load() == Poison
}

// Panics if the payload has been destroyed.
func (payload *Payload) MustBeAlive() {
	if payload.Poisoned() {
		panic(fmt.Sprintf("payload %d accessed after destruction", payload.ID))
	}
}

// Event order of a single cell, as seen by the tracker.
type Event string

const (
	EventCreate  Event = "create"
	EventDestroy Event = "destroy"
	EventFree    Event = "free"
)

// Counts creations, destructions and frees of instrumented cells.
type Tracker struct {
	created   atomic.Int64
	destroyed atomic.Int64
	freed     atomic.Int64

	nextID atomic.Int64

	eventsMu sync.Mutex
	events   map[int][]Event
}

func NewTracker() *Tracker {
	return &Tracker{events: map[int][]Event{}}
}

// Creates a cell holding a fresh Payload wired to the tracker.
func (tracker *Tracker) New(value int, opts ...arc.Option[*Payload]) *arc.Arc[*Payload] {
	return arc.New(tracker.NewPayload(value), tracker.Options(opts...)...)
}

func (tracker *Tracker) NewPayload(value int) *Payload {
	//nolint:exhaustruct
	return &Payload{ID: int(tracker.nextID.Add(1)), Value: value}
}

// Returns cell options that record lifecycle events of *Payload cells in the tracker,
// followed by extra.
func (tracker *Tracker) Options(extra ...arc.Option[*Payload]) []arc.Option[*Payload] {
	// Observer events do not carry the payload, so the cell identity travels through the context.
	opts := []arc.Option[*Payload]{
		arc.WithDestructor(func(payload *Payload) {
			if payload.guard.Swap(Poison) == Poison {
				panic(fmt.Sprintf("payload %d destroyed twice", payload.ID))
			}

			tracker.destroyed.Add(1)
			tracker.record(payload.ID, EventDestroy)
		}),
	}

	return append(opts, extra...)
}

// Returns an observer that counts creations and frees of cells whose context was built by CellContext.
func (tracker *Tracker) Observer() observer.Observer {
	//nolint:exhaustruct
	return observer.Observer{
		Create: func(ctx context.Context, _ observer.Create) {
			tracker.created.Add(1)

			if id, ok := ctx.Value(cellIDKey{}).(int); ok {
				tracker.record(id, EventCreate)
			}
		},
		FreeAllocation: func(ctx context.Context, _ observer.FreeAllocation) {
			tracker.freed.Add(1)

			if id, ok := ctx.Value(cellIDKey{}).(int); ok {
				tracker.record(id, EventFree)
			}
		},
	}
}

// Creates a fully instrumented cell: destruction, creation and free are all recorded under the payload ID.
func (tracker *Tracker) NewObserved(value int, opts ...arc.Option[*Payload]) *arc.Arc[*Payload] {
	payload := tracker.NewPayload(value)

	opts = append(
		tracker.Options(opts...),
		arc.WithObserver[*Payload](tracker.Observer()),
		arc.WithContext[*Payload](context.WithValue(context.Background(), cellIDKey{}, payload.ID)),
	)

	return arc.New(payload, opts...)
}

type cellIDKey struct{}

func (tracker *Tracker) record(id int, event Event) {
	tracker.eventsMu.Lock()
	defer tracker.eventsMu.Unlock()

	tracker.events[id] = append(tracker.events[id], event)
}

// Events recorded for the cell whose payload has the given ID.
func (tracker *Tracker) Events(id int) []Event {
	tracker.eventsMu.Lock()
	defer tracker.eventsMu.Unlock()

	return append([]Event(nil), tracker.events[id]...)
}

func (tracker *Tracker) Created() int64   { return tracker.created.Load() }
func (tracker *Tracker) Destroyed() int64 { return tracker.destroyed.Load() }
func (tracker *Tracker) Freed() int64     { return tracker.freed.Load() }
