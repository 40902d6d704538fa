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

// Package runner drives concurrent clone, drop and upgrade traffic against a set of shared cells
// and verifies their lifecycle invariants.
package runner

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/kubewharf/sharedcell/arc"
	"github.com/kubewharf/sharedcell/arc/observer"
	"github.com/kubewharf/sharedcell/arc/registry"
	"github.com/kubewharf/sharedcell/internal/celltrack"
	"github.com/kubewharf/sharedcell/util/errors"
	o11yklog "github.com/kubewharf/sharedcell/util/o11y/klog"
	"github.com/kubewharf/sharedcell/util/o11y/metrics"
	"github.com/kubewharf/sharedcell/util/util"
)

const (
	// Number of upgrade attempts an upgrader makes on each weak handle.
	upgradeAttempts = 4
	// Number of violation errors kept for the error returned by Run.
	maxRetainedViolations = 16
)

type Args struct {
	Options  Options
	Clock    clock.WithTicker
	Observer observer.Observer
	// Receives the violation counter. A private registry is used if nil.
	Metrics *prometheus.Registry
	// Called after each progress log. May be nil.
	OnReport func(Progress)
	// Seeds the random generators of the workers.
	Seed uint64
}

type Runner struct {
	options  Options
	clk      clock.WithTicker
	onReport func(Progress)
	seed     uint64

	tracker  *celltrack.Tracker
	registry *registry.Registry[int, *celltrack.Payload]

	operations    atomic.Int64
	upgrades      atomic.Int64
	upgradeMisses atomic.Int64
	peakStrong    atomic.Int32
	violations    atomic.Int64

	violationHandle    metrics.Handle[violationTags, int]
	retainedViolations []error
	retainedMu         sync.Mutex
}

type violationTags struct {
	Reason string
}

func New(args Args) *Runner {
	tracker := celltrack.NewTracker()

	cells := registry.New[int, *celltrack.Payload](tracker.Options(
		arc.WithName[*celltrack.Payload]("stress"),
		arc.WithObserver[*celltrack.Payload](tracker.Observer()),
		arc.WithObserver[*celltrack.Payload](args.Observer),
	)...)

	metricsRegistry := args.Metrics
	if metricsRegistry == nil {
		metricsRegistry = prometheus.NewRegistry()
	}

	violationHandle := metrics.Register(
		metricsRegistry,
		"sharedcell_stress_violations_total",
		"Number of lifecycle invariant violations detected by the stress runner.",
		metrics.IntCounter(),
		metrics.NewReflectTags[violationTags](),
	)

	return &Runner{
		options:            args.Options,
		clk:                args.Clock,
		onReport:           args.OnReport,
		seed:               args.Seed,
		tracker:            tracker,
		registry:           cells,
		operations:         atomic.Int64{},
		upgrades:           atomic.Int64{},
		upgradeMisses:      atomic.Int64{},
		peakStrong:         atomic.Int32{},
		violations:         atomic.Int64{},
		violationHandle:    violationHandle,
		retainedViolations: []error{},
		retainedMu:         sync.Mutex{},
	}
}

// A snapshot of the runner counters.
type Progress struct {
	Operations    int64
	Upgrades      int64
	UpgradeMisses int64
	PeakStrong    int32

	Created   int64
	Destroyed int64
	Freed     int64

	RegistryEntries int
	Violations      int64
}

func (progress Progress) LogKvs() []any {
	return []any{
		"operations", progress.Operations,
		"upgrades", progress.Upgrades,
		"upgradeMisses", progress.UpgradeMisses,
		"peakStrong", progress.PeakStrong,
		"created", progress.Created,
		"destroyed", progress.Destroyed,
		"freed", progress.Freed,
		"registryEntries", progress.RegistryEntries,
		"violations", progress.Violations,
	}
}

func (runner *Runner) Progress() Progress {
	return Progress{
		Operations:      runner.operations.Load(),
		Upgrades:        runner.upgrades.Load(),
		UpgradeMisses:   runner.upgradeMisses.Load(),
		PeakStrong:      runner.peakStrong.Load(),
		Created:         runner.tracker.Created(),
		Destroyed:       runner.tracker.Destroyed(),
		Freed:           runner.tracker.Freed(),
		RegistryEntries: runner.registry.Len(),
		Violations:      runner.violations.Load(),
	}
}

// Runs the workers until each completes its iterations or ctx is canceled,
// then releases every cell and checks that each was destroyed and freed exactly once.
//
// Returns an error tagged "Violation" if any invariant was broken.
func (runner *Runner) Run(ctx context.Context) (Progress, error) {
	logger := klog.FromContext(ctx)
	startTime := runner.clk.Now()

	workerCtx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	var wg sync.WaitGroup

	workerID := uint64(0)

	spawn := func(count int, worker func(context.Context, *rand.Rand)) {
		for range count {
			rng := rand.New(rand.NewPCG(runner.seed, workerID))
			workerID++

			wg.Add(1)

			go func() {
				defer wg.Done()
				worker(workerCtx, rng)
			}()
		}
	}

	spawn(runner.options.Cloners, runner.runCloner)
	spawn(runner.options.Upgraders, runner.runUpgrader)

	reporterDone := make(chan util.Empty)

	go func() {
		defer close(reporterDone)
		runner.reportLoop(workerCtx)
	}()

	wg.Wait()
	cancelFunc()
	<-reporterDone

	runner.registry.Close()

	final := runner.Progress()
	if final.Created != final.Destroyed {
		runner.violation(ctx, errors.TagWrapf("Verify", errors.TagErrorf(
			"Leak",
			"%d cells created but %d payloads destroyed",
			final.Created, final.Destroyed,
		), "verify destruction"))
	}

	if final.Created != final.Freed {
		runner.violation(ctx, errors.TagWrapf("Verify", errors.TagErrorf(
			"Leak",
			"%d cells created but %d allocations freed",
			final.Created, final.Freed,
		), "verify free"))
	}

	final = runner.Progress()
	logger.Info("stress run complete", append(final.LogKvs(), "duration", runner.clk.Since(startTime))...)

	if final.Violations > 0 {
		runner.retainedMu.Lock()
		defer runner.retainedMu.Unlock()

		return final, errors.TagWrapf(
			"Violation",
			errors.Join(runner.retainedViolations...),
			"%d lifecycle violations detected",
			final.Violations,
		)
	}

	return final, nil
}

func (runner *Runner) shouldContinue(ctx context.Context, iteration int) bool {
	if runner.options.Iterations > 0 && iteration >= runner.options.Iterations {
		return false
	}

	return ctx.Err() == nil
}

// Acquires a random cell, fans it out into several owning handles, reads through all of them
// and drops them in random order.
func (runner *Runner) runCloner(ctx context.Context, rng *rand.Rand) {
	handles := make([]*arc.Arc[*celltrack.Payload], 0, runner.options.CloneDepth)

	for iteration := 0; runner.shouldContinue(ctx, iteration); iteration++ {
		key := rng.IntN(runner.options.Cells)
		handles = append(handles[:0], runner.registry.GetOrCreate(key, runner.tracker.NewPayload))

		depth := 1 + rng.IntN(runner.options.CloneDepth)
		for len(handles) < depth {
			handles = append(handles, handles[rng.IntN(len(handles))].Clone())
		}

		util.AtomicMax(&runner.peakStrong, int32(handles[0].StrongCount()))

		for _, handle := range handles {
			if err := checkPayload(key, *handle.Get()); err != nil {
				runner.violation(ctx, errors.TagWrapf("Cloner", err, "read cloned handle"))
			}
		}

		rng.Shuffle(len(handles), func(i, j int) { handles[i], handles[j] = handles[j], handles[i] })

		for _, handle := range handles {
			handle.Drop()
		}

		runner.operations.Add(1)
	}
}

// Keeps only a weak handle to a random cell and repeatedly upgrades it
// while cloners race to drop the last owning handle.
func (runner *Runner) runUpgrader(ctx context.Context, rng *rand.Rand) {
	for iteration := 0; runner.shouldContinue(ctx, iteration); iteration++ {
		key := rng.IntN(runner.options.Cells)

		owner := runner.registry.GetOrCreate(key, runner.tracker.NewPayload)
		weak := owner.Downgrade()
		owner.Drop()

		dead := false

		for range upgradeAttempts {
			upgraded, ok := weak.Upgrade().Get()
			if !ok {
				dead = true

				runner.upgradeMisses.Add(1)

				continue
			}

			if dead {
				runner.violation(ctx, errors.TagWrapf("Upgrader", errors.TagErrorf(
					"UpgradeAfterDestroy",
					"key %d upgraded after an earlier upgrade observed the payload destroyed",
					key,
				), "upgrade weak handle"))
			}

			runner.upgrades.Add(1)

			if err := checkPayload(key, *upgraded.Get()); err != nil {
				runner.violation(ctx, errors.TagWrapf("Upgrader", err, "read upgraded handle"))
			}

			upgraded.Drop()
		}

		weak.Drop()

		runner.operations.Add(1)
	}
}

func checkPayload(key int, payload *celltrack.Payload) error {
	if payload.Poisoned() {
		return errors.TagErrorf("UseAfterDestroy", "payload %d of key %d read after destruction", payload.ID, key)
	}

	if payload.Value != key {
		return errors.TagErrorf("WrongPayload", "key %d resolved to payload of key %d", key, payload.Value)
	}

	return nil
}

func (runner *Runner) violation(ctx context.Context, err error) {
	runner.violations.Add(1)
	runner.violationHandle.Emit(1, violationTags{Reason: errors.SerializeTags(err)})

	klog.FromContext(ctx).Error(err, "lifecycle violation", o11yklog.ErrTagKvs(err)...)

	runner.retainedMu.Lock()
	defer runner.retainedMu.Unlock()

	if len(runner.retainedViolations) < maxRetainedViolations {
		runner.retainedViolations = append(runner.retainedViolations, err)
	}
}

func (runner *Runner) reportLoop(ctx context.Context) {
	ticker := runner.clk.NewTicker(runner.options.ReportInterval)
	defer ticker.Stop()

	lastOperations := int64(0)
	lastTick := runner.clk.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			swept := runner.registry.Sweep()
			progress := runner.Progress()

			rate := 0.0
			if elapsed := now.Sub(lastTick); elapsed > 0 {
				rate = float64(progress.Operations-lastOperations) / elapsed.Seconds()
			}

			lastOperations = progress.Operations
			lastTick = now

			klog.FromContext(ctx).Info(
				"progress",
				append(progress.LogKvs(), "swept", swept, "opsPerSecond", rate)...,
			)

			if runner.onReport != nil {
				runner.onReport(progress)
			}
		}
	}
}
