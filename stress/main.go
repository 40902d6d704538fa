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

// Command stress hammers shared cells with concurrent clone, drop and upgrade traffic
// and exits with a non-zero status if any lifecycle invariant is violated.
package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/kubewharf/sharedcell/arc/observer"
	"github.com/kubewharf/sharedcell/stress/runner"
	"github.com/kubewharf/sharedcell/util/cmd"
	utilhttp "github.com/kubewharf/sharedcell/util/http"
	"github.com/kubewharf/sharedcell/util/o11y/metrics"
	"github.com/kubewharf/sharedcell/util/pprof"
)

type program struct {
	options runner.Options
	pprof   pprof.Options
	seed    uint64
}

func (program *program) AddFlags(fs *pflag.FlagSet) {
	program.options.AddFlags(fs)
	program.pprof.AddFlags(fs)
	fs.Uint64Var(&program.seed, "seed", program.seed, "seed of the worker random generators")
}

func (program *program) Validate() error { return program.options.Validate() }

func (program *program) Run(ctx context.Context) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	obs := observer.NewMetrics(registry).Join(observer.NewLogging())

	if program.options.MetricsAddr != "" {
		mux := http.NewServeMux()
		metrics.RegisterHandler(mux, registry)
		pprof.Register(mux, program.pprof)

		_, serveErrCh, err := utilhttp.Serve(ctx, "metrics", program.options.MetricsAddr, mux)
		if err != nil {
			return err
		}

		go func() {
			if err, hasErr := <-serveErrCh; hasErr {
				klog.FromContext(ctx).Error(err, "metrics server stopped")
			}
		}()
	}

	_, err := runner.New(runner.Args{
		Options:  program.options,
		Clock:    clock.RealClock{},
		Observer: obs,
		OnReport: nil,
		Seed:     program.seed,
	}).Run(ctx)

	return err
}

func main() {
	cmd.Run(&program{
		options: runner.DefaultOptions(),
		pprof:   pprof.Options{BlockProfileRate: 0, MutexProfileFraction: 0},
		seed:    0,
	})
}
