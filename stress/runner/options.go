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

package runner

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/kubewharf/sharedcell/util/errors"
)

type Options struct {
	// Number of distinct cells kept in the registry.
	Cells int
	// Number of goroutines cloning and dropping owning handles.
	Cloners int
	// Number of goroutines upgrading weak handles.
	Upgraders int
	// Operations per worker. Zero runs until the context is canceled.
	Iterations int
	// Maximum owning handles held by a cloner at once.
	CloneDepth int

	ReportInterval time.Duration
	MetricsAddr    string
}

func DefaultOptions() Options {
	return Options{
		Cells:          16,
		Cloners:        8,
		Upgraders:      2,
		Iterations:     100000,
		CloneDepth:     4,
		ReportInterval: time.Second * 5,
		MetricsAddr:    ":9090",
	}
}

func (options *Options) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&options.Cells, "cells", options.Cells, "number of shared cells in the registry")
	fs.IntVar(&options.Cloners, "cloners", options.Cloners, "number of goroutines cloning and dropping owning handles")
	fs.IntVar(&options.Upgraders, "upgraders", options.Upgraders, "number of goroutines upgrading weak handles")
	fs.IntVar(
		&options.Iterations,
		"iterations",
		options.Iterations,
		"operations per worker goroutine; 0 runs until interrupted",
	)
	fs.IntVar(&options.CloneDepth, "clone-depth", options.CloneDepth, "maximum owning handles held by a cloner at once")
	fs.DurationVar(&options.ReportInterval, "report-interval", options.ReportInterval, "interval between progress logs")
	fs.StringVar(&options.MetricsAddr, "metrics-addr", options.MetricsAddr, "address to serve /metrics on; empty to disable")
}

func (options *Options) Validate() error {
	if options.Cells < 1 {
		return errors.TagErrorf("InvalidCells", "--cells must be positive, got %d", options.Cells)
	}

	if options.Cloners < 0 || options.Upgraders < 0 {
		return errors.TagErrorf(
			"InvalidWorkers",
			"worker counts must not be negative, got --cloners=%d --upgraders=%d",
			options.Cloners, options.Upgraders,
		)
	}

	if options.Cloners+options.Upgraders == 0 {
		return errors.TagErrorf("InvalidWorkers", "at least one cloner or upgrader is required")
	}

	if options.Iterations < 0 {
		return errors.TagErrorf("InvalidIterations", "--iterations must not be negative, got %d", options.Iterations)
	}

	if options.CloneDepth < 1 {
		return errors.TagErrorf("InvalidCloneDepth", "--clone-depth must be positive, got %d", options.CloneDepth)
	}

	if options.ReportInterval <= 0 {
		return errors.TagErrorf(
			"InvalidReportInterval",
			"--report-interval must be positive, got %s",
			options.ReportInterval,
		)
	}

	return nil
}
