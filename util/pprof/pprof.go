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

package pprof

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/spf13/pflag"
)

type Options struct {
	BlockProfileRate     int
	MutexProfileFraction int
}

func (options *Options) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(
		&options.BlockProfileRate,
		"block-profile",
		options.BlockProfileRate,
		"fraction reciprocal of goroutine blocking events reported in blocking profile",
	)
	fs.IntVar(
		&options.MutexProfileFraction,
		"mutex-profile",
		options.MutexProfileFraction,
		"fraction reciprocal of mutex contention events reported in mutex profile",
	)
}

// Registers the pprof endpoints on mux under /debug/pprof/ and applies the profile rates.
func Register(mux *http.ServeMux, options Options) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	if options.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(options.BlockProfileRate)
	}

	if options.MutexProfileFraction > 0 {
		runtime.SetMutexProfileFraction(options.MutexProfileFraction)
	}
}
