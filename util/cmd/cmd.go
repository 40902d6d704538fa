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

// Main process entrypoint.
package cmd

import (
	"context"
	"os"

	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/kubewharf/sharedcell/util/errors"
	o11yklog "github.com/kubewharf/sharedcell/util/o11y/klog"
	"github.com/kubewharf/sharedcell/util/shutdown"
)

// Exit code of a program that returned an error.
const ExitCodeError = 1

// An executable driven by command line flags.
type Program interface {
	// Registers the options of the program.
	AddFlags(fs *pflag.FlagSet)
	// Checks the parsed options.
	Validate() error
	// Runs until completion or until ctx is canceled.
	Run(ctx context.Context) error
}

// Main entrypoint of an executable.
//
// Parses os.Args, runs the program until it returns or a termination signal is received,
// and exits the process with ExitCodeError if it fails.
func Run(program Program) {
	notifier := shutdown.New()
	notifier.WatchSignals()

	if err := tryRun(context.Background(), program, pflag.CommandLine, os.Args[1:], notifier); err != nil {
		klog.ErrorS(err, "program failed", o11yklog.ErrTagKvs(err)...)
		klog.FlushAndExit(klog.ExitFlushTimeout, ExitCodeError)
	}

	klog.Flush()
}

// Used for integration tests.
//
// Performs the same chores as `Run` on a fresh flag set,
// but does not handle termination signals and returns the error instead of exiting.
func MockRunWithCliArgs(ctx context.Context, program Program, cliArgs []string) error {
	return tryRun(ctx, program, pflag.NewFlagSet("mock", pflag.ContinueOnError), cliArgs, shutdown.New())
}

func tryRun(
	baseCtx context.Context,
	program Program,
	fs *pflag.FlagSet,
	cliArgs []string,
	notifier *shutdown.Notifier,
) error {
	o11yklog.AddFlags(fs)
	program.AddFlags(fs)

	if err := fs.Parse(cliArgs); err != nil {
		return errors.TagWrapf("ParseArgs", err, "parse args")
	}

	ctx, cancelFunc := context.WithCancel(baseCtx)
	defer cancelFunc()

	fs.VisitAll(func(f *pflag.Flag) {
		klog.FromContext(ctx).WithValues("name", f.Name, "value", f.Value.String()).V(1).Info("flag")
	})

	if err := program.Validate(); err != nil {
		return errors.TagWrapf("Validate", err, "invalid options")
	}

	notifier.CallOnStop(cancelFunc)

	klog.FromContext(ctx).Info("Startup complete")

	if err := program.Run(ctx); err != nil {
		return errors.TagWrapf("Run", err, "run")
	}

	return nil
}
