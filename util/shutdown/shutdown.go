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

package shutdown

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/kubewharf/sharedcell/util/util"
)

// Broadcasts a single stop event, triggered by Close or by SIGINT/SIGTERM once WatchSignals is called.
type Notifier struct {
	stopped atomic.Bool
	watchCh chan util.Empty
}

func New() *Notifier {
	return &Notifier{
		stopped: atomic.Bool{},
		watchCh: make(chan util.Empty),
	}
}

func (notifier *Notifier) Close() {
	if notifier.stopped.CompareAndSwap(false, true) {
		close(notifier.watchCh)
	}
}

func (notifier *Notifier) Stopped() bool {
	return notifier.stopped.Load()
}

func (notifier *Notifier) StopChan() <-chan util.Empty {
	return notifier.watchCh
}

func (notifier *Notifier) CallOnStop(fn func()) {
	go func() {
		<-notifier.watchCh
		fn()
	}()
}

func (notifier *Notifier) WatchSignals() {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signalCh
		notifier.Close()
	}()
}
