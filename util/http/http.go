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

// Serves debugging and monitoring HTTP endpoints.
package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	"github.com/kubewharf/sharedcell/util/errors"
)

const (
	readHeaderTimeout = time.Second * 10
	shutdownTimeout   = time.Second * 5
)

// Serves mux on addr until ctx is canceled.
//
// Returns once the listener is bound; serving continues in the background.
// The returned channel receives the terminal serve error, if any, and is then closed.
func Serve(ctx context.Context, name string, addr string, mux *http.ServeMux) (net.Addr, <-chan error, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, errors.TagWrapf("Listen", err, "%s server listen on %q", name, addr)
	}

	//nolint:exhaustruct
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)

		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.TagWrapf("Serve", err, "%s HTTP server error", name)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancelFunc := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancelFunc()

		if err := server.Shutdown(shutdownCtx); err != nil {
			klog.FromContext(ctx).Error(err, "server shutdown", "server", name)
		}
	}()

	klog.FromContext(ctx).Info("serving HTTP", "server", name, "addr", listener.Addr().String())

	return listener.Addr(), errCh, nil
}
