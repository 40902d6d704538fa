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

// Package errors wraps the standard library error helpers
// and adds low-cardinality tags for reporting error kinds in metrics and logs.
package errors

import (
	goerrors "errors"
	"fmt"
)

func Errorf(format string, args ...any) error { return fmt.Errorf(format, args...) }

// Wraps err with a formatted prefix, preserving it for Is.
func Wrapf(err error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func Is(err, target error) bool { return goerrors.Is(err, target) }

func Join(errs ...error) error { return goerrors.Join(errs...) }
