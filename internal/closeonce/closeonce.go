// Copyright © SAS Institute Inc.
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

// Package closeonce guards a terminal close operation so that it runs exactly
// once. Later calls return the result of the first.
package closeonce

import (
	"sync"
	"sync/atomic"
)

type Closed struct {
	done atomic.Bool
	mu   sync.Mutex
	err  error
}

// Closed returns true once the close function has finished running
func (o *Closed) Closed() bool {
	return o.done.Load()
}

// Close runs f if it has not been run before and returns its result
func (o *Closed) Close(f func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Closed() {
		return o.err
	}
	o.err = f()
	o.done.Store(true)
	return o.err
}

// Err returns the result of the close function, or nil if it has not run yet
func (o *Closed) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}
