//
// Copyright (c) SAS Institute Inc.
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
//

package apksig

import (
	"io"

	"golang.org/x/sync/errgroup"
)

// DataSource is a read-only view of part of a file
type DataSource interface {
	io.ReaderAt
	Size() int64
}

// InspectionRequest asks for the full uncompressed contents of one entry.
// Write the contents and then call Done exactly once.
type InspectionRequest interface {
	io.Writer
	Name() string
	Done() error
}

// NamedEntry is a file the engine wants written to the archive. A nil
// Content means the entry is stale and must be deleted instead.
type NamedEntry struct {
	Name    string
	Content []byte
}

// JarSignatureRequest carries the META-INF entries of a JAR signature. Call
// Done once they have all been written.
type JarSignatureRequest interface {
	Entries() []NamedEntry
	Done() error
}

// SigningBlockRequest computes an APK Signing Block once Done is called.
// Block is only valid after Done.
type SigningBlockRequest interface {
	Done() error
	Block() ([]byte, error)
}

// Executor runs a batch of independent tasks and returns once all have
// finished, reporting the first error
type Executor func(tasks []func() error) error

// Sequential runs tasks one after another in the calling goroutine
func Sequential(tasks []func() error) error {
	for _, task := range tasks {
		if err := task(); err != nil {
			return err
		}
	}
	return nil
}

// ParallelExecutor runs up to n tasks at a time. If n is less than 1 the
// tasks are run sequentially.
func ParallelExecutor(n int) Executor {
	if n < 1 {
		return Sequential
	}
	return func(tasks []func() error) error {
		var eg errgroup.Group
		eg.SetLimit(n)
		for _, task := range tasks {
			eg.Go(task)
		}
		return eg.Wait()
	}
}
