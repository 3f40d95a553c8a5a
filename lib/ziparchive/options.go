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

package ziparchive

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Option func(*Archive)

// WithComment sets the zip comment written after the end record, replacing
// any comment carried by an existing archive
func WithComment(comment []byte) Option {
	return func(a *Archive) {
		a.comment = comment
		a.commentSet = true
	}
}

// WithModTime sets the timestamp given to entries that don't specify one
func WithModTime(t time.Time) Option {
	return func(a *Archive) { a.modTime = t }
}

// WithMode sets the permissions of a newly created file
func WithMode(mode os.FileMode) Option {
	return func(a *Archive) { a.mode = mode }
}

// WithTruncate starts a new archive even if path already exists
func WithTruncate() Option {
	return func(a *Archive) { a.truncate = true }
}

func WithLogger(log zerolog.Logger) Option {
	return func(a *Archive) { a.log = log }
}
