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

package signedapk

import (
	"github.com/sassoftware/apkseal/lib/ziparchive"
)

// contentCache remembers the contents of entries as they are added so that
// inspecting them right afterwards doesn't need to decompress them again.
// Each cached entry is handed out once.
type contentCache struct {
	Archive
	entries map[string][]byte
}

func newContentCache(a Archive) *contentCache {
	return &contentCache{Archive: a, entries: make(map[string][]byte)}
}

func (c *contentCache) Add(e ziparchive.Entry) error {
	if err := c.Archive.Add(e); err != nil {
		return err
	}
	c.entries[e.Name] = e.Content
	return nil
}

func (c *contentCache) ContentOf(name string) ([]byte, bool, error) {
	if blob, ok := c.entries[name]; ok {
		delete(c.entries, name)
		return blob, true, nil
	}
	return c.Archive.ContentOf(name)
}

func (c *contentCache) Delete(name string) error {
	if err := c.Archive.Delete(name); err != nil {
		return err
	}
	delete(c.entries, name)
	return nil
}

func (c *contentCache) Len() int {
	return len(c.entries)
}
