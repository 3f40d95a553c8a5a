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
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sassoftware/apkseal/lib/zipslicer"
)

// finishV2 closes the archive and inserts a signing block in front of its
// central directory
func (p *Package) finishV2() (err error) {
	start := time.Now()
	defer func() { observe("v2", start, err) }()
	layout, err := p.archive.CloseWithLayout()
	if err != nil {
		return err
	}
	if layout.EndRecord.Size != zipslicer.DirectoryEndLen {
		return fmt.Errorf("%w: end of central directory is %d bytes, a zip comment is not supported",
			ErrPrecondition, layout.EndRecord.Size)
	}
	f, err := os.OpenFile(p.archive.Path(), os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	req, err := p.engine.RequestSigningBlock(
		io.NewSectionReader(f, layout.Payload.Offset, layout.Payload.Size),
		io.NewSectionReader(f, layout.CentralDirectory.Offset, layout.CentralDirectory.Size),
		io.NewSectionReader(f, layout.EndRecord.Offset, layout.EndRecord.Size),
	)
	if err != nil {
		return err
	}
	if err := req.Done(); err != nil {
		return err
	}
	block, err := req.Block()
	if err != nil {
		return err
	}
	if err := InsertSigningBlock(f, block, layout); err != nil {
		return err
	}
	p.log.Debug().
		Int("size", len(block)).
		Int64("offset", layout.CentralDirectory.Offset).
		Msg("signing block inserted")
	return nil
}
