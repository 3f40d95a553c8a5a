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
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Structures in an APK Signature Scheme v2 block are sequences of uint32
// length-prefixed values. IDs are written bare.
// https://source.android.com/security/apksigning/v2#apk-signature-scheme-v2-block-format

var errTrailingData = errors.New("apksig: trailing data after structure")

// rawValue is an already-encoded item, length prefix included
type rawValue []byte

// Bytes returns the content without the length prefix
func (r rawValue) Bytes() []byte {
	return []byte(r[4:])
}

// lvWriter appends length-prefixed values to a buffer
type lvWriter struct {
	buf []byte
	err error
}

func (w *lvWriter) id(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *lvWriter) bytes(b []byte) {
	w.nested(func() { w.buf = append(w.buf, b...) })
}

// nested prefixes whatever f writes with its length
func (w *lvWriter) nested(f func()) {
	start := len(w.buf)
	w.buf = append(w.buf, 0, 0, 0, 0)
	f()
	size := len(w.buf) - start - 4
	if uint64(size) > math.MaxUint32 {
		w.err = errors.New("apksig: structure too large")
		return
	}
	binary.LittleEndian.PutUint32(w.buf[start:], uint32(size))
}

// lvReader consumes length-prefixed values. The first error sticks and
// later reads return zero values.
type lvReader struct {
	blob []byte
	err  error
}

func (r *lvReader) more() bool {
	return r.err == nil && len(r.blob) > 0
}

func (r *lvReader) id() uint32 {
	if r.err != nil {
		return 0
	} else if len(r.blob) < 4 {
		r.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint32(r.blob)
	r.blob = r.blob[4:]
	return v
}

// raw returns the next value with its length prefix
func (r *lvReader) raw() rawValue {
	if r.err != nil {
		return nil
	} else if len(r.blob) < 4 {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	size := uint64(binary.LittleEndian.Uint32(r.blob))
	if size > uint64(len(r.blob)-4) {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	v := rawValue(r.blob[:4+size])
	r.blob = r.blob[4+size:]
	return v
}

func (r *lvReader) bytes() []byte {
	v := r.raw()
	if v == nil {
		return nil
	}
	return v.Bytes()
}

// nested returns a reader over the next value. Its errors are not reported
// by r.
func (r *lvReader) nested() *lvReader {
	blob := r.bytes()
	return &lvReader{blob: blob, err: r.err}
}

// close reports the first error, or trailing data left over
func (r *lvReader) close() error {
	if r.err != nil {
		return r.err
	} else if len(r.blob) != 0 {
		return errTrailingData
	}
	return nil
}

func writeAttributes(w *lvWriter, attrs []apkAttribute) {
	w.nested(func() {
		for _, a := range attrs {
			w.nested(func() {
				w.id(a.ID)
				w.bytes(a.Value)
			})
		}
	})
}

func readAttributes(r *lvReader) ([]apkAttribute, error) {
	list := r.nested()
	var ret []apkAttribute
	for list.more() {
		item := list.nested()
		a := apkAttribute{ID: item.id(), Value: item.bytes()}
		if err := item.close(); err != nil {
			return nil, err
		}
		ret = append(ret, a)
	}
	if err := list.close(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (sd apkSignedData) marshal() (rawValue, error) {
	w := new(lvWriter)
	w.nested(func() {
		writeAttributes(w, sd.Digests)
		w.nested(func() {
			for _, cert := range sd.Certificates {
				w.bytes(cert)
			}
		})
		writeAttributes(w, sd.Attributes)
	})
	return rawValue(w.buf), w.err
}

func parseSignedData(raw rawValue) (sd apkSignedData, err error) {
	outer := &lvReader{blob: raw}
	r := outer.nested()
	if sd.Digests, err = readAttributes(r); err != nil {
		return sd, err
	}
	certs := r.nested()
	for certs.more() {
		sd.Certificates = append(sd.Certificates, certs.bytes())
	}
	if err := certs.close(); err != nil {
		return sd, err
	}
	if sd.Attributes, err = readAttributes(r); err != nil {
		return sd, err
	}
	if err := r.close(); err != nil {
		return sd, err
	}
	return sd, outer.close()
}

// marshalSigners encodes the value of the v2 ID-value pair
func marshalSigners(signers []apkSigner) ([]byte, error) {
	w := new(lvWriter)
	w.nested(func() {
		for _, s := range signers {
			w.nested(func() {
				w.buf = append(w.buf, s.SignedData...)
				writeAttributes(w, s.Signatures)
				w.bytes(s.PublicKey)
			})
		}
	})
	return w.buf, w.err
}

func parseSigners(blob []byte) ([]apkSigner, error) {
	outer := &lvReader{blob: blob}
	list := outer.nested()
	var signers []apkSigner
	for list.more() {
		r := list.nested()
		s := apkSigner{SignedData: r.raw()}
		sigs, err := readAttributes(r)
		if err != nil {
			return nil, err
		}
		s.Signatures = sigs
		s.PublicKey = r.bytes()
		if err := r.close(); err != nil {
			return nil, err
		}
		signers = append(signers, s)
	}
	if err := list.close(); err != nil {
		return nil, err
	}
	if err := outer.close(); err != nil {
		return nil, err
	}
	return signers, nil
}
