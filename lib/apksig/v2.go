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
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sassoftware/apkseal/lib/x509tools"
	"github.com/sassoftware/apkseal/lib/zipslicer"
)

type signingBlock struct {
	e                             *Engine
	payload, centralDir, endOfDir DataSource

	done  bool
	block []byte
	err   error
}

func (r *signingBlock) Done() error {
	if r.done {
		return errors.New("apksig: signing block request already completed")
	}
	r.done = true
	if r.e.closed {
		r.err = ErrClosed
	} else {
		r.block, r.err = r.e.signingBlock(r.payload, r.centralDir, r.endOfDir)
	}
	return r.err
}

func (r *signingBlock) Block() ([]byte, error) {
	if !r.done {
		return nil, fmt.Errorf("%w: signing block requested before Done", ErrPending)
	}
	return r.block, r.err
}

// eocdView returns a copy of the end of central directory record with the
// directory offset pointing at the end of the payload, which is where the
// signing block will be inserted
func eocdView(endOfDir DataSource, payloadSize int64) (DataSource, error) {
	if endOfDir.Size() < zipslicer.DirectoryEndLen {
		return nil, errors.New("apksig: end of central directory is truncated")
	}
	blob := make([]byte, endOfDir.Size())
	if _, err := endOfDir.ReadAt(blob, 0); err != nil && err != io.EOF {
		return nil, err
	}
	if _, err := zipslicer.ParseEndRecord(blob); err != nil {
		return nil, fmt.Errorf("apksig: %w", err)
	}
	binary.LittleEndian.PutUint32(blob[zipslicer.DirectoryOffsetField:], uint32(payloadSize))
	return bytes.NewReader(blob), nil
}

func (e *Engine) signingBlock(payload, centralDir, endOfDir DataSource) ([]byte, error) {
	eocd, err := eocdView(endOfDir, payload.Size())
	if err != nil {
		return nil, err
	}
	digest, err := contentDigest([]DataSource{payload, centralDir, eocd}, e.st.hash, e.cfg.Executor)
	if err != nil {
		return nil, fmt.Errorf("apksig: computing content digest: %w", err)
	}
	certs := make([][]byte, len(e.cfg.Certificates))
	for i, cert := range e.cfg.Certificates {
		certs[i] = cert.Raw
	}
	signedData, err := apkSignedData{
		Digests:      []apkAttribute{{ID: e.st.id, Value: digest}},
		Certificates: certs,
	}.marshal()
	if err != nil {
		return nil, err
	}
	sig, err := e.signV2(signedData.Bytes())
	if err != nil {
		return nil, err
	}
	signers, err := marshalSigners([]apkSigner{{
		SignedData: signedData,
		Signatures: []apkAttribute{{ID: e.st.id, Value: sig}},
		PublicKey:  e.cfg.Certificates[0].RawSubjectPublicKeyInfo,
	}})
	if err != nil {
		return nil, err
	}
	if err := e.checkSigners(signers, digest); err != nil {
		return nil, fmt.Errorf("apksig: signing block failed self-check: %w", err)
	}
	block := assembleBlock(sigApkV2, signers)
	e.log.Debug().
		Int("size", len(block)).
		Int64("offset", payload.Size()).
		Str("algorithm", fmt.Sprintf("0x%04x", e.st.id)).
		Msg("APK signing block created")
	return block, nil
}

func (e *Engine) signV2(signedData []byte) ([]byte, error) {
	d := e.st.hash.New()
	d.Write(signedData)
	sig, err := e.cfg.PrivateKey.Sign(rand.Reader, d.Sum(nil), e.st.hash)
	if err != nil {
		return nil, fmt.Errorf("apksig: signing: %w", err)
	}
	return sig, nil
}

// checkSigners decodes the signer sequence the way a verifier would and
// checks the signature and digest against the certificate
func (e *Engine) checkSigners(blob, digest []byte) error {
	signers, err := parseSigners(blob)
	if err != nil {
		return err
	} else if len(signers) != 1 {
		return fmt.Errorf("expected 1 signer, found %d", len(signers))
	}
	signer := signers[0]
	leaf := e.cfg.Certificates[0]
	if !bytes.Equal(signer.PublicKey, leaf.RawSubjectPublicKeyInfo) {
		return errors.New("public key does not match certificate")
	}
	sd, err := parseSignedData(signer.SignedData)
	if err != nil {
		return err
	}
	if len(sd.Certificates) == 0 || !bytes.Equal(sd.Certificates[0], leaf.Raw) {
		return errors.New("signed data does not start with the signing certificate")
	}
	if len(sd.Digests) != 1 || sd.Digests[0].ID != e.st.id || !bytes.Equal(sd.Digests[0].Value, digest) {
		return errors.New("content digest mismatch")
	}
	if len(signer.Signatures) != 1 || signer.Signatures[0].ID != e.st.id {
		return errors.New("signature algorithm mismatch")
	}
	d := e.st.hash.New()
	d.Write(signer.SignedData.Bytes())
	return x509tools.Verify(leaf.PublicKey, e.st.hash, d.Sum(nil), signer.Signatures[0].Value)
}

// assembleBlock wraps an ID-value pair in an APK Signing Block
func assembleBlock(id uint32, value []byte) []byte {
	pairLen := 4 + len(value)
	// size excludes the leading size field itself
	size := 8 + pairLen + 8 + len(sigMagic)
	block := make([]byte, 0, 8+size)
	block = binary.LittleEndian.AppendUint64(block, uint64(size))
	block = binary.LittleEndian.AppendUint64(block, uint64(pairLen))
	block = binary.LittleEndian.AppendUint32(block, id)
	block = append(block, value...)
	block = binary.LittleEndian.AppendUint64(block, uint64(size))
	block = append(block, sigMagic...)
	return block
}
