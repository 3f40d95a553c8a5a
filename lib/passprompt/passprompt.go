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

// Package passprompt asks for the passwords that protect key files
package passprompt

import (
	"errors"
	"fmt"
	"os"

	"github.com/howeyc/gopass"
	"golang.org/x/term"
)

// ErrNoTerminal is returned when a password is needed but there is nobody
// to ask
var ErrNoTerminal = errors.New("password required but stdin is not a terminal")

type PasswordGetter interface {
	// GetPasswd returns a password, or "" if the user gave up
	GetPasswd(prompt string) (string, error)
}

// PasswordPrompt asks on the controlling terminal
type PasswordPrompt struct{}

func (PasswordPrompt) GetPasswd(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", ErrNoTerminal
	}
	pw, err := gopass.GetPasswdPrompt(prompt, false, os.Stdin, os.Stderr)
	if errors.Is(err, gopass.ErrInterrupted) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// Fixed always returns the same password, then gives up if it was wrong
type Fixed struct {
	Password string
	used     bool
}

func (f *Fixed) GetPasswd(prompt string) (string, error) {
	if f.used {
		return "", nil
	}
	f.used = true
	return f.Password, nil
}

// FromEnv returns a getter for the password in the named environment
// variable if it is set, otherwise an interactive prompt
func FromEnv(name string) PasswordGetter {
	if pw, ok := os.LookupEnv(name); ok {
		return &Fixed{Password: pw}
	}
	return PasswordPrompt{}
}
