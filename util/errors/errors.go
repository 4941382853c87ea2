// Copyright 2024 The Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package errors declares the error kinds used across mon/soc: package-
// level sentinel errors built with errors.New, rather than distinct
// error types.
package errors

import "errors"

// Kinds classify the broad category an error falls under. These are never returned directly; they
// are the target of errors.Is after Wrap.
var (
	ErrTransient = errors.New("transient")
	ErrTimeout   = errors.New("timeout")
	ErrAuthFatal = errors.New("auth fatal")
	ErrDecode    = errors.New("decode")
)

// Component sentinels.
var (
	ErrNotFound         = errors.New("not found")
	ErrAgain            = errors.New("again")
	ErrNotSupported     = errors.New("auth protocol not supported")
	ErrNoValidMonitor   = errors.New("no valid monitor")
	ErrShutdown         = errors.New("client shut down")
	ErrNoRotatingSecret = errors.New("no rotating secret available")
)

type kindError struct {
	kind Kind
	msg  string
	err  error
}

// Kind is one of the sentinels above, used as a comparison target for Is.
type Kind = error

func (e *kindError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *kindError) Unwrap() error {
	return e.err
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

// Wrap annotates err with kind so errors.Is(result, kind) reports true,
// while preserving err's message and chain.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, msg: msg, err: err}
}

// New builds a fresh error carrying kind as its Is-target.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Is reports whether err (or anything it wraps) is kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}
