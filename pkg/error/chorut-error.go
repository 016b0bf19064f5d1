/*
Copyright © 2022 - 2025 SUSE LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package error

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ExitCoder is implemented by every error of this package
type ExitCoder interface {
	ExitCode() int
}

// ChorutError is our generic error to pass around exit codes in the error
type ChorutError struct {
	err  string
	code int
}

func (e *ChorutError) Error() string {
	return e.err
}

func (e *ChorutError) ExitCode() int {
	return e.code
}

// NewFromError generates a ChorutError from an existing error,
// maintaining its error message
func NewFromError(err error, code int) error {
	if err == nil {
		return nil
	}
	return &ChorutError{err: err.Error(), code: code}
}

// New generates a ChorutError from a string
func New(err string, code int) error {
	return &ChorutError{err: err, code: code}
}

// ChrootError reports session level failures: invalid roots, lifecycle
// misuse, namespace and privilege problems.
type ChrootError struct {
	msg   string
	code  int
	cause error
}

// NewChrootError returns a ChrootError of the given kind. cause can be nil.
func NewChrootError(code int, msg string, cause error) error {
	return &ChrootError{msg: msg, code: code, cause: cause}
}

func (e *ChrootError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.msg, e.cause.Error())
	}
	return e.msg
}

func (e *ChrootError) ExitCode() int {
	return e.code
}

// Kind returns the exit code identifying the failure kind
func (e *ChrootError) Kind() int {
	return e.code
}

// Message returns the error message without its cause
func (e *ChrootError) Message() string {
	return e.msg
}

func (e *ChrootError) Unwrap() error {
	return e.cause
}

// Is matches any ChrootError of the same kind
func (e *ChrootError) Is(target error) bool {
	t, ok := target.(*ChrootError)
	return ok && t.code == e.code
}

// MountError reports failures of the mount subsystem for a given target
type MountError struct {
	msg    string
	code   int
	target string
	cause  error
}

// NewMountError returns a MountError of the given kind. cause can be nil.
func NewMountError(code int, target, msg string, cause error) error {
	return &MountError{msg: msg, code: code, target: target, cause: cause}
}

func (e *MountError) Error() string {
	msg := e.msg
	if e.target != "" {
		msg = fmt.Sprintf("%s %s", e.msg, e.target)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", msg, e.cause.Error())
	}
	return msg
}

func (e *MountError) ExitCode() int {
	return e.code
}

// Kind returns the exit code identifying the failure kind
func (e *MountError) Kind() int {
	return e.code
}

// Target returns the mount point involved in the failure, if any
func (e *MountError) Target() string {
	return e.target
}

// Message returns the error message without target and cause
func (e *MountError) Message() string {
	return e.msg
}

func (e *MountError) Unwrap() error {
	return e.cause
}

// Is matches any MountError of the same kind
func (e *MountError) Is(target error) bool {
	t, ok := target.(*MountError)
	return ok && t.code == e.code
}

// IsChrootError reports whether err carries a ChrootError of the given kind
func IsChrootError(err error, code int) bool {
	return errors.Is(err, &ChrootError{code: code})
}

// IsMountError reports whether err carries a MountError of the given kind
func IsMountError(err error, code int) bool {
	return errors.Is(err, &MountError{code: code})
}

// ExitCodeOf returns the exit code carried by err, Unknown if none
func ExitCodeOf(err error) int {
	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return Unknown
}

// Combine returns err as is unless it is a multierror, as left by a
// failed rollback. Then the errors are wrapped in an error of the type and
// kind of the first one, or in a ChrootError of the fallback kind if the
// first one carries none.
func Combine(err error, fallback int) error {
	errs, ok := err.(*multierror.Error)
	if !ok || len(errs.Errors) == 0 {
		return err
	}
	first := errs.Errors[0]
	var mErr *MountError
	var cErr *ChrootError
	switch {
	case errors.As(first, &mErr):
		return NewMountError(mErr.Kind(), mErr.Target(), mErr.Message(), errs)
	case errors.As(first, &cErr):
		return NewChrootError(cErr.Kind(), cErr.Message(), errs)
	}
	return NewChrootError(fallback, first.Error(), errs)
}
