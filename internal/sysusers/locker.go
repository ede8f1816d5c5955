/*
Copyright 2024 The go-sysusers Authors.

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

package sysusers

import (
	"os"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// Locker is the single exclusive lock guarding the whole core: every
// on-disk mutation happens between Lock and Unlock. It's the same
// sentinel used by the conventional password-file locking primitive,
// so other standard tools interoperate correctly.
type Locker interface {
	Lock() error
	Unlock() error
}

// fileLocker is the production Locker: a blocking advisory flock(2)
// on /etc/.pwd.lock, created with mode 0600 if missing.
type fileLocker struct {
	path string
	fl   *flock.Flock
}

// NewFileLocker returns the production Locker for path (already
// rewritten for any alternate root).
func NewFileLocker(path string) Locker {
	return &fileLocker{path: path}
}

func (l *fileLocker) Lock() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return errors.Wrapf(err, "create lock file %s", l.path)
	}
	f.Close() //nolint:errcheck // only needed to create the file

	l.fl = flock.New(l.path)
	if err := l.fl.Lock(); err != nil {
		return errors.Wrapf(err, "acquire lock %s", l.path)
	}
	return nil
}

func (l *fileLocker) Unlock() error {
	if l.fl == nil {
		return nil
	}
	return errors.Wrapf(l.fl.Unlock(), "release lock %s", l.path)
}

// NoLock is a Locker that does nothing, for tests that exercise the
// engine against an in-memory filesystem where a real flock(2) call
// makes no sense.
type NoLock struct{}

func (NoLock) Lock() error   { return nil }
func (NoLock) Unlock() error { return nil }
