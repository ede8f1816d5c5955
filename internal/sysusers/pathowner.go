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
	"syscall"

	"github.com/pkg/errors"
)

// PathOwner resolves the owning UID and GID of a filesystem path, for
// id_hint values that are absolute paths rather than literal numbers
// or "-". It is a seam distinct from afero.Fs because ownership bits
// aren't part of afero's ReadOnly/MemMap abstractions.
type PathOwner interface {
	Owner(path string) (uid, gid int, err error)
}

// osPathOwner stats real files under root on the real OS filesystem.
type osPathOwner struct {
	root string
}

// NewOSPathOwner returns the production PathOwner, rooted at root
// (empty for the real root).
func NewOSPathOwner(root string) PathOwner { return osPathOwner{root: root} }

func (o osPathOwner) Owner(p string) (int, int, error) {
	full := RootedPath(o.root, p)
	fi, err := os.Stat(full)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "stat %s", full)
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, errors.Errorf("cannot determine owner of %s on this platform", full)
	}
	return int(st.Uid), int(st.Gid), nil
}

// FakePathOwner is a PathOwner backed by an in-memory map, used by
// tests that want to exercise path-hint resolution without touching
// the real filesystem.
type FakePathOwner map[string][2]int

func (f FakePathOwner) Owner(p string) (int, int, error) {
	v, ok := f[p]
	if !ok {
		return 0, 0, errors.Errorf("stat %s: no such file", p)
	}
	return v[0], v[1], nil
}
