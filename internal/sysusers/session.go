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
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Session owns the mutable state for one run: the loaded database,
// the pending sets and the two cursors (via Alloc), the alternate-root
// prefix, and whether the name-service probe is enabled. The declared
// sets are built inside Run. It is constructed once per run and
// dropped on exit.
type Session struct {
	FS    afero.Fs
	Root  string
	Log   *logrus.Entry
	Probe NameServiceProbe
	Owner PathOwner

	SystemUIDMax int
	SystemGIDMax int

	DB    *Database
	Alloc *Allocator
}

// DefaultSystemUIDMax and DefaultSystemGIDMax bound the numeric range
// reserved for system accounts when the host doesn't say otherwise.
const (
	DefaultSystemUIDMax = 999
	DefaultSystemGIDMax = 999
)

// NewSession builds a Session for one run. root is the alternate-root
// prefix ("" for the real root); the name-service probe is
// automatically disabled whenever root is non-empty, since looking up
// names against the live system makes no sense under a foreign tree.
func NewSession(fs afero.Fs, root string, log *logrus.Entry) *Session {
	probeEnabled := root == ""
	var probe NameServiceProbe = NoProbe{}
	if probeEnabled {
		probe = NewOSProbe()
	}
	return &Session{
		FS:           fs,
		Root:         root,
		Log:          log,
		Probe:        probe,
		Owner:        NewOSPathOwner(root),
		SystemUIDMax: DefaultSystemUIDMax,
		SystemGIDMax: DefaultSystemGIDMax,
	}
}

// ProbeEnabled reports whether the name-service probe is live for
// this session (false whenever an alternate root is in effect).
func (s *Session) ProbeEnabled() bool {
	_, disabled := s.Probe.(NoProbe)
	return !disabled
}

// BuildDeclared groups parsed items by kind and name, collapsing
// identical duplicates and dropping conflicting ones with a warning:
// two items of the same kind and name must be semantically identical.
func BuildDeclared(items []Item, log *logrus.Entry) (groups, users map[string]*Item) {
	groups = map[string]*Item{}
	users = map[string]*Item{}
	for _, item := range items {
		target := users
		if item.Kind == KindGroup {
			target = groups
		}
		if existing, ok := target[item.Name]; ok {
			if existing.SameDeclaration(item) {
				continue
			}
			log.Warnf("conflicting duplicate declaration for %s %q; keeping the first one seen", item.Kind, item.Name)
			continue
		}
		cp := item
		target[item.Name] = &cp
	}
	return groups, users
}

// Run executes the fixed orchestration sequence: acquire the lock,
// load both databases, reconcile groups then users, write, and
// release the lock on every exit path.
func (s *Session) Run(lock Locker, items []Item) error {
	if err := lock.Lock(); err != nil {
		return errors.Wrap(err, "acquire lock")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.Log.Errorf("release lock: %v", err)
		}
	}()

	db, err := LoadDatabases(s.FS, s.Root)
	if err != nil {
		return errors.Wrap(err, "load databases")
	}
	s.DB = db

	s.Alloc = NewAllocator(db, s.Probe, s.ProbeEnabled(), s.SystemUIDMax, s.SystemGIDMax)

	groups, users := BuildDeclared(items, s.Log)

	rec := &Reconciler{
		DB:    db,
		Alloc: s.Alloc,
		Probe: s.Probe,
		Owner: s.Owner,
		Log:   s.Log,
		FS:    s.FS,
		Root:  s.Root,
	}
	if err := rec.Reconcile(groups, users); err != nil {
		return errors.Wrap(err, "reconcile")
	}

	w := &Writer{FS: s.FS, Root: s.Root, Log: s.Log}
	if err := w.Commit(db, s.Alloc.PendingUIDs, s.Alloc.PendingGIDs); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}
