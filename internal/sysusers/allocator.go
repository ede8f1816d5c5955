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

import "github.com/pkg/errors"

// PendingSet is the in-memory record of items that will be created at
// commit time, keyed by their chosen numeric ID. An item appears in
// at most one pending set; once inserted its ID is frozen.
type PendingSet map[int]*Item

// Allocator validates candidate IDs against all four known namespaces
// (the pending set, the loaded database, and optionally the
// name-service probe) and scans downward for a free one. It is pure
// decision logic: it never touches the filesystem.
type Allocator struct {
	DB    *Database
	Probe NameServiceProbe
	// ProbeEnabled is false whenever an alternate root is in effect;
	// the name service only ever reflects the real root.
	ProbeEnabled bool

	PendingUIDs PendingSet
	PendingGIDs PendingSet

	// SearchUID and SearchGID are the allocator cursors, shared across
	// every item processed in this run. They only ever decrease.
	SearchUID int
	SearchGID int

	SystemUIDMax int
	SystemGIDMax int
}

// NewAllocator builds an Allocator with both cursors initialized to
// the host's configured system-range maximum.
func NewAllocator(db *Database, probe NameServiceProbe, probeEnabled bool, systemUIDMax, systemGIDMax int) *Allocator {
	return &Allocator{
		DB:           db,
		Probe:        probe,
		ProbeEnabled: probeEnabled,
		PendingUIDs:  PendingSet{},
		PendingGIDs:  PendingSet{},
		SearchUID:    systemUIDMax,
		SearchGID:    systemGIDMax,
		SystemUIDMax: systemUIDMax,
		SystemGIDMax: systemGIDMax,
	}
}

// UIDIsOK reports whether uid is free to assign to name as a UID. The
// "same name" exception lets a user and its paired group share a
// numeric ID.
func (a *Allocator) UIDIsOK(uid int, name string) (bool, error) {
	if _, taken := a.PendingUIDs[uid]; taken {
		return false, nil
	}
	if holder, taken := a.PendingGIDs[uid]; taken && holder.Name != name {
		return false, nil
	}
	if _, taken := a.DB.UserByID[uid]; taken {
		return false, nil
	}
	if holderName, taken := a.DB.GroupByID[uid]; taken && holderName != name {
		return false, nil
	}
	if a.ProbeEnabled {
		if _, found, err := a.Probe.UserByID(uid); err != nil {
			return false, errors.Wrapf(err, "probe uid %d", uid)
		} else if found {
			return false, nil
		}
		if groupName, found, err := a.Probe.GroupByID(uid); err != nil {
			return false, errors.Wrapf(err, "probe gid %d", uid)
		} else if found && groupName != name {
			return false, nil
		}
	}
	return true, nil
}

// GIDIsOK reports whether gid is free to assign as a GID. Unlike
// UIDIsOK it rejects the ID if any of the four namespaces already
// holds it, in either the user or group role: there is no name
// exception for groups.
func (a *Allocator) GIDIsOK(gid int) (bool, error) {
	if _, taken := a.PendingUIDs[gid]; taken {
		return false, nil
	}
	if _, taken := a.PendingGIDs[gid]; taken {
		return false, nil
	}
	if _, taken := a.DB.UserByID[gid]; taken {
		return false, nil
	}
	if _, taken := a.DB.GroupByID[gid]; taken {
		return false, nil
	}
	if a.ProbeEnabled {
		if _, found, err := a.Probe.UserByID(gid); err != nil {
			return false, errors.Wrapf(err, "probe uid %d", gid)
		} else if found {
			return false, nil
		}
		if _, found, err := a.Probe.GroupByID(gid); err != nil {
			return false, errors.Wrapf(err, "probe gid %d", gid)
		} else if found {
			return false, nil
		}
	}
	return true, nil
}

// idNamespace is the strategy object the reconciler's single search
// loop is parameterized over: one implementation per kind provides
// the is_ok predicate and the cursor to scan, so add-user and
// add-group share exactly one piece of search logic.
type idNamespace interface {
	isOk(a *Allocator, id int, name string) (bool, error)
	cursor(a *Allocator) *int
}

type uidNamespace struct{}

func (uidNamespace) isOk(a *Allocator, id int, name string) (bool, error) { return a.UIDIsOK(id, name) }
func (uidNamespace) cursor(a *Allocator) *int                             { return &a.SearchUID }

type gidNamespace struct{}

func (gidNamespace) isOk(a *Allocator, id int, _ string) (bool, error) { return a.GIDIsOK(id) }
func (gidNamespace) cursor(a *Allocator) *int                          { return &a.SearchGID }

// searchFreeID scans downward from the namespace's cursor until is_ok
// reports free or the cursor reaches 1. On success the cursor is left
// one below the chosen value, so it is never offered again this run.
// Exhaustion is a fatal per-item error.
func searchFreeID(a *Allocator, ns idNamespace, name string) (int, error) {
	cur := ns.cursor(a)
	for id := *cur; id >= 1; id-- {
		ok, err := ns.isOk(a, id, name)
		if err != nil {
			return 0, err
		}
		if ok {
			*cur = id - 1
			return id, nil
		}
	}
	*cur = 0
	return 0, ErrExhausted
}

// FindFreeUID scans for a free UID for name, starting at the shared
// search_uid cursor.
func (a *Allocator) FindFreeUID(name string) (int, error) {
	return searchFreeID(a, uidNamespace{}, name)
}

// FindFreeGID scans for a free GID, starting at the shared search_gid
// cursor.
func (a *Allocator) FindFreeGID() (int, error) {
	return searchFreeID(a, gidNamespace{}, "")
}
