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
	"sort"

	"dario.cat/mergo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Reconciler runs the add-user and add-group state machines against
// an already-loaded Database, accumulating pending creations into the
// Allocator's pending sets. It owns no filesystem state of its own:
// everything it needs to decide IDs comes from DB, Alloc, Probe and
// Owner.
type Reconciler struct {
	DB    *Database
	Alloc *Allocator
	Probe NameServiceProbe
	Owner PathOwner
	Log   *logrus.Entry

	// FS and Root back the shadow-consistency check in resolveUser;
	// they're unused (and the check skipped) when an alternate root
	// is in effect.
	FS   afero.Fs
	Root string
}

// Reconcile resolves every declared group, then every declared user.
// Groups go first, and a group whose name matches an already-declared
// user is folded into that user rather than processed standalone.
// Every user item then resolves its own-name group first, so the pair
// shares a name and, where possible, a numeric ID.
func (r *Reconciler) Reconcile(declaredGroups, declaredUsers map[string]*Item) error {
	// A literal id on a "u" line is, per the schema, a single shared
	// field: it's the user's own desired UID, and it also doubles as
	// a desired GID for the paired group before that group has been
	// through its own resolution. Seed it now so the group-pairing
	// step below can try it as a reuse-paired-UID candidate.
	for _, u := range declaredUsers {
		if u.IDHint.Kind == HintLiteral {
			u.UID = u.IDHint.Literal
			u.UIDSet = true
		}
	}

	for _, name := range sortedNames(declaredGroups) {
		g := declaredGroups[name]
		if u, ok := declaredUsers[name]; ok {
			if err := mergo.Merge(u, &Item{GroupIDHint: g.IDHint}, mergo.WithOverride); err != nil {
				return errors.Wrapf(err, "fold group %q into matching user", name)
			}
			continue
		}
		if err := r.resolveGroup(g); err != nil {
			return errors.Wrapf(err, "group %q", name)
		}
	}

	for _, name := range sortedNames(declaredUsers) {
		u := declaredUsers[name]

		groupView := &Item{Kind: KindGroup, Name: u.Name, IDHint: u.GroupIDHint, UID: u.UID, UIDSet: u.UIDSet}
		if err := r.resolveGroup(groupView); err != nil {
			return errors.Wrapf(err, "group %q (paired with user)", name)
		}
		u.GID = groupView.GID
		u.GIDSet = groupView.GIDSet

		if err := r.resolveUser(u); err != nil {
			return errors.Wrapf(err, "user %q", name)
		}
	}
	return nil
}

// resolveGroup runs the add-group state machine. item.Kind must be
// KindGroup; item.UID/UIDSet, when set, are the paired user's
// candidate ID for reuse as this group's GID.
func (r *Reconciler) resolveGroup(item *Item) error {
	if gid, ok := r.DB.GroupByName[item.Name]; ok {
		item.GID, item.GIDSet, item.Pending = gid, true, false
		return nil
	}

	if r.Alloc.ProbeEnabled {
		gid, found, err := r.Probe.GroupByName(item.Name)
		if err != nil {
			return errors.Wrapf(err, "probe group %q", item.Name)
		}
		if found {
			item.GID, item.GIDSet, item.Pending = gid, true, false
			return nil
		}
	}

	if item.IDHint.Kind == HintLiteral {
		ok, err := r.Alloc.GIDIsOK(item.IDHint.Literal)
		if err != nil {
			return err
		}
		if ok {
			return r.acceptGroup(item, item.IDHint.Literal)
		}
		r.Log.Warnf("group %q: requested gid %d is taken, falling back", item.Name, item.IDHint.Literal)
		item.IDHint = IDHint{Kind: HintNone}
	}

	if item.UIDSet {
		ok, err := r.Alloc.GIDIsOK(item.UID)
		if err != nil {
			return err
		}
		if ok {
			return r.acceptGroup(item, item.UID)
		}
	}

	if item.IDHint.Kind == HintPath {
		if gid, ok := r.pathGIDCandidate(item.IDHint.Path); ok {
			free, err := r.Alloc.GIDIsOK(gid)
			if err != nil {
				return err
			}
			if free {
				return r.acceptGroup(item, gid)
			}
			r.Log.Warnf("group %q: path-derived gid %d is taken, falling back to scan", item.Name, gid)
		}
	}

	gid, err := r.Alloc.FindFreeGID()
	if err != nil {
		return errors.Wrapf(err, "allocate gid for group %q", item.Name)
	}
	return r.acceptGroup(item, gid)
}

func (r *Reconciler) acceptGroup(item *Item, gid int) error {
	item.GID, item.GIDSet, item.Pending = gid, true, true
	r.Alloc.PendingGIDs[gid] = item
	return nil
}

// resolveUser runs the add-user state machine. By the time this runs,
// item.GID/GIDSet already hold the result of resolving the paired
// group.
func (r *Reconciler) resolveUser(item *Item) error {
	if uid, ok := r.DB.UserByName[item.Name]; ok {
		item.UID, item.UIDSet, item.Pending = uid, true, false
		return nil
	}

	if r.Alloc.ProbeEnabled {
		uid, found, err := r.Probe.UserByName(item.Name)
		if err != nil {
			return errors.Wrapf(err, "probe user %q", item.Name)
		}
		if found {
			item.UID, item.UIDSet, item.Pending = uid, true, false
			return nil
		}
	}

	if r.Root == "" {
		hasShadow, err := HasShadowEntry(r.FS, r.Root, item.Name)
		if err != nil {
			return err
		}
		if hasShadow {
			return errors.Wrapf(ErrBadMessage, "user %q", item.Name)
		}
	}

	if item.IDHint.Kind == HintLiteral {
		ok, err := r.Alloc.UIDIsOK(item.IDHint.Literal, item.Name)
		if err != nil {
			return err
		}
		if ok {
			return r.acceptUser(item, item.IDHint.Literal)
		}
		r.Log.Warnf("user %q: requested uid %d is taken, falling back", item.Name, item.IDHint.Literal)
		item.IDHint = IDHint{Kind: HintNone}
	}

	// Reuse the paired group's GID as a candidate UID. Tried before
	// the path hint below, per the design note: this order is subtle
	// but deliberate.
	if item.GIDSet {
		ok, err := r.Alloc.UIDIsOK(item.GID, item.Name)
		if err != nil {
			return err
		}
		if ok {
			return r.acceptUser(item, item.GID)
		}
	}

	// The richer, user-side path hint can in principle yield a UID
	// from the file's owner and a GID from its group owner, reusing
	// the GID as a UID candidate when only it is available. Our
	// PathOwner always resolves both together from one stat call, and
	// pathUIDCandidate rejects UID 0 or anything past the system range.
	if item.IDHint.Kind == HintPath {
		if uid, ok := r.pathUIDCandidate(item.IDHint.Path); ok {
			free, err := r.Alloc.UIDIsOK(uid, item.Name)
			if err != nil {
				return err
			}
			if free {
				return r.acceptUser(item, uid)
			}
			r.Log.Warnf("user %q: path-derived uid %d is taken, falling back to scan", item.Name, uid)
		}
	}

	uid, err := r.Alloc.FindFreeUID(item.Name)
	if err != nil {
		return errors.Wrapf(err, "allocate uid for user %q", item.Name)
	}
	return r.acceptUser(item, uid)
}

func (r *Reconciler) acceptUser(item *Item, uid int) error {
	item.UID, item.UIDSet, item.Pending = uid, true, true
	r.Alloc.PendingUIDs[uid] = item
	return nil
}

// pathGIDCandidate and pathUIDCandidate stat a path-hint target and
// report its owning GID/UID, rejecting 0 and anything outside the
// system range.
func (r *Reconciler) pathGIDCandidate(path string) (gid int, ok bool) {
	_, g, err := r.Owner.Owner(path)
	if err != nil {
		r.Log.Warnf("stat %q for id hint: %v", path, err)
		return 0, false
	}
	if g <= 0 || g > r.Alloc.SystemGIDMax {
		return g, false
	}
	return g, true
}

func (r *Reconciler) pathUIDCandidate(path string) (uid int, ok bool) {
	u, _, err := r.Owner.Owner(path)
	if err != nil {
		r.Log.Warnf("stat %q for id hint: %v", path, err)
		return 0, false
	}
	if u <= 0 || u > r.Alloc.SystemUIDMax {
		return u, false
	}
	return u, true
}

func sortedNames(m map[string]*Item) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
