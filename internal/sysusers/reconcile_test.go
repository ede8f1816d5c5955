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
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

func testReconciler(fs afero.Fs, db *Database, owner PathOwner) (*Reconciler, *Allocator) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	alloc := NewAllocator(db, NoProbe{}, false, 999, 999)
	rec := &Reconciler{
		DB:    db,
		Alloc: alloc,
		Probe: NoProbe{},
		Owner: owner,
		Log:   log.WithField("test", true),
		FS:    fs,
		Root:  "",
	}
	return rec, alloc
}

func testReconcilerWithProbe(fs afero.Fs, db *Database, owner PathOwner, probe NameServiceProbe) (*Reconciler, *Allocator) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	alloc := NewAllocator(db, probe, true, 999, 999)
	rec := &Reconciler{
		DB:    db,
		Alloc: alloc,
		Probe: probe,
		Owner: owner,
		Log:   log.WithField("test", true),
		FS:    fs,
		Root:  "",
	}
	return rec, alloc
}

// When the name-service probe is enabled, a group or user the probe
// already reports as existing is adopted (not allocated), and the
// shadow-consistency check normally run for new users is skipped.
func TestReconcileProbeAdoptsExistingGroupAndUser(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/etc/shadow", "sshd:!:19000:0:99999:7:::\n")
	probe := FakeNameServiceProbe{
		UsersByName:  map[string]int{"sshd": 100},
		GroupsByName: map[string]int{"sshd": 100},
	}
	rec, alloc := testReconcilerWithProbe(fs, emptyDB(), FakePathOwner{}, probe)

	groups := map[string]*Item{}
	users := map[string]*Item{
		"sshd": {Kind: KindUser, Name: "sshd", IDHint: IDHint{Kind: HintNone}},
	}

	if err := rec.Reconcile(groups, users); err != nil {
		t.Fatalf("Reconcile(): unexpected error: %v", err)
	}
	u := users["sshd"]
	if u.UID != 100 || u.Pending {
		t.Errorf("Reconcile(): got UID=%d Pending=%v, want UID=100 Pending=false (adopted via probe)", u.UID, u.Pending)
	}
	if u.GID != 100 || u.GIDSet != true {
		t.Errorf("Reconcile(): got GID=%d GIDSet=%v, want GID=100 GIDSet=true (adopted via probe)", u.GID, u.GIDSet)
	}
	if len(alloc.PendingUIDs) != 0 || len(alloc.PendingGIDs) != 0 {
		t.Errorf("Reconcile(): pending sets = %d uid, %d gid, want 0 each for probe-adopted identities", len(alloc.PendingUIDs), len(alloc.PendingGIDs))
	}
}

// A probe-reported group collision at the requested id still blocks a
// fresh allocation for an unrelated name, same as a database collision.
func TestReconcileProbeGroupCollisionBlocksLiteralHint(t *testing.T) {
	fs := afero.NewMemMapFs()
	probe := FakeNameServiceProbe{GroupsByID: map[int]string{500: "other"}}
	rec, _ := testReconcilerWithProbe(fs, emptyDB(), FakePathOwner{}, probe)

	groups := map[string]*Item{
		"svc": {Kind: KindGroup, Name: "svc", IDHint: IDHint{Kind: HintLiteral, Literal: 500}},
	}
	users := map[string]*Item{}

	if err := rec.Reconcile(groups, users); err != nil {
		t.Fatalf("Reconcile(): unexpected error: %v", err)
	}
	g := groups["svc"]
	if g.GID == 500 {
		t.Errorf("Reconcile(): got GID 500, want fallback away from the probe-observed collision")
	}
}

func TestReconcilePairedUserAndGroupShareID(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec, alloc := testReconciler(fs, emptyDB(), FakePathOwner{})

	groups := map[string]*Item{
		"sshd": {Kind: KindGroup, Name: "sshd", IDHint: IDHint{Kind: HintNone}},
	}
	users := map[string]*Item{
		"sshd": {Kind: KindUser, Name: "sshd", IDHint: IDHint{Kind: HintNone}},
	}

	if err := rec.Reconcile(groups, users); err != nil {
		t.Fatalf("Reconcile(): unexpected error: %v", err)
	}

	u := users["sshd"]
	if !u.UIDSet || !u.GIDSet {
		t.Fatalf("Reconcile(): expected both UID and GID set, got %+v", u)
	}
	if u.UID != u.GID {
		t.Errorf("Reconcile(): paired user/group UID=%d GID=%d, want equal", u.UID, u.GID)
	}
	if len(alloc.PendingUIDs) != 1 || len(alloc.PendingGIDs) != 1 {
		t.Errorf("Reconcile(): pending sets = %d uid, %d gid, want 1 each", len(alloc.PendingUIDs), len(alloc.PendingGIDs))
	}
}

func TestReconcileLiteralIDHint(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec, _ := testReconciler(fs, emptyDB(), FakePathOwner{})

	groups := map[string]*Item{}
	users := map[string]*Item{
		"svc": {Kind: KindUser, Name: "svc", IDHint: IDHint{Kind: HintLiteral, Literal: 64}},
	}

	if err := rec.Reconcile(groups, users); err != nil {
		t.Fatalf("Reconcile(): unexpected error: %v", err)
	}
	u := users["svc"]
	if u.UID != 64 {
		t.Errorf("Reconcile(): got UID %d, want 64", u.UID)
	}
	if u.GID != 64 {
		t.Errorf("Reconcile(): got GID %d, want 64 (reused from literal UID hint)", u.GID)
	}
}

func TestReconcileDBAdoptsExistingUser(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := emptyDB()
	db.UserByName["sshd"] = 100
	db.GroupByName["sshd"] = 100
	rec, alloc := testReconciler(fs, db, FakePathOwner{})

	groups := map[string]*Item{}
	users := map[string]*Item{
		"sshd": {Kind: KindUser, Name: "sshd", IDHint: IDHint{Kind: HintNone}},
	}

	if err := rec.Reconcile(groups, users); err != nil {
		t.Fatalf("Reconcile(): unexpected error: %v", err)
	}
	u := users["sshd"]
	if u.UID != 100 || u.Pending {
		t.Errorf("Reconcile(): got UID=%d Pending=%v, want UID=100 Pending=false", u.UID, u.Pending)
	}
	if len(alloc.PendingUIDs) != 0 {
		t.Errorf("Reconcile(): pending UIDs = %d, want 0 for an already-existing user", len(alloc.PendingUIDs))
	}
}

// When the user's own-name group adopts a GID already held (under a
// different name) in the passwd database, the GID-reuse candidate is
// rejected and the user's path hint is tried next.
func TestReconcilePathHintUsedWhenGroupReuseFails(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := emptyDB()
	db.GroupByName["svc"] = 300
	db.UserByID[300] = "other"
	owner := FakePathOwner{"/var/lib/svc": [2]int{50, 50}}
	rec, _ := testReconciler(fs, db, owner)

	groups := map[string]*Item{}
	users := map[string]*Item{
		"svc": {Kind: KindUser, Name: "svc", IDHint: IDHint{Kind: HintPath, Path: "/var/lib/svc"}},
	}

	if err := rec.Reconcile(groups, users); err != nil {
		t.Fatalf("Reconcile(): unexpected error: %v", err)
	}
	u := users["svc"]
	if u.UID != 50 {
		t.Errorf("Reconcile(): got UID %d, want 50 (from path hint)", u.UID)
	}
}

// When the path hint's candidate UID is also already taken, resolution
// falls all the way back to a free-ID scan.
func TestReconcilePathHintFallsBackWhenTaken(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := emptyDB()
	db.GroupByName["svc"] = 300
	db.UserByID[300] = "other"
	db.UserByID[50] = "yet-another"
	owner := FakePathOwner{"/var/lib/svc": [2]int{50, 50}}
	rec, _ := testReconciler(fs, db, owner)

	groups := map[string]*Item{}
	users := map[string]*Item{
		"svc": {Kind: KindUser, Name: "svc", IDHint: IDHint{Kind: HintPath, Path: "/var/lib/svc"}},
	}

	if err := rec.Reconcile(groups, users); err != nil {
		t.Fatalf("Reconcile(): unexpected error: %v", err)
	}
	u := users["svc"]
	if u.UID == 50 || u.UID == 300 {
		t.Errorf("Reconcile(): got UID %d, should have fallen back to a free scan", u.UID)
	}
}

func TestReconcileShadowWithoutPasswdIsFatal(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/etc/shadow", "sshd:!:19000:0:99999:7:::\n")
	rec, _ := testReconciler(fs, emptyDB(), FakePathOwner{})

	groups := map[string]*Item{}
	users := map[string]*Item{
		"sshd": {Kind: KindUser, Name: "sshd", IDHint: IDHint{Kind: HintNone}},
	}

	err := rec.Reconcile(groups, users)
	if !errors.Is(err, ErrBadMessage) {
		t.Errorf("Reconcile(): got err %v, want wrapping ErrBadMessage", err)
	}
}

func TestReconcileStandaloneGroupFoldedIntoUser(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec, _ := testReconciler(fs, emptyDB(), FakePathOwner{})

	groups := map[string]*Item{
		"svc": {Kind: KindGroup, Name: "svc", IDHint: IDHint{Kind: HintLiteral, Literal: 500}},
	}
	users := map[string]*Item{
		"svc": {Kind: KindUser, Name: "svc", IDHint: IDHint{Kind: HintNone}},
	}

	if err := rec.Reconcile(groups, users); err != nil {
		t.Fatalf("Reconcile(): unexpected error: %v", err)
	}
	u := users["svc"]
	if u.GID != 500 {
		t.Errorf("Reconcile(): got GID %d, want 500 (folded group id_hint)", u.GID)
	}
}
