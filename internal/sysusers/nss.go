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
	"os/user"
	"strconv"

	"github.com/pkg/errors"
)

// NameServiceProbe is the read-only capability to query the host's
// account resolver by name and by numeric ID. Results are advisory:
// absence means "not observed here", not "absent globally". It is
// bypassed entirely when an alternate filesystem root is in effect,
// since the host's resolver only ever reflects the real root.
type NameServiceProbe interface {
	UserByName(name string) (uid int, found bool, err error)
	UserByID(uid int) (name string, found bool, err error)
	GroupByName(name string) (gid int, found bool, err error)
	GroupByID(gid int) (name string, found bool, err error)
}

// osProbe queries the host's libc-backed resolver via the standard
// library, which in turn consults nsswitch.conf sources.
type osProbe struct{}

// NewOSProbe returns the production NameServiceProbe backed by the
// host's name service switch.
func NewOSProbe() NameServiceProbe { return osProbe{} }

func (osProbe) UserByName(name string) (int, bool, error) {
	u, err := user.Lookup(name)
	if err != nil {
		var unk user.UnknownUserError
		if errors.As(err, &unk) {
			return 0, false, nil
		}
		return 0, false, errors.Wrapf(err, "probe user %q", name)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, false, errors.Wrapf(err, "parse uid for %q", name)
	}
	return uid, true, nil
}

func (osProbe) UserByID(uid int) (string, bool, error) {
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		var unk user.UnknownUserIdError
		if errors.As(err, &unk) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "probe uid %d", uid)
	}
	return u.Username, true, nil
}

func (osProbe) GroupByName(name string) (int, bool, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		var unk user.UnknownGroupError
		if errors.As(err, &unk) {
			return 0, false, nil
		}
		return 0, false, errors.Wrapf(err, "probe group %q", name)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, false, errors.Wrapf(err, "parse gid for %q", name)
	}
	return gid, true, nil
}

func (osProbe) GroupByID(gid int) (string, bool, error) {
	g, err := user.LookupGroupId(strconv.Itoa(gid))
	if err != nil {
		var unk user.UnknownGroupIdError
		if errors.As(err, &unk) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "probe gid %d", gid)
	}
	return g.Name, true, nil
}

// NoProbe is the disabled probe used whenever an alternate root is in
// effect: every lookup reports "not found" without ever touching the
// host's resolver.
type NoProbe struct{}

func (NoProbe) UserByName(string) (int, bool, error)  { return 0, false, nil }
func (NoProbe) UserByID(int) (string, bool, error)    { return "", false, nil }
func (NoProbe) GroupByName(string) (int, bool, error) { return 0, false, nil }
func (NoProbe) GroupByID(int) (string, bool, error)   { return "", false, nil }

// FakeNameServiceProbe is a NameServiceProbe backed by in-memory maps,
// used by tests that want to exercise the probe-enabled code paths
// without a real nsswitch resolver.
type FakeNameServiceProbe struct {
	UsersByName  map[string]int
	UsersByID    map[int]string
	GroupsByName map[string]int
	GroupsByID   map[int]string
}

func (f FakeNameServiceProbe) UserByName(name string) (int, bool, error) {
	uid, ok := f.UsersByName[name]
	return uid, ok, nil
}

func (f FakeNameServiceProbe) UserByID(uid int) (string, bool, error) {
	name, ok := f.UsersByID[uid]
	return name, ok, nil
}

func (f FakeNameServiceProbe) GroupByName(name string) (int, bool, error) {
	gid, ok := f.GroupsByName[name]
	return gid, ok, nil
}

func (f FakeNameServiceProbe) GroupByID(gid int) (string, bool, error) {
	name, ok := f.GroupsByID[gid]
	return name, ok, nil
}
