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

// Package sysusers implements the allocation and reconciliation engine
// that provisions system users and groups from a declarative
// configuration into the passwd and group databases.
package sysusers

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Kind distinguishes a user item from a group item.
type Kind int

const (
	// KindUser declares a passwd entry (and, implicitly, its paired
	// group).
	KindUser Kind = iota
	// KindGroup declares a group entry.
	KindGroup
)

func (k Kind) String() string {
	if k == KindGroup {
		return "group"
	}
	return "user"
}

// HintKind distinguishes the three forms an id hint can take.
type HintKind int

const (
	// HintNone means the line used "-": no numeric preference.
	HintNone HintKind = iota
	// HintLiteral means the line gave a literal decimal ID.
	HintLiteral
	// HintPath means the ID should be inherited from a filesystem
	// path's owner (and/or group owner).
	HintPath
)

// IDHint is the parsed form of the <id> config field.
type IDHint struct {
	Kind    HintKind
	Literal int
	Path    string
}

// DefaultLoginNameMax bounds login/group name length when the host does
// not otherwise constrain it. It mirrors glibc's LOGIN_NAME_MAX.
const DefaultLoginNameMax = 256

var nameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// ValidName reports whether name is a legal login or group name: it
// must match [A-Za-z_][A-Za-z0-9_-]* and must not exceed maxLen (use
// DefaultLoginNameMax when the host doesn't say otherwise).
func ValidName(name string, maxLen int) error {
	if len(name) == 0 {
		return errors.New("name must not be empty")
	}
	if len(name) > maxLen {
		return errors.Errorf("name %q exceeds maximum length %d", name, maxLen)
	}
	if !nameRE.MatchString(name) {
		return errors.Errorf("name %q is not a valid login/group name", name)
	}
	return nil
}

// ValidGECOS reports whether a description is usable as a GECOS field:
// valid UTF-8, and free of ':' and newlines which would corrupt the
// colon-separated passwd line format.
func ValidGECOS(desc string) error {
	if !utf8.ValidString(desc) {
		return errors.New("description is not valid UTF-8")
	}
	if strings.ContainsAny(desc, ":\n") {
		return errors.New("description must not contain ':' or a newline")
	}
	return nil
}

// Item is a single declared user or group intent, as produced by the
// config line parser and consumed by the reconciler.
type Item struct {
	Kind        Kind
	Name        string
	IDHint      IDHint
	Description string

	UID    int
	UIDSet bool
	GID    int
	GIDSet bool

	// GroupIDHint carries a standalone group declaration's id_hint
	// once it has been folded into the matching user item: a user
	// declaration and a group declaration of the same name resolve to
	// one matched pair, not two unrelated entries.
	GroupIDHint IDHint

	// Pending is set by the reconciler once it has decided this item
	// requires a new passwd/group entry to be written on commit.
	Pending bool
}

// SameDeclaration reports whether two items of the same kind and name
// are semantically identical, per the invariant in the data model:
// conflicting duplicates must be dropped, identical ones collapsed.
func (i Item) SameDeclaration(o Item) bool {
	return i.Kind == o.Kind &&
		i.Name == o.Name &&
		i.IDHint == o.IDHint &&
		i.Description == o.Description
}
