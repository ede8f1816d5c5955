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

// ErrBadMessage is returned when a declared user's name has a shadow
// entry but no passwd entry: the databases are already inconsistent
// and the engine refuses to make it worse. Distinguished from other
// fatal errors so callers can map it to its own exit behavior.
var ErrBadMessage = errors.New("sysusers: inconsistent account databases (shadow entry without passwd entry)")

// ErrExhausted is returned when the free-ID search reaches the bottom
// of the system range without finding a usable ID.
var ErrExhausted = errors.New("sysusers: no free ID available in the system range")

// ErrCollision is returned by the atomic writer when an existing
// database entry's name or numeric ID collides with a pending item.
// The commit aborts before any file is replaced.
var ErrCollision = errors.New("sysusers: pending entry collides with an existing database entry")
