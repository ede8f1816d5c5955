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
	"bufio"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// PasswdPath and GroupPath are the canonical, root-relative locations
// of the two databases this engine reconciles against.
const (
	PasswdPath     = "/etc/passwd"
	GroupPath      = "/etc/group"
	ShadowPath     = "/etc/shadow"
	LockPath       = "/etc/.pwd.lock"
	PasswdBackup   = "/etc/passwd-"
	GroupBackup    = "/etc/group-"
	rootedFileMode = 0o644
)

// RootedPath prepends root (the alternate-root prefix, empty for the
// real root) to an absolute path.
func RootedPath(root, p string) string {
	if root == "" {
		return p
	}
	return path.Join(root, p)
}

// passwdEntry is one already-existing line of /etc/passwd, kept both
// parsed (for reconciliation) and verbatim (for the writer's copy
// pass).
type passwdEntry struct {
	Name string
	UID  int
	Line string
}

type groupEntry struct {
	Name string
	GID  int
	Line string
}

// Database is the result of loading the two on-disk tables: paired
// name<->ID mappings plus the verbatim lines needed to reproduce the
// file unchanged on commit.
type Database struct {
	Users  []passwdEntry
	Groups []groupEntry

	UserByName  map[string]int
	UserByID    map[int]string
	GroupByName map[string]int
	GroupByID   map[int]string
}

// LoadDatabases reads /etc/passwd and /etc/group under root (via fs)
// into a Database. A missing file is an empty database, not an error;
// any other read or parse failure is returned and aborts the run.
func LoadDatabases(fs afero.Fs, root string) (*Database, error) {
	db := &Database{
		UserByName:  map[string]int{},
		UserByID:    map[int]string{},
		GroupByName: map[string]int{},
		GroupByID:   map[int]string{},
	}

	users, err := loadPasswd(fs, RootedPath(root, PasswdPath))
	if err != nil {
		return nil, errors.Wrap(err, "load passwd database")
	}
	db.Users = users
	for _, u := range users {
		if _, ok := db.UserByName[u.Name]; !ok {
			db.UserByName[u.Name] = u.UID
		}
		if _, ok := db.UserByID[u.UID]; !ok {
			db.UserByID[u.UID] = u.Name
		}
	}

	groups, err := loadGroup(fs, RootedPath(root, GroupPath))
	if err != nil {
		return nil, errors.Wrap(err, "load group database")
	}
	db.Groups = groups
	for _, g := range groups {
		if _, ok := db.GroupByName[g.Name]; !ok {
			db.GroupByName[g.Name] = g.GID
		}
		if _, ok := db.GroupByID[g.GID]; !ok {
			db.GroupByID[g.GID] = g.Name
		}
	}

	return db, nil
}

func loadPasswd(fs afero.Fs, p string) ([]passwdEntry, error) {
	lines, err := readLines(fs, p)
	if err != nil {
		return nil, err
	}
	entries := make([]passwdEntry, 0, len(lines))
	for _, line := range lines {
		fields := strings.Split(line, ":")
		if len(fields) < 3 {
			return nil, errors.Errorf("malformed passwd line %q", line)
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, errors.Wrapf(err, "malformed UID in passwd line %q", line)
		}
		entries = append(entries, passwdEntry{Name: fields[0], UID: uid, Line: line})
	}
	return entries, nil
}

func loadGroup(fs afero.Fs, p string) ([]groupEntry, error) {
	lines, err := readLines(fs, p)
	if err != nil {
		return nil, err
	}
	entries := make([]groupEntry, 0, len(lines))
	for _, line := range lines {
		fields := strings.Split(line, ":")
		if len(fields) < 3 {
			return nil, errors.Errorf("malformed group line %q", line)
		}
		gid, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, errors.Wrapf(err, "malformed GID in group line %q", line)
		}
		entries = append(entries, groupEntry{Name: fields[0], GID: gid, Line: line})
	}
	return entries, nil
}

func readLines(fs afero.Fs, p string) ([]string, error) {
	f, err := fs.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only descriptor, nothing to recover

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// HasShadowEntry reports whether name has an entry in /etc/shadow.
// Only meaningful when no alternate root is in effect; the shadow
// database is never modified by this engine.
func HasShadowEntry(fs afero.Fs, root, name string) (bool, error) {
	lines, err := readLines(fs, RootedPath(root, ShadowPath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	for _, line := range lines {
		fields := strings.SplitN(line, ":", 2)
		if len(fields) > 0 && fields[0] == name {
			return true, nil
		}
	}
	return false, nil
}
