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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	nologinShell = "/sbin/nologin"
	nologinHome  = "/"
	rootShell    = "/bin/sh"
	rootHome     = "/root"
)

// Writer is the atomic multi-file commit: it rewrites passwd and
// group via temp-file + rename, preserving every
// existing entry, appending the pending ones, and leaving a backup of
// whatever it replaces. If a table has no pending work it is left
// completely untouched.
type Writer struct {
	FS   afero.Fs
	Root string
	Log  *logrus.Entry
}

// Commit writes pendingUIDs to passwd and pendingGIDs to group. Either
// set may be empty, in which case that table is skipped entirely. On
// any failure after temp-file creation, the temp files are unlinked.
// A failure before the final renames leaves both original databases
// exactly as they were. The two renames are not atomic as a pair: if
// the group rename fails after passwd has been renamed into place,
// the new passwd stays and the previous one is only in its backup.
func (w *Writer) Commit(db *Database, pendingUIDs, pendingGIDs PendingSet) (err error) {
	if len(pendingUIDs) == 0 && len(pendingGIDs) == 0 {
		return nil
	}

	var tmpPasswd, tmpGroup string
	defer func() {
		if err != nil {
			if tmpPasswd != "" {
				_ = w.FS.Remove(tmpPasswd)
			}
			if tmpGroup != "" {
				_ = w.FS.Remove(tmpGroup)
			}
		}
	}()

	if len(pendingUIDs) > 0 {
		tmpPasswd, err = w.writeTempPasswd(db, pendingUIDs)
		if err != nil {
			return errors.Wrap(err, "write temp passwd")
		}
	}
	if len(pendingGIDs) > 0 {
		tmpGroup, err = w.writeTempGroup(db, pendingGIDs)
		if err != nil {
			return errors.Wrap(err, "write temp group")
		}
	}

	// Backups are made after both temp files are fully written but
	// before either final rename: a crash here still leaves the
	// originals recoverable, either from the backup or untouched.
	if tmpPasswd != "" {
		if err = w.backup(RootedPath(w.Root, PasswdPath), RootedPath(w.Root, PasswdBackup)); err != nil {
			return errors.Wrap(err, "backup passwd")
		}
	}
	if tmpGroup != "" {
		if err = w.backup(RootedPath(w.Root, GroupPath), RootedPath(w.Root, GroupBackup)); err != nil {
			return errors.Wrap(err, "backup group")
		}
	}

	if tmpPasswd != "" {
		if err = w.FS.Rename(tmpPasswd, RootedPath(w.Root, PasswdPath)); err != nil {
			return errors.Wrap(err, "rename passwd into place")
		}
		tmpPasswd = ""
	}
	if tmpGroup != "" {
		if err = w.FS.Rename(tmpGroup, RootedPath(w.Root, GroupPath)); err != nil {
			return errors.Wrap(err, "rename group into place")
		}
		tmpGroup = ""
	}
	return nil
}

func (w *Writer) writeTempPasswd(db *Database, pending PendingSet) (_ string, err error) {
	target := RootedPath(w.Root, PasswdPath)
	pendingNames := pendingItemNames(pending)

	tmp, err := afero.TempFile(w.FS, filepath.Dir(target), filepath.Base(target)+".")
	if err != nil {
		return "", err
	}
	path := tmp.Name()
	defer func() {
		if err != nil {
			_ = w.FS.Remove(path)
		}
	}()
	if err := w.FS.Chmod(path, rootedFileMode); err != nil {
		tmp.Close() //nolint:errcheck
		return "", err
	}

	for _, u := range db.Users {
		if pendingNames[u.Name] {
			tmp.Close() //nolint:errcheck
			return "", errors.Wrapf(ErrCollision, "passwd entry %q already exists", u.Name)
		}
		if _, taken := pending[u.UID]; taken {
			tmp.Close() //nolint:errcheck
			return "", errors.Wrapf(ErrCollision, "passwd uid %d already exists", u.UID)
		}
		if _, err := io.WriteString(tmp, u.Line+"\n"); err != nil {
			tmp.Close() //nolint:errcheck
			return "", err
		}
	}
	for _, uid := range sortedPendingIDs(pending) {
		if _, err := io.WriteString(tmp, passwdLine(pending[uid])+"\n"); err != nil {
			tmp.Close() //nolint:errcheck
			return "", err
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func (w *Writer) writeTempGroup(db *Database, pending PendingSet) (_ string, err error) {
	target := RootedPath(w.Root, GroupPath)
	pendingNames := pendingItemNames(pending)

	tmp, err := afero.TempFile(w.FS, filepath.Dir(target), filepath.Base(target)+".")
	if err != nil {
		return "", err
	}
	path := tmp.Name()
	defer func() {
		if err != nil {
			_ = w.FS.Remove(path)
		}
	}()
	if err := w.FS.Chmod(path, rootedFileMode); err != nil {
		tmp.Close() //nolint:errcheck
		return "", err
	}

	for _, g := range db.Groups {
		if pendingNames[g.Name] {
			tmp.Close() //nolint:errcheck
			return "", errors.Wrapf(ErrCollision, "group entry %q already exists", g.Name)
		}
		if _, taken := pending[g.GID]; taken {
			tmp.Close() //nolint:errcheck
			return "", errors.Wrapf(ErrCollision, "group gid %d already exists", g.GID)
		}
		if _, err := io.WriteString(tmp, g.Line+"\n"); err != nil {
			tmp.Close() //nolint:errcheck
			return "", err
		}
	}
	for _, gid := range sortedPendingIDs(pending) {
		if _, err := io.WriteString(tmp, groupLine(pending[gid])+"\n"); err != nil {
			tmp.Close() //nolint:errcheck
			return "", err
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// backup copies source's current contents to a temp sibling, matches
// its mode/owner/times, and renames the sibling onto backupPath. A
// missing source (first run ever) means there's nothing to back up.
func (w *Writer) backup(source, backupPath string) error {
	info, err := w.FS.Stat(source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	src, err := w.FS.Open(source)
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck

	tmp, err := afero.TempFile(w.FS, filepath.Dir(backupPath), filepath.Base(backupPath)+".")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close() //nolint:errcheck
		_ = w.FS.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		_ = w.FS.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = w.FS.Remove(tmpPath)
		return err
	}

	if err := w.FS.Chmod(tmpPath, info.Mode()); err != nil {
		w.Log.Debugf("backup %s: preserve mode: %v", backupPath, err)
	}
	if err := w.FS.Chtimes(tmpPath, info.ModTime(), info.ModTime()); err != nil {
		w.Log.Debugf("backup %s: preserve times: %v", backupPath, err)
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		if err := w.FS.Chown(tmpPath, int(st.Uid), int(st.Gid)); err != nil {
			w.Log.Debugf("backup %s: preserve owner: %v", backupPath, err)
		}
	}

	if err := w.FS.Rename(tmpPath, backupPath); err != nil {
		_ = w.FS.Remove(tmpPath)
		return err
	}
	return nil
}

func passwdLine(item *Item) string {
	shell, home := nologinShell, nologinHome
	if item.UID == 0 {
		shell, home = rootShell, rootHome
	}
	return fmt.Sprintf("%s:x:%d:%d:%s:%s:%s", item.Name, item.UID, item.GID, item.Description, home, shell)
}

func groupLine(item *Item) string {
	return fmt.Sprintf("%s:x:%d:", item.Name, item.GID)
}

func pendingItemNames(pending PendingSet) map[string]bool {
	names := make(map[string]bool, len(pending))
	for _, item := range pending {
		names[item.Name] = true
	}
	return names
}

func sortedPendingIDs(pending PendingSet) []int {
	ids := make([]int, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
