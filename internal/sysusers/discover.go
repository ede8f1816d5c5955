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
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// SearchDirs are the standard sysusers.d directories, in priority
// order: a file base name found in an earlier directory shadows the
// same base name in a later one.
var SearchDirs = []string{
	"/usr/local/lib/sysusers.d",
	"/usr/lib/sysusers.d",
	"/lib/sysusers.d",
}

// DiscoverConfigs walks SearchDirs (rooted at root) and returns the
// full paths of every ".conf" file to load, applying first-directory-
// wins shadowing by base name and a lexical sort within each
// directory. A missing directory is skipped, not an error.
func DiscoverConfigs(fs afero.Fs, root string) ([]string, error) {
	seen := map[string]bool{}
	var out []string

	for _, dir := range SearchDirs {
		rooted := RootedPath(root, dir)
		entries, err := afero.ReadDir(fs, rooted)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "read %s", rooted)
		}

		var names []string
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".conf") {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)

		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, filepath.Join(rooted, name))
		}
	}
	return out, nil
}

// ExplicitConfigs resolves a set of command-line-supplied paths
// directly, with no directory search or shadowing: every path named
// is loaded, in the order given.
func ExplicitConfigs(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, RootedPath(root, p))
	}
	return out
}
