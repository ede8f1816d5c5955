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
	"testing"

	"github.com/spf13/afero"
)

func TestDiscoverConfigsShadowingAndOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/usr/local/lib/sysusers.d/b.conf", "")
	writeFile(t, fs, "/usr/local/lib/sysusers.d/a.conf", "")
	writeFile(t, fs, "/usr/lib/sysusers.d/a.conf", "") // shadowed by /usr/local/lib
	writeFile(t, fs, "/usr/lib/sysusers.d/c.conf", "")
	writeFile(t, fs, "/lib/sysusers.d/c.conf", "") // shadowed by /usr/lib
	writeFile(t, fs, "/lib/sysusers.d/d.conf", "")
	writeFile(t, fs, "/usr/lib/sysusers.d/ignore.txt", "")

	got, err := DiscoverConfigs(fs, "")
	if err != nil {
		t.Fatalf("DiscoverConfigs(): unexpected error: %v", err)
	}
	want := []string{
		"/usr/local/lib/sysusers.d/a.conf",
		"/usr/local/lib/sysusers.d/b.conf",
		"/usr/lib/sysusers.d/c.conf",
		"/lib/sysusers.d/d.conf",
	}
	if len(got) != len(want) {
		t.Fatalf("DiscoverConfigs(): got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DiscoverConfigs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDiscoverConfigsMissingDirsSkipped(t *testing.T) {
	fs := afero.NewMemMapFs()
	got, err := DiscoverConfigs(fs, "")
	if err != nil {
		t.Fatalf("DiscoverConfigs(): unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("DiscoverConfigs(): got %v, want empty", got)
	}
}

func TestExplicitConfigsRootedAndOrdered(t *testing.T) {
	got := ExplicitConfigs("/mnt/target", []string{"/a.conf", "/b.conf"})
	want := []string{"/mnt/target/a.conf", "/mnt/target/b.conf"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ExplicitConfigs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
