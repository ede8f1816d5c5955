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
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
)

// FuzzParseConfig hunts for inputs that make the line parser panic
// instead of returning a ParseError. The parser must never abort
// early or crash on arbitrary bytes; a bad line is always recoverable
// as a per-line error.
func FuzzParseConfig(f *testing.F) {
	f.Add([]byte("u sshd - \"SSH daemon\"\n"))
	f.Add([]byte("g wheel 999\n"))
	f.Add([]byte("u %H - -\n"))
	f.Add([]byte("# comment\n\nu bad\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		text, err := c.GetString()
		if err != nil {
			return
		}
		items, errs := ParseConfig(strings.NewReader(text), "fuzz.conf", fakeExpander{})
		for _, it := range items {
			if it.Name == "" {
				t.Errorf("ParseConfig(%q) produced an item with an empty name", text)
			}
		}
		_ = errs
	})
}
