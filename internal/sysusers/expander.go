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
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Expander resolves the four host facts the config line schema lets a
// name reference via %-specifiers. It exists as an interface so tests
// can substitute fixed values instead of reading the real host.
type Expander interface {
	MachineID() (string, error)
	BootID() (string, error)
	Hostname() (string, error)
	KernelRelease() (string, error)
}

// hostExpander is the production Expander: it reads the facts from
// the real host every time it's asked, so a single long-running
// caller always sees fresh values.
type hostExpander struct{}

// NewHostExpander returns the production Expander.
func NewHostExpander() Expander { return hostExpander{} }

func (hostExpander) MachineID() (string, error) {
	b, err := os.ReadFile("/etc/machine-id")
	if err != nil {
		return "", errors.Wrap(err, "read /etc/machine-id")
	}
	return strings.TrimSpace(string(b)), nil
}

func (hostExpander) BootID() (string, error) {
	b, err := os.ReadFile("/proc/sys/kernel/random/boot_id")
	if err != nil {
		return "", errors.Wrap(err, "read boot_id")
	}
	return strings.TrimSpace(string(b)), nil
}

func (hostExpander) Hostname() (string, error) {
	h, err := os.Hostname()
	if err != nil {
		return "", errors.Wrap(err, "read hostname")
	}
	return h, nil
}

func (hostExpander) KernelRelease() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", errors.Wrap(err, "uname")
	}
	return charsToString(uts.Release[:]), nil
}

func charsToString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// ExpandName replaces the four %-specifiers the config schema allows
// in a name: %m (machine ID), %b (boot ID), %H (host name), %v
// (kernel release). A literal '%' is written as "%%".
func ExpandName(name string, exp Expander) (string, error) {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(name) {
			return "", errors.Errorf("dangling %% specifier in name %q", name)
		}
		spec := name[i+1]
		i++
		switch spec {
		case '%':
			b.WriteByte('%')
		case 'm':
			v, err := exp.MachineID()
			if err != nil {
				return "", err
			}
			b.WriteString(v)
		case 'b':
			v, err := exp.BootID()
			if err != nil {
				return "", err
			}
			b.WriteString(v)
		case 'H':
			v, err := exp.Hostname()
			if err != nil {
				return "", err
			}
			b.WriteString(v)
		case 'v':
			v, err := exp.KernelRelease()
			if err != nil {
				return "", err
			}
			b.WriteString(v)
		default:
			return "", errors.Errorf("unknown %%%c specifier in name %q", spec, name)
		}
	}
	return b.String(), nil
}
