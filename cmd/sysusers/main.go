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

// Package main is the sysusers command-line entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/dslul/go-sysusers/internal/logging"
	"github.com/dslul/go-sysusers/internal/sysusers"
)

// version is set via -ldflags at build time.
var version = "dev"

type versionFlag bool

var cli struct {
	Debug bool `help:"Print verbose (debug level) logging." short:"d"`

	Version versionFlag `help:"Print version and quit."`

	Root  string   `help:"Operate on an alternate root directory instead of /. Disables name-service lookups." placeholder:"PATH"`
	Files []string `arg:""                                                                                     help:"Configuration files to read. If none are given, the standard sysusers.d search path is used." optional:""`
}

func (v versionFlag) BeforeApply(app *kong.Kong) error { //nolint:unparam // BeforeApply requires this signature.
	fmt.Fprintln(app.Stdout, version)
	app.Exit(0)
	return nil
}

func main() {
	kong.Parse(&cli,
		kong.Name("sysusers"),
		kong.Description("Creates system users and groups declared in sysusers.d configuration files."),
		kong.UsageOnError(),
	)

	log := logging.New(cli.Debug, version)
	if err := run(log); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(log *logrus.Entry) error {
	fs := afero.NewOsFs()

	var paths []string
	var err error
	if len(cli.Files) > 0 {
		paths = sysusers.ExplicitConfigs(cli.Root, cli.Files)
	} else {
		paths, err = sysusers.DiscoverConfigs(fs, cli.Root)
		if err != nil {
			return errors.Wrap(err, "discover configuration files")
		}
	}

	var items []sysusers.Item
	exp := sysusers.NewHostExpander()
	for _, path := range paths {
		f, err := fs.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		parsed, parseErrs := sysusers.ParseConfig(f, path, exp)
		f.Close() //nolint:errcheck // read-only descriptor

		for _, pe := range parseErrs {
			log.Errorf("%s", pe.Error())
		}
		if len(parseErrs) > 0 {
			return errors.Errorf("%d error(s) parsing configuration", len(parseErrs))
		}
		items = append(items, parsed...)
	}

	sess := sysusers.NewSession(fs, cli.Root, log)

	var lock sysusers.Locker = sysusers.NewFileLocker(sysusers.RootedPath(cli.Root, sysusers.LockPath))
	if err := sess.Run(lock, items); err != nil {
		return errors.Wrap(err, "run")
	}
	return nil
}
