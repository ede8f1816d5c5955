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

// Package logging builds the single structured logger shared by the
// CLI entrypoint and the engine.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing human-readable text to stderr at info
// level, or debug level with full timestamps when debug is true.
func New(debug bool, version string) *logrus.Entry {
	log := logrus.New()
	log.Out = os.Stderr
	log.Formatter = &logrus.TextFormatter{
		DisableColors:    false,
		FullTimestamp:    debug,
		DisableTimestamp: !debug,
	}
	log.SetLevel(logrus.InfoLevel)
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log.WithField("version", version)
}

// Discard returns a logger that drops everything, for tests and
// library callers that don't want engine chatter.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.Out = io.Discard
	return log.WithField("version", "test")
}
