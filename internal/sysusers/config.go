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
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseError records a single fatal-for-that-line config error. The
// parser accumulates these and keeps going; the caller decides how
// many it tolerates.
type ParseError struct {
	File string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

// ParseConfig reads one sysusers.d-style config file and returns the
// items it declares plus any per-line errors encountered. Parsing
// never aborts early: a bad line is recorded and the rest of the file
// is still processed, per the config-parsing propagation policy.
func ParseConfig(r io.Reader, filename string, exp Expander) ([]Item, []ParseError) {
	var items []Item
	var errs []ParseError

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		item, err := parseLine(trimmed, exp)
		if err != nil {
			errs = append(errs, ParseError{File: filename, Line: lineNo, Err: err})
			continue
		}
		items = append(items, item)
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, ParseError{File: filename, Line: lineNo, Err: errors.Wrap(err, "read config")})
	}
	return items, errs
}

// splitFields pulls the first three whitespace-separated tokens off
// line and returns whatever's left, with leading whitespace trimmed,
// as the raw description field.
func splitFields(line string) (fields [3]string, rest string, n int) {
	i := 0
	for n < 3 {
		for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		start := i
		for i < len(line) && line[i] != ' ' && line[i] != '\t' {
			i++
		}
		if start == i {
			break
		}
		fields[n] = line[start:i]
		n++
	}
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return fields, line[i:], n
}

func parseLine(line string, exp Expander) (Item, error) {
	fields, rest, n := splitFields(line)
	if n < 3 {
		return Item{}, errors.Errorf("expected at least 3 fields, got %d", n)
	}

	var kind Kind
	switch fields[0] {
	case "u":
		kind = KindUser
	case "g":
		kind = KindGroup
	default:
		return Item{}, errors.Errorf("unknown directive type %q", fields[0])
	}

	name, err := ExpandName(fields[1], exp)
	if err != nil {
		return Item{}, errors.Wrap(err, "expand name")
	}
	if err := ValidName(name, DefaultLoginNameMax); err != nil {
		return Item{}, err
	}

	hint, err := parseIDHint(fields[2])
	if err != nil {
		return Item{}, err
	}

	desc, err := parseDescription(rest)
	if err != nil {
		return Item{}, err
	}
	if err := ValidGECOS(desc); err != nil {
		return Item{}, err
	}

	return Item{Kind: kind, Name: name, IDHint: hint, Description: desc}, nil
}

func parseIDHint(tok string) (IDHint, error) {
	switch {
	case tok == "-":
		return IDHint{Kind: HintNone}, nil
	case path.IsAbs(tok):
		return IDHint{Kind: HintPath, Path: tok}, nil
	default:
		id, err := strconv.Atoi(tok)
		if err != nil {
			return IDHint{}, errors.Errorf("invalid id field %q: not '-', an absolute path, or a decimal number", tok)
		}
		if id < 0 {
			return IDHint{}, errors.Errorf("invalid id field %q: must not be negative", tok)
		}
		return IDHint{Kind: HintLiteral, Literal: id}, nil
	}
}

// FormatLine renders item back into a config line in the same schema
// ParseConfig reads: "<type> <name> <id> [<description>]". It is the
// exact inverse of parseLine/parseIDHint/parseDescription, so parsing
// FormatLine's output reproduces an equal Item (modulo %-specifier
// expansion, which is already resolved by the time an Item exists).
func FormatLine(item Item) string {
	typeTok := "u"
	if item.Kind == KindGroup {
		typeTok = "g"
	}

	idTok := formatIDHint(item.IDHint)
	descTok := formatDescription(item.Description)

	return fmt.Sprintf("%s %s %s %s", typeTok, item.Name, idTok, descTok)
}

func formatIDHint(hint IDHint) string {
	switch hint.Kind {
	case HintLiteral:
		return strconv.Itoa(hint.Literal)
	case HintPath:
		return hint.Path
	default:
		return "-"
	}
}

func formatDescription(desc string) string {
	if desc == "" {
		return "-"
	}
	if strings.ContainsAny(desc, " \t") {
		return `"` + desc + `"`
	}
	return desc
}

func parseDescription(rest string) (string, error) {
	rest = strings.TrimRight(rest, " \t")
	if rest == "" || rest == "-" {
		return "", nil
	}
	if rest[0] == '"' {
		if len(rest) < 2 || rest[len(rest)-1] != '"' {
			return "", errors.Errorf("unterminated quoted description %q", rest)
		}
		return rest[1 : len(rest)-1], nil
	}
	return rest, nil
}
