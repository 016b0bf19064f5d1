/*
Copyright © 2022 - 2025 SUSE LLC

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
package command

import (
	"strings"

	"github.com/google/shlex"

	"github.com/rancher/chorut/pkg/constants"
	chorutError "github.com/rancher/chorut/pkg/error"
)

// Command is either an ArgumentVector or a ShellLine
type Command interface {
	isCommand()
}

// ArgumentVector is a program followed by its arguments, run as is
type ArgumentVector []string

// ShellLine is a single command line string
type ShellLine string

func (ArgumentVector) isCommand() {}
func (ShellLine) isCommand() {}

// shellMetachars are the characters that need a shell to be interpreted:
// pipes, redirections, globs, separators and backtick substitution
const shellMetachars = "|;<>*?[`"

// NeedsShell reports whether line uses shell syntax. It does not parse the
// line, so quoted metacharacters count too.
func NeedsShell(line string) bool {
	return strings.ContainsAny(line, shellMetachars) ||
		strings.Contains(line, "&&") ||
		strings.Contains(line, "$(")
}

// Resolve turns cmd into the argument vector to execute. An empty command
// resolves to the default interactive shell. With autoShell, shell lines
// using shell syntax are wrapped into a shell invocation; any other shell
// line is split following shell quoting rules.
func Resolve(cmd Command, autoShell bool) ([]string, error) {
	switch c := cmd.(type) {
	case nil:
		return []string{constants.DefaultShell}, nil
	case ArgumentVector:
		if len(c) == 0 {
			return []string{constants.DefaultShell}, nil
		}
		return append([]string{}, c...), nil
	case ShellLine:
		line := strings.TrimSpace(string(c))
		if line == "" {
			return []string{constants.DefaultShell}, nil
		}
		if autoShell && NeedsShell(line) {
			return []string{constants.DefaultShell, "-c", line}, nil
		}
		args, err := shlex.Split(line)
		if err != nil {
			return nil, chorutError.NewChrootError(chorutError.InvalidCommand, "failed parsing command line", err)
		}
		if len(args) == 0 {
			return nil, chorutError.NewChrootError(chorutError.InvalidCommand, "command line has no command: "+line, nil)
		}
		return args, nil
	default:
		return nil, chorutError.NewChrootError(chorutError.InvalidCommand, "unknown command type", nil)
	}
}
