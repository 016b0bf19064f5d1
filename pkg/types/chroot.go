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
package types

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MountSpec describes a single mount performed under a chroot root. Target
// is always interpreted relative to the root.
type MountSpec struct {
	Source  string `yaml:"source,omitempty" mapstructure:"source"`
	Target  string `yaml:"target" mapstructure:"target"`
	FSType  string `yaml:"fstype,omitempty" mapstructure:"fstype"`
	Options string `yaml:"options,omitempty" mapstructure:"options"`
	Bind    bool   `yaml:"bind,omitempty" mapstructure:"bind"`
	Check   bool   `yaml:"check,omitempty" mapstructure:"check"`
}

// IsSynthetic reports whether the source is a label for a kernel provided
// filesystem (e.g. "tmpfs") rather than an existing path
func (m MountSpec) IsSynthetic() bool {
	return !m.Bind && !filepath.IsAbs(m.Source)
}

// OptionList splits the comma separated options, dropping empty items
func (m MountSpec) OptionList() []string {
	opts := []string{}
	for _, o := range strings.Split(m.Options, ",") {
		if o = strings.TrimSpace(o); o != "" {
			opts = append(opts, o)
		}
	}
	return opts
}

// HasOption reports whether the given option is set
func (m MountSpec) HasOption(opt string) bool {
	for _, o := range m.OptionList() {
		if o == opt {
			return true
		}
	}
	return false
}

// ChrootSpec describes a chroot session
type ChrootSpec struct {
	Path      string      `yaml:"path" mapstructure:"path"`
	Unshare   bool        `yaml:"unshare,omitempty" mapstructure:"unshare"`
	Mounts    []MountSpec `yaml:"mounts,omitempty" mapstructure:"mounts"`
	AutoShell bool        `yaml:"auto-shell" mapstructure:"auto-shell"`
}

// Sanitize checks the consistency of the struct, returns error
// if unsolvable inconsistencies are found
func (c *ChrootSpec) Sanitize() error {
	if c.Path == "" {
		return fmt.Errorf("undefined chroot path")
	}
	c.Path = filepath.Clean(c.Path)
	for i, m := range c.Mounts {
		if strings.TrimSpace(m.Target) == "" {
			return fmt.Errorf("mount %d has no target", i)
		}
		if m.Source == "" {
			if m.Bind {
				return fmt.Errorf("bind mount for %s has no source", m.Target)
			}
			// fresh mounts get the filesystem type as source label
			c.Mounts[i].Source = m.FSType
		}
	}
	return nil
}

// ExecOptions tunes a single command execution inside a chroot
type ExecOptions struct {
	// UserSpec is a user[:group] pair, names or numeric ids
	UserSpec      string
	CaptureOutput bool
	// Dir is the working directory inside the chroot, defaults to /
	Dir string
	// Env replaces the inherited environment when set
	Env []string
}

// ExecutionResult holds the outcome of a command. Stdout and Stderr are
// only set when output was captured.
type ExecutionResult struct {
	ReturnCode int     `yaml:"returncode"`
	Stdout     *string `yaml:"stdout,omitempty"`
	Stderr     *string `yaml:"stderr,omitempty"`
}
