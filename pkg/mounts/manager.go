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
package mounts

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"

	"github.com/rancher/chorut/pkg/constants"
	chorutError "github.com/rancher/chorut/pkg/error"
	"github.com/rancher/chorut/pkg/fstype"
	"github.com/rancher/chorut/pkg/types"
	"github.com/rancher/chorut/pkg/utils"
)

// Record is a mount resolved, and possibly performed, by a Manager
type Record struct {
	Spec    types.MountSpec `yaml:"spec"`
	Source  string          `yaml:"source"`
	Target  string          `yaml:"target"`
	Index   int             `yaml:"index"`
	Mounted bool            `yaml:"mounted"`

	path    string
	fsType  string
	options []string
}

// Manager mounts an ordered list of filesystems under a root and unmounts
// them in reverse order. It only ever unmounts what it mounted itself.
type Manager struct {
	fs       types.FS
	logger   types.Logger
	runner   types.Runner
	mounter  types.Mounter
	required []types.MountSpec
	records  []*Record
	count    int
}

// NewManager returns a Manager mounting through the given mounter, or the
// config mounter if nil. Required mounts always go before custom ones.
func NewManager(cfg *types.Config, mounter types.Mounter, required []types.MountSpec) *Manager {
	if mounter == nil {
		mounter = cfg.Mounter
	}
	return &Manager{
		fs:       cfg.Fs,
		logger:   cfg.Logger,
		runner:   cfg.Runner,
		mounter:  mounter,
		required: required,
		records:  []*Record{},
	}
}

// Plan resolves and validates every mount without applying any
func (m *Manager) Plan(root string, custom []types.MountSpec) ([]Record, error) {
	plan := []Record{}
	for i, spec := range m.specs(custom) {
		rec, err := m.prepare(root, spec)
		if err != nil {
			return nil, err
		}
		rec.Index = i
		plan = append(plan, *rec)
	}
	return plan, nil
}

// MountAll mounts the required and the custom mounts under root. On failure
// every mount applied by this call is unmounted in reverse order before
// returning.
func (m *Manager) MountAll(root string, custom []types.MountSpec) (err error) {
	cleanup := utils.NewCleanStack()
	defer func() {
		err = chorutError.Combine(cleanup.Cleanup(err), chorutError.MountFailed)
	}()

	for _, spec := range m.specs(custom) {
		rec, err := m.prepare(root, spec)
		if err != nil {
			return err
		}
		if err = m.mount(rec); err != nil {
			return err
		}
		cleanup.PushErrorOnly(func() error { return m.unmount(rec) })
	}
	return nil
}

// UnmountAll unmounts every tracked mount in reverse order. It attempts all
// of them and reports the failures as a single error. Failed mounts remain
// tracked.
func (m *Manager) UnmountAll() error {
	var errs *multierror.Error

	records := append([]*Record{}, m.records...)
	for i := len(records) - 1; i >= 0; i-- {
		if err := m.unmount(records[i]); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs != nil {
		return chorutError.NewMountError(
			chorutError.UnmountFailed, "",
			fmt.Sprintf("failed unmounting %d of %d mounts", errs.Len(), len(records)), errs,
		)
	}
	return nil
}

// Records returns a snapshot of the tracked mounts in mount order
func (m *Manager) Records() []Record {
	list := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		list = append(list, *r)
	}
	return list
}

func (m *Manager) specs(custom []types.MountSpec) []types.MountSpec {
	specs := make([]types.MountSpec, 0, len(m.required)+len(custom))
	specs = append(specs, m.required...)
	return append(specs, custom...)
}

// prepare resolves the target inside root and validates the mount without
// side effects
func (m *Manager) prepare(root string, spec types.MountSpec) (*Record, error) {
	path, target, err := utils.ResolveInRoot(m.fs, root, spec.Target)
	if errors.Is(err, utils.ErrPathEscape) {
		return nil, chorutError.NewMountError(chorutError.PathEscape, spec.Target, "mount target escapes the chroot", nil)
	} else if err != nil {
		return nil, chorutError.NewMountError(chorutError.MountFailed, spec.Target, "failed resolving mount target", err)
	}
	if path == filepath.Clean(root) {
		return nil, chorutError.NewMountError(chorutError.PathEscape, spec.Target, "mount target is the chroot root", nil)
	}

	source := spec.Source
	if !spec.IsSynthetic() {
		if source, err = m.fs.RawPath(spec.Source); err != nil {
			return nil, chorutError.NewMountError(chorutError.MissingSource, spec.Source, "failed resolving mount source", err)
		}
	}

	fsType, options, err := m.mountArgs(spec, target)
	if err != nil {
		return nil, err
	}

	return &Record{
		Spec:    spec,
		Source:  source,
		Target:  target,
		path:    path,
		fsType:  fsType,
		options: options,
	}, nil
}

func (m *Manager) mountArgs(spec types.MountSpec, target string) (string, []string, error) {
	opts := spec.OptionList()
	if spec.Bind {
		if !spec.HasOption("bind") && !spec.HasOption("rbind") {
			opts = append([]string{"bind"}, opts...)
		}
		return spec.FSType, opts, nil
	}

	if spec.FSType == "" {
		return "", nil, chorutError.NewMountError(chorutError.UnsupportedFSType, target, "missing filesystem type for", nil)
	}
	if !fstype.Known(spec.FSType) {
		ok, err := fstype.KernelSupports(m.fs, spec.FSType)
		if err != nil {
			m.logger.Debugf("Could not read kernel filesystems: %s", err.Error())
		}
		if !ok {
			return "", nil, chorutError.NewMountError(
				chorutError.UnsupportedFSType, target,
				fmt.Sprintf("unsupported filesystem type '%s' for", spec.FSType), err,
			)
		}
	}
	if spec.FSType == "tmpfs" {
		if err := validateTmpfsOptions(target, opts); err != nil {
			return "", nil, err
		}
	}
	return spec.FSType, opts, nil
}

func validateTmpfsOptions(target string, opts []string) error {
	for _, opt := range opts {
		key, value, found := strings.Cut(opt, "=")
		if !found {
			continue
		}
		var err error
		switch key {
		case "size", "nr_blocks", "nr_inodes":
			if pct, isPct := strings.CutSuffix(value, "%"); isPct && key == "size" {
				_, err = strconv.ParseUint(pct, 10, 8)
			} else {
				_, err = units.RAMInBytes(value)
			}
		case "mode":
			_, err = strconv.ParseUint(value, 8, 32)
		}
		if err != nil {
			return chorutError.NewMountError(chorutError.InvalidOptions, target, fmt.Sprintf("invalid tmpfs option '%s' for", opt), err)
		}
	}
	return nil
}

func (m *Manager) mount(rec *Record) error {
	if err := m.check(rec); err != nil {
		return err
	}

	var err error
	if maker, ok := m.mounter.(types.MountpointMaker); ok {
		err = maker.MkdirAll(rec.Target, constants.DirPerm)
	} else {
		err = utils.MkdirAll(m.fs, rec.path, constants.DirPerm)
	}
	if err != nil {
		return mountError(rec.Target, "failed creating mount point", err)
	}

	m.logger.Debugf("Mounting %s to %s", rec.Source, rec.Target)
	err = m.mounter.Mount(rec.Source, rec.Target, rec.fsType, rec.options)
	if err != nil {
		m.logger.Errorf("Failed mounting %s to %s: %s", rec.Source, rec.Target, err.Error())
		return mountError(rec.Target, "failed mounting", err)
	}
	rec.Index = m.count
	rec.Mounted = true
	m.count++
	m.records = append(m.records, rec)
	return nil
}

// mountError wraps err as a MountFailed error unless the mounter already
// reported a MountError, as the namespace helper does
func mountError(target, msg string, err error) error {
	var mErr *chorutError.MountError
	if errors.As(err, &mErr) {
		return err
	}
	return chorutError.NewMountError(chorutError.MountFailed, target, msg, err)
}

// check runs fsck on the source when requested, exit code 1 means errors
// were corrected
func (m *Manager) check(rec *Record) error {
	if !rec.Spec.Check || rec.Spec.Bind || !fstype.HasFsck(rec.fsType) {
		return nil
	}
	if !m.runner.CommandExists(constants.FsckBinary) {
		return chorutError.NewMountError(chorutError.CheckFailed, rec.Source, constants.FsckBinary+" not found, can not check", nil)
	}
	m.logger.Infof("Checking %s filesystem on %s", rec.fsType, rec.Source)
	out, err := m.runner.Run(constants.FsckBinary, "-a", "-t", rec.fsType, rec.Source)
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		m.logger.Warnf("Filesystem errors corrected on %s", rec.Source)
		return nil
	}
	m.logger.Debugf("fsck output: %s", out)
	return chorutError.NewMountError(chorutError.CheckFailed, rec.Source, "filesystem check failed for", err)
}

func (m *Manager) unmount(rec *Record) error {
	m.logger.Debugf("Unmounting %s", rec.Target)
	err := m.mounter.Unmount(rec.Target)
	if err != nil {
		notMnt, cErr := m.mounter.IsLikelyNotMountPoint(rec.Target)
		if cErr != nil || !notMnt {
			m.logger.Errorf("Error unmounting %s: %s", rec.Target, err.Error())
			return chorutError.NewMountError(chorutError.UnmountFailed, rec.Target, "failed unmounting", err)
		}
		m.logger.Debugf("%s is no longer a mount point", rec.Target)
	}
	rec.Mounted = false
	for i, r := range m.records {
		if r == rec {
			m.records = append(m.records[:i], m.records[i+1:]...)
			break
		}
	}
	return nil
}
