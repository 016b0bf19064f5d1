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
package chroot

import (
	"bytes"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/moby/sys/userns"

	"github.com/rancher/chorut/pkg/command"
	chorutError "github.com/rancher/chorut/pkg/error"
	"github.com/rancher/chorut/pkg/mounts"
	"github.com/rancher/chorut/pkg/namespace"
	"github.com/rancher/chorut/pkg/types"
	"github.com/rancher/chorut/pkg/utils"
)

// State is the lifecycle stage of a Chroot
type State int

const (
	Created State = iota
	SettingUp
	Ready
	TornDown
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case SettingUp:
		return "setting up"
	case Ready:
		return "ready"
	case TornDown:
		return "torn down"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Namespace is the private namespace a chroot is set up in when unsharing
type Namespace interface {
	Enter() error
	Release() error
	UserNS() bool
	Mounter(rawRoot string) types.Mounter
	Exec(rawRoot string, req command.Request) (int, error)
}

type Option func(c *Chroot)

// WithNamespace sets the namespace used in unshare mode
func WithNamespace(ns Namespace) Option {
	return func(c *Chroot) {
		c.ns = ns
	}
}

// Chroot is a chroot session: the required and custom mounts under a root,
// optionally in a private namespace, and the commands run in it
type Chroot struct {
	cfg      *types.Config
	spec     types.ChrootSpec
	state    State
	ns       Namespace
	entered  bool
	mounts   *mounts.Manager
	executor *command.Executor
}

func NewChroot(cfg *types.Config, spec types.ChrootSpec, opts ...Option) *Chroot {
	c := &Chroot{
		cfg:      cfg,
		spec:     spec,
		state:    Created,
		executor: command.NewExecutor(cfg),
	}
	for _, o := range opts {
		o(c)
	}
	if c.ns == nil {
		c.ns = namespace.NewController(cfg)
	}
	return c
}

func (c *Chroot) State() State {
	return c.state
}

func (c *Chroot) Path() string {
	return c.spec.Path
}

// Mounts returns the mounts currently applied, in mount order
func (c *Chroot) Mounts() []mounts.Record {
	if c.mounts == nil {
		return []mounts.Record{}
	}
	return c.mounts.Records()
}

// Setup validates the chroot, enters the namespace if unsharing and
// applies every mount. On failure nothing is left mounted and the chroot
// can be set up again.
func (c *Chroot) Setup() (err error) {
	if c.state != Created {
		return chorutError.NewChrootError(
			chorutError.AlreadySetUp, fmt.Sprintf("chroot %s is already %s", c.spec.Path, c.state), nil,
		)
	}
	if ok, _ := utils.IsDir(c.cfg.Fs, c.spec.Path); !ok {
		return chorutError.NewChrootError(
			chorutError.NotADirectory, fmt.Sprintf("chroot path %s is not a directory", c.spec.Path), nil,
		)
	}
	for _, m := range c.spec.Mounts {
		if m.IsSynthetic() {
			continue
		}
		if ok, _ := utils.Exists(c.cfg.Fs, m.Source); !ok {
			return chorutError.NewMountError(chorutError.MissingSource, m.Source, "missing mount source", nil)
		}
	}
	if !c.spec.Unshare && c.cfg.Syscall.Geteuid() != 0 {
		return chorutError.NewChrootError(
			chorutError.InsufficientPrivilege, "mounting without unshare requires root privileges", nil,
		)
	}

	c.state = SettingUp
	cleanup := utils.NewCleanStack()
	defer func() {
		err = chorutError.Combine(cleanup.Cleanup(err), chorutError.Unknown)
		if err != nil {
			c.state = Created
			c.mounts = nil
		}
	}()

	var mounter types.Mounter
	inUserNS := userns.RunningInUserNS()
	if c.spec.Unshare {
		rawRoot, rErr := c.cfg.Fs.RawPath(c.spec.Path)
		if rErr != nil {
			return chorutError.NewChrootError(chorutError.NamespaceFailed, "failed resolving chroot path", rErr)
		}
		c.cfg.Logger.Debugf("Entering private namespace for %s", c.spec.Path)
		if err = c.ns.Enter(); err != nil {
			return chorutError.NewChrootError(chorutError.NamespaceFailed, "failed entering namespace", err)
		}
		c.entered = true
		cleanup.PushErrorOnly(c.release)
		mounter = c.ns.Mounter(rawRoot)
		inUserNS = inUserNS || c.ns.UserNS()
	}

	c.mounts = mounts.NewManager(c.cfg, mounter, mounts.RequiredMounts(inUserNS))
	if err = c.mounts.MountAll(c.spec.Path, c.spec.Mounts); err != nil {
		return err
	}

	c.cfg.Logger.Infof("Chroot %s ready with %d mounts", c.spec.Path, len(c.mounts.Records()))
	c.state = Ready
	return nil
}

// Teardown unmounts everything in reverse order and releases the
// namespace. Every step is attempted and failures are reported together.
// It does nothing unless the chroot is ready.
func (c *Chroot) Teardown() error {
	if c.state != Ready {
		c.cfg.Logger.Debugf("Chroot %s is %s, nothing to tear down", c.spec.Path, c.state)
		return nil
	}
	var errs *multierror.Error

	if err := c.mounts.UnmountAll(); err != nil {
		c.cfg.Logger.Errorf("Failed unmounting chroot %s: %s", c.spec.Path, err.Error())
		errs = multierror.Append(errs, err)
	}
	if err := c.release(); err != nil {
		c.cfg.Logger.Errorf("Failed releasing namespace of %s: %s", c.spec.Path, err.Error())
		errs = multierror.Append(errs, err)
	}
	c.state = TornDown

	if errs != nil {
		return chorutError.NewChrootError(
			chorutError.TeardownFailed, fmt.Sprintf("failed tearing down chroot %s", c.spec.Path), errs,
		)
	}
	c.cfg.Logger.Infof("Chroot %s torn down", c.spec.Path)
	return nil
}

func (c *Chroot) release() error {
	if !c.entered {
		return nil
	}
	c.entered = false
	return c.ns.Release()
}

// Scoped sets up the chroot, runs fn and tears the chroot down on every
// exit path of fn, panics included. Teardown failures are combined with
// the error returned by fn.
func (c *Chroot) Scoped(fn func(*Chroot) error) (err error) {
	if err = c.Setup(); err != nil {
		return err
	}
	cleanup := utils.NewCleanStack()
	cleanup.Push(c.Teardown)
	defer func() {
		err = chorutError.Combine(cleanup.Cleanup(err), chorutError.TeardownFailed)
	}()
	return fn(c)
}

// Execute runs cmd in the chroot and waits for it. A nil or empty command
// starts an interactive shell. Non zero exit codes and missing programs
// are reported through the result, errors are only returned if the
// command could not be started in the chroot.
func (c *Chroot) Execute(cmd command.Command, opts types.ExecOptions) (*types.ExecutionResult, error) {
	if c.state != Ready {
		return nil, chorutError.NewChrootError(
			chorutError.NotReady, fmt.Sprintf("chroot %s is %s, not ready", c.spec.Path, c.state), nil,
		)
	}
	args, err := command.Resolve(cmd, c.spec.AutoShell)
	if err != nil {
		return nil, err
	}

	req := command.Request{
		Args:     args,
		UserSpec: opts.UserSpec,
		Dir:      opts.Dir,
		Env:      opts.Env,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
	var stdout, stderr bytes.Buffer
	if opts.CaptureOutput {
		req.Stdout = &stdout
		req.Stderr = &stderr
	}

	var rc int
	if c.entered {
		rawRoot, rErr := c.cfg.Fs.RawPath(c.spec.Path)
		if rErr != nil {
			return nil, chorutError.NewChrootError(chorutError.ExecFailed, "failed resolving chroot path", rErr)
		}
		rc, err = c.ns.Exec(rawRoot, req)
	} else {
		rc, err = c.executor.Run(c.spec.Path, req)
	}
	if err != nil {
		return nil, err
	}

	result := &types.ExecutionResult{ReturnCode: rc}
	if opts.CaptureOutput {
		out, errOut := stdout.String(), stderr.String()
		result.Stdout = &out
		result.Stderr = &errOut
	}
	c.cfg.Logger.Debugf("Command '%v' returned %d", args, rc)
	return result, nil
}
