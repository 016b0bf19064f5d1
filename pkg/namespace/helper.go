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
package namespace

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/mount"
	"github.com/moby/sys/mountinfo"
	"github.com/moby/sys/reexec"
	"github.com/moby/sys/symlink"

	"github.com/rancher/chorut/pkg/command"
	"github.com/rancher/chorut/pkg/config"
	"github.com/rancher/chorut/pkg/constants"
	chorutError "github.com/rancher/chorut/pkg/error"
	"github.com/rancher/chorut/pkg/types"
)

func init() {
	reexec.Register(constants.NsInitName, nsInit)
}

// inScope fails unless target, resolved from within the namespace, is
// itself and lies under root. Mounts made earlier in the namespace may
// have changed what a path resolves to since it was computed on the host.
// An empty root checks nothing.
func inScope(root, target string) error {
	if root == "" {
		return nil
	}
	root, target = filepath.Clean(root), filepath.Clean(target)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return chorutError.NewMountError(chorutError.PathEscape, target, "mount target is outside of "+root, err)
	}
	resolved, err := symlink.FollowSymlinkInScope(target, root)
	if err != nil {
		return chorutError.NewMountError(chorutError.MountFailed, target, "failed resolving mount target", err)
	}
	if resolved != target {
		return chorutError.NewMountError(chorutError.PathEscape, target, "mount target resolves to "+resolved+" inside the namespace", nil)
	}
	return nil
}

// nsInit is the entry point of the namespace helper. It runs as the first
// process of the new namespaces and serves the controller until told to
// stop or until the control socket is closed.
func nsInit() {
	logger := types.NewHelperLogger()

	f := os.NewFile(uintptr(constants.ControlFd), "control")
	c, err := newConn(f)
	_ = f.Close()
	if err != nil {
		logger.Errorf("chorut namespace helper: %s", err.Error())
		os.Exit(1)
	}

	cfg := config.NewConfig(config.WithLogger(logger))
	h := newHelper(cfg, c, sysMounter{}, os.MkdirAll)

	// Mounts done from now on must not propagate to the host
	if err = mount.MakeRPrivate("/"); err != nil {
		_ = h.ready(chorutError.NewChrootError(chorutError.NamespaceFailed, "failed making mounts private", err))
		os.Exit(1)
	}
	if err = h.ready(nil); err != nil {
		logger.Errorf("chorut namespace helper: %s", err.Error())
		os.Exit(1)
	}
	os.Exit(h.serve())
}

type helper struct {
	logger   types.Logger
	conn     *conn
	mounter  types.Mounter
	mkdirAll func(string, os.FileMode) error
	executor *command.Executor
}

func newHelper(cfg *types.Config, c *conn, mounter types.Mounter, mkdirAll func(string, os.FileMode) error) *helper {
	return &helper{
		logger:   cfg.Logger,
		conn:     c,
		mounter:  mounter,
		mkdirAll: mkdirAll,
		executor: command.NewExecutor(cfg),
	}
}

func (h *helper) ready(err error) error {
	if err != nil {
		return h.conn.send(errorResponse(opReady, err))
	}
	return h.conn.send(&response{Op: opReady})
}

// serve handles requests until shutdown and returns the exit code of the
// helper
func (h *helper) serve() int {
	for {
		req := &request{}
		files, err := h.conn.recv(req)
		if errors.Is(err, io.EOF) {
			h.logger.Debug("Control socket closed, exiting")
			return 0
		}
		if err != nil {
			h.logger.Errorf("Failed reading request: %s", err.Error())
			return 1
		}
		res := h.handle(req, files)
		closeFiles(files)
		if err = h.conn.send(res); err != nil {
			h.logger.Errorf("Failed sending %s reply: %s", req.Op, err.Error())
			return 1
		}
		if req.Op == opShutdown {
			return 0
		}
	}
}

func (h *helper) handle(req *request, files []*os.File) *response {
	h.logger.Debugf("Namespace request: %s %s", req.Op, req.Target)
	res := &response{Op: req.Op}

	switch req.Op {
	case opMount:
		if err := inScope(req.Root, req.Target); err != nil {
			return errorResponse(req.Op, err)
		}
		err := h.mounter.Mount(req.Source, req.Target, req.FSType, req.Options)
		if err != nil {
			return errorResponse(req.Op, chorutError.NewMountError(chorutError.MountFailed, req.Target, "failed mounting", err))
		}
	case opUnmount:
		if err := h.mounter.Unmount(req.Target); err != nil {
			return errorResponse(req.Op, chorutError.NewMountError(chorutError.UnmountFailed, req.Target, "failed unmounting", err))
		}
	case opMounted:
		notMnt, err := h.mounter.IsLikelyNotMountPoint(req.Target)
		if err != nil {
			return errorResponse(req.Op, chorutError.NewMountError(chorutError.MountFailed, req.Target, "failed checking mount point", err))
		}
		res.NotMounted = notMnt
	case opMkdir:
		if err := inScope(req.Root, req.Target); err != nil {
			return errorResponse(req.Op, err)
		}
		if err := h.mkdirAll(req.Target, os.FileMode(req.Perm)); err != nil {
			return errorResponse(req.Op, chorutError.NewMountError(chorutError.MountFailed, req.Target, "failed creating mount point", err))
		}
	case opExec:
		rc, err := h.exec(req.Exec, files)
		if err != nil {
			return errorResponse(req.Op, err)
		}
		res.ReturnCode = rc
	case opShutdown:
	default:
		return errorResponse(req.Op, chorutError.NewChrootError(chorutError.NamespaceFailed, "unknown request: "+req.Op, nil))
	}
	return res
}

func (h *helper) exec(req *execRequest, files []*os.File) (int, error) {
	if req == nil {
		return -1, chorutError.NewChrootError(chorutError.InvalidCommand, "missing exec parameters", nil)
	}
	if len(files) != stdioFiles {
		return -1, chorutError.NewChrootError(chorutError.ExecFailed, "exec request without standard streams", nil)
	}
	return h.executor.Run(req.Root, command.Request{
		Args:     req.Args,
		UserSpec: req.UserSpec,
		Dir:      req.Dir,
		Env:      req.Env,
		Stdin:    files[0],
		Stdout:   files[1],
		Stderr:   files[2],
	})
}

// sysMounter mounts with direct system calls, there is no mount binary
// involved inside the namespace
type sysMounter struct{}

func (sysMounter) Mount(source string, target string, fstype string, options []string) error {
	return mount.Mount(source, target, fstype, strings.Join(options, ","))
}

func (sysMounter) Unmount(target string) error {
	return mount.Unmount(target)
}

func (sysMounter) IsLikelyNotMountPoint(file string) (bool, error) {
	mounted, err := mountinfo.Mounted(file)
	return !mounted, err
}
