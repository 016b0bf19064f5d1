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
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/moby/sys/user"

	"github.com/rancher/chorut/pkg/constants"
	chorutError "github.com/rancher/chorut/pkg/error"
	"github.com/rancher/chorut/pkg/types"
	"github.com/rancher/chorut/pkg/utils"
)

// Request describes a process to run inside a chroot. Nil streams are
// connected to the null device.
type Request struct {
	Args []string
	// UserSpec is a user[:group] pair resolved against the chroot user databases
	UserSpec string
	Dir      string
	Env      []string
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
}

// Executor runs commands with their filesystem root set to a chroot
type Executor struct {
	fs      types.FS
	logger  types.Logger
	runner  types.Runner
	syscall types.SyscallInterface
}

func NewExecutor(cfg *types.Config) *Executor {
	return &Executor{
		fs:      cfg.Fs,
		logger:  cfg.Logger,
		runner:  cfg.Runner,
		syscall: cfg.Syscall,
	}
}

// Run executes the request inside root and waits for it. The exit status of
// the process is returned as is, a missing program gives 127 and a process
// killed by a signal gives the negated signal number. Errors are only
// returned when the process could not be started in the chroot, a missing
// working directory included.
func (e *Executor) Run(root string, req Request) (int, error) {
	if len(req.Args) == 0 {
		return -1, chorutError.NewChrootError(chorutError.InvalidCommand, "empty command", nil)
	}
	rawRoot, err := e.fs.RawPath(root)
	if err != nil {
		return -1, chorutError.NewChrootError(chorutError.ExecFailed, "failed resolving chroot path", err)
	}

	dir := req.Dir
	if dir == "" {
		dir = "/"
	}
	if err = e.checkDir(root, dir); err != nil {
		return -1, err
	}
	env := environment(req.Env)

	program, found := e.lookPath(root, req.Args[0], dir, env)
	if !found {
		return e.notFound(req, "command not found"), nil
	}

	attr := &syscall.SysProcAttr{Chroot: rawRoot}
	if req.UserSpec != "" {
		cred, home, err := e.credential(root, req.UserSpec)
		if err != nil {
			return -1, err
		}
		attr.Credential = cred
		if home != "" {
			env = setEnv(env, "HOME", home)
		}
	}

	cmd := &exec.Cmd{
		Path:        program,
		Args:        req.Args,
		Env:         env,
		Dir:         dir,
		Stdin:       req.Stdin,
		Stdout:      req.Stdout,
		Stderr:      req.Stderr,
		SysProcAttr: attr,
	}
	e.logger.Debugf("Running '%s' in chroot %s", strings.Join(req.Args, " "), rawRoot)
	err = e.runner.RunAttached(cmd)
	if errors.Is(err, syscall.ENOENT) {
		return e.notFound(req, "no such file or directory"), nil
	}
	return exitStatus(err, attr.Credential != nil)
}

// checkDir fails unless dir is a directory inside root. A missing working
// directory makes the start fail with ENOENT, like a missing program would.
func (e *Executor) checkDir(root, dir string) error {
	resolved, _, err := utils.ResolveInRoot(e.fs, root, dir)
	if err == nil {
		var isDir bool
		isDir, err = utils.IsDir(e.fs, resolved)
		if err == nil && !isDir {
			err = syscall.ENOTDIR
		}
	}
	if err != nil {
		return chorutError.NewChrootError(
			chorutError.ExecFailed, fmt.Sprintf("working directory %s is not usable in the chroot", dir), err,
		)
	}
	return nil
}

func (e *Executor) notFound(req Request, reason string) int {
	e.logger.Debugf("Program '%s' not found in chroot", req.Args[0])
	if req.Stderr != nil {
		fmt.Fprintf(req.Stderr, "chorut: %s: %s\n", req.Args[0], reason)
	}
	return constants.CommandNotFound
}

// lookPath searches the program inside root like a shell would after the
// chroot, following PATH unless name already contains a slash
func (e *Executor) lookPath(root, name, dir string, env []string) (string, bool) {
	if strings.Contains(name, "/") {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		return path, e.isExecutable(root, path)
	}
	searchPath := getEnv(env, "PATH")
	if searchPath == "" {
		searchPath = constants.DefaultPath
	}
	for _, d := range filepath.SplitList(searchPath) {
		if !filepath.IsAbs(d) {
			continue
		}
		path := filepath.Join(d, name)
		if e.isExecutable(root, path) {
			return path, true
		}
	}
	return name, false
}

func (e *Executor) isExecutable(root, path string) bool {
	resolved, _, err := utils.ResolveInRoot(e.fs, root, path)
	if err != nil {
		return false
	}
	return utils.IsExecutable(e.fs, resolved)
}

// credential resolves userSpec against the passwd and group files of root
func (e *Executor) credential(root, userSpec string) (*syscall.Credential, string, error) {
	if e.syscall.Geteuid() != 0 {
		return nil, "", chorutError.NewChrootError(
			chorutError.InsufficientPrivilege,
			fmt.Sprintf("switching to user '%s' requires root privileges", userSpec), nil,
		)
	}

	passwd, closePasswd := e.openInRoot(root, constants.PasswdFile)
	defer closePasswd()
	group, closeGroup := e.openInRoot(root, constants.GroupFile)
	defer closeGroup()

	defaults := &user.ExecUser{Uid: 0, Gid: 0, Home: "/"}
	execUser, err := user.GetExecUser(userSpec, defaults, passwd, group)
	if err != nil {
		return nil, "", chorutError.NewChrootError(
			chorutError.InvalidUserSpec, fmt.Sprintf("invalid user spec '%s'", userSpec), err,
		)
	}
	groups := make([]uint32, 0, len(execUser.Sgids))
	for _, gid := range execUser.Sgids {
		groups = append(groups, uint32(gid))
	}
	e.logger.Debugf("Switching to uid %d, gid %d", execUser.Uid, execUser.Gid)
	return &syscall.Credential{
		Uid:    uint32(execUser.Uid),
		Gid:    uint32(execUser.Gid),
		Groups: groups,
	}, execUser.Home, nil
}

// openInRoot returns a nil reader if the file can't be opened
func (e *Executor) openInRoot(root, path string) (io.Reader, func()) {
	resolved, _, err := utils.ResolveInRoot(e.fs, root, path)
	if err != nil {
		return nil, func() {}
	}
	f, err := e.fs.Open(resolved)
	if err != nil {
		e.logger.Debugf("Could not open %s: %s", resolved, err.Error())
		return nil, func() {}
	}
	return f, func() { _ = f.Close() }
}

func exitStatus(err error, switchingUser bool) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return -int(status.Signal()), nil
		}
		return exitErr.ExitCode(), nil
	}
	if errors.Is(err, syscall.EPERM) || (switchingUser && errors.Is(err, syscall.EINVAL)) {
		return -1, chorutError.NewChrootError(chorutError.InsufficientPrivilege, "cannot enter the chroot", err)
	}
	return -1, chorutError.NewChrootError(chorutError.ExecFailed, "failed running command", err)
}

// environment returns env, or the current process environment if nil, with
// the chroot defaults set
func environment(env []string) []string {
	if env == nil {
		env = os.Environ()
	}
	env = append([]string{}, env...)
	for k, v := range constants.GetDefaultEnv() {
		env = setEnv(env, k, v)
	}
	return env
}

func getEnv(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(env[i], "="); ok && k == key {
			return v
		}
	}
	return ""
}

func setEnv(env []string, key, value string) []string {
	for i, kv := range env {
		if k, _, ok := strings.Cut(kv, "="); ok && k == key {
			env[i] = key + "=" + value
			return env
		}
	}
	return append(env, key+"="+value)
}
