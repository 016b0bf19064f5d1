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
	"os"
	"syscall"

	"github.com/moby/sys/reexec"
	"golang.org/x/sys/unix"

	"github.com/rancher/chorut/pkg/command"
	"github.com/rancher/chorut/pkg/constants"
	chorutError "github.com/rancher/chorut/pkg/error"
	"github.com/rancher/chorut/pkg/types"
)

// Controller creates the private mount namespace of a chroot session and
// releases it. Non root callers get a user namespace mapping them to root
// so they can mount inside it. Once entered, mounts and commands are run
// through the controller.
type Controller struct {
	logger  types.Logger
	syscall types.SyscallInterface
	handle  *Handle
}

func NewController(cfg *types.Config) *Controller {
	return &Controller{logger: cfg.Logger, syscall: cfg.Syscall}
}

// Enter starts the helper process owning the new namespaces and waits
// until it is ready to serve requests
func (c *Controller) Enter() error {
	if c.handle != nil {
		return chorutError.NewChrootError(chorutError.NamespaceFailed, "namespace already entered", nil)
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return chorutError.NewChrootError(chorutError.NamespaceFailed, "failed creating control socket", err)
	}
	helperFile := os.NewFile(uintptr(fds[0]), "nsinit-socket")
	controllerFile := os.NewFile(uintptr(fds[1]), "controller-socket")

	// FileConn dups the descriptor
	cn, err := newConn(controllerFile)
	_ = controllerFile.Close()
	if err != nil {
		_ = helperFile.Close()
		return chorutError.NewChrootError(chorutError.NamespaceFailed, "failed opening control socket", err)
	}

	euid, egid := c.syscall.Geteuid(), c.syscall.Getegid()
	userNS := euid != 0

	cmd := reexec.Command(constants.NsInitName)
	cmd.Env = append(os.Environ(), types.LevelEnv(c.logger))
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{helperFile}
	cmd.SysProcAttr = sysProcAttr(userNS, euid, egid)

	c.logger.Debugf("Starting namespace helper, user namespace: %t", userNS)
	err = cmd.Start()
	_ = helperFile.Close()
	if err != nil {
		_ = cn.close()
		return chorutError.NewChrootError(chorutError.NamespaceFailed, "failed creating namespace", err)
	}

	h := newHandle(cn, cmd, userNS, c.logger)
	if err = h.waitReady(); err != nil {
		h.kill()
		return err
	}
	c.logger.Debugf("Namespace helper ready with pid %d", h.Pid())
	c.handle = h
	return nil
}

// Release shuts down the namespace entered last, if any. Mounts still
// present in the namespace disappear with it.
func (c *Controller) Release() error {
	if c.handle == nil {
		return nil
	}
	h := c.handle
	c.handle = nil
	c.logger.Debugf("Releasing namespace of helper %d", h.Pid())
	return h.shutdown()
}

// Handle returns the namespace entered last, nil if none
func (c *Controller) Handle() *Handle {
	return c.handle
}

// UserNS reports whether the entered namespace includes a user namespace
func (c *Controller) UserNS() bool {
	return c.handle != nil && c.handle.UserNS()
}

// Mounter returns a mounter operating inside the entered namespace, nil
// if not entered. See Handle.Mounter.
func (c *Controller) Mounter(rawRoot string) types.Mounter {
	if c.handle == nil {
		return nil
	}
	return c.handle.Mounter(rawRoot)
}

// Exec runs req in the entered namespace, see Handle.Exec
func (c *Controller) Exec(rawRoot string, req command.Request) (int, error) {
	if c.handle == nil {
		return -1, chorutError.NewChrootError(chorutError.NamespaceFailed, "namespace not entered", nil)
	}
	return c.handle.Exec(rawRoot, req)
}

func sysProcAttr(userNS bool, euid, egid int) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS | syscall.CLONE_NEWPID,
		Pdeathsig:  syscall.SIGKILL,
	}
	if userNS {
		attr.Cloneflags |= syscall.CLONE_NEWUSER
		attr.UidMappings = []syscall.SysProcIDMap{
			{
				ContainerID: 0,
				HostID:      euid,
				Size:        1,
			},
		}
		attr.GidMappings = []syscall.SysProcIDMap{
			{
				ContainerID: 0,
				HostID:      egid,
				Size:        1,
			},
		}
		attr.GidMappingsEnableSetgroups = false
	}
	return attr
}
