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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/moby/sys/mountinfo"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/twpayne/go-vfs/v4"
	"golang.org/x/sys/unix"

	"github.com/rancher/chorut/pkg/command"
	"github.com/rancher/chorut/pkg/config"
	"github.com/rancher/chorut/pkg/constants"
	chorutError "github.com/rancher/chorut/pkg/error"
	"github.com/rancher/chorut/pkg/mocks"
	"github.com/rancher/chorut/pkg/types"
)

func connPair() (*conn, *conn) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	Expect(err).ToNot(HaveOccurred())
	fa := os.NewFile(uintptr(fds[0]), "a")
	fb := os.NewFile(uintptr(fds[1]), "b")
	defer fa.Close()
	defer fb.Close()
	a, err := newConn(fa)
	Expect(err).ToNot(HaveOccurred())
	b, err := newConn(fb)
	Expect(err).ToNot(HaveOccurred())
	return a, b
}

var _ = Describe("Protocol", Label("namespace", "protocol"), func() {
	var a, b *conn

	BeforeEach(func() {
		a, b = connPair()
	})
	AfterEach(func() {
		_ = a.close()
		_ = b.close()
	})

	It("keeps message boundaries", func() {
		Expect(a.send(&request{Op: opMount, Source: "tmpfs", Target: "/mnt", Options: []string{"size=1m"}})).To(Succeed())
		Expect(a.send(&request{Op: opUnmount, Target: "/mnt"})).To(Succeed())

		req := &request{}
		files, err := b.recv(req)
		Expect(err).ToNot(HaveOccurred())
		Expect(files).To(BeEmpty())
		Expect(req).To(Equal(&request{Op: opMount, Source: "tmpfs", Target: "/mnt", Options: []string{"size=1m"}}))

		req = &request{}
		_, err = b.recv(req)
		Expect(err).ToNot(HaveOccurred())
		Expect(req.Op).To(Equal(opUnmount))
		Expect(req.Target).To(Equal("/mnt"))
	})

	It("passes file descriptors along", func() {
		pr, pw, err := os.Pipe()
		Expect(err).ToNot(HaveOccurred())
		defer pr.Close()

		Expect(a.send(&request{Op: opExec}, pw)).To(Succeed())
		Expect(pw.Close()).To(Succeed())

		files, err := b.recv(&request{})
		Expect(err).ToNot(HaveOccurred())
		Expect(files).To(HaveLen(1))
		_, err = files[0].WriteString("through the socket")
		Expect(err).ToNot(HaveOccurred())
		closeFiles(files)

		data, err := io.ReadAll(pr)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(Equal("through the socket"))
	})

	It("reports closed peers", func() {
		Expect(a.close()).To(Succeed())
		_, err := b.recv(&request{})
		Expect(err).To(MatchError(io.EOF))
	})

	It("rebuilds errors with their kind", func() {
		orig := chorutError.NewMountError(chorutError.PathEscape, "/root/../etc", "mount target escapes chroot", errors.New("path escapes root"))
		err := errorResponse(opMount, orig).err(chorutError.MountFailed)
		Expect(chorutError.IsMountError(err, chorutError.PathEscape)).To(BeTrue())
		Expect(err.Error()).To(Equal(orig.Error()))
		var mErr *chorutError.MountError
		Expect(errors.As(err, &mErr)).To(BeTrue())
		Expect(mErr.Target()).To(Equal("/root/../etc"))

		orig = chorutError.NewChrootError(chorutError.InvalidUserSpec, "invalid user spec 'ghost'", nil)
		err = errorResponse(opExec, orig).err(chorutError.ExecFailed)
		Expect(chorutError.IsChrootError(err, chorutError.InvalidUserSpec)).To(BeTrue())
		Expect(err.Error()).To(Equal(orig.Error()))

		err = errorResponse(opUnmount, errors.New("busy")).err(chorutError.UnmountFailed)
		Expect(chorutError.IsMountError(err, chorutError.UnmountFailed)).To(BeTrue())
		err = errorResponse(opReady, errors.New("boom")).err(chorutError.NamespaceFailed)
		Expect(chorutError.IsChrootError(err, chorutError.NamespaceFailed)).To(BeTrue())

		Expect((&response{Op: opMount}).err(chorutError.MountFailed)).To(BeNil())
	})
})

var _ = Describe("Handle", Label("namespace", "handle"), func() {
	var handle *Handle
	var mounter *mocks.FakeMounter
	var runner *mocks.FakeRunner
	var root string
	var done chan int

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "chorut-ns")
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(os.RemoveAll, root)
		Expect(mocks.FakeRootfs(vfs.OSFS, root)).To(Succeed())

		mounter = mocks.NewFakeMounter()
		runner = mocks.NewFakeRunner()
		logger := types.NewNullLogger()
		cfg := config.NewConfig(
			config.WithLogger(logger),
			config.WithRunner(runner),
			config.WithMounter(mounter),
			config.WithSyscall(&mocks.FakeSyscall{}),
		)

		ctl, srv := connPair()
		h := newHelper(cfg, srv, mounter, os.MkdirAll)
		done = make(chan int, 1)
		go func() {
			defer GinkgoRecover()
			done <- h.serve()
			_ = srv.close()
		}()
		handle = newHandle(ctl, nil, false, logger)
	})
	AfterEach(func() {
		Expect(handle.shutdown()).To(Succeed())
		Eventually(done).Should(Receive(Equal(0)))
	})

	It("mounts and unmounts through the helper", func() {
		target := filepath.Join(root, "run")
		m := handle.Mounter(root)

		Expect(m.Mount("tmpfs", target, "tmpfs", []string{"mode=0755"})).To(Succeed())
		Expect(mounter.Targets()).To(Equal([]string{target}))
		notMnt, err := m.IsLikelyNotMountPoint(target)
		Expect(err).ToNot(HaveOccurred())
		Expect(notMnt).To(BeFalse())

		Expect(m.Unmount(target)).To(Succeed())
		Expect(mounter.Targets()).To(BeEmpty())
		notMnt, err = m.IsLikelyNotMountPoint(target)
		Expect(err).ToNot(HaveOccurred())
		Expect(notMnt).To(BeTrue())
	})

	It("reports mount failures with their target", func() {
		target := filepath.Join(root, "proc")
		mounter.ErrorOnMount = true
		err := handle.Mounter(root).Mount("proc", target, "proc", nil)
		Expect(chorutError.IsMountError(err, chorutError.MountFailed)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("mount error"))
		var mErr *chorutError.MountError
		Expect(errors.As(err, &mErr)).To(BeTrue())
		Expect(mErr.Target()).To(Equal(target))
	})

	It("reports unmount failures", func() {
		target := filepath.Join(root, "proc")
		mounter.FailUnmountOf = []string{target}
		Expect(handle.Mounter(root).Mount("proc", target, "proc", nil)).To(Succeed())
		err := handle.Mounter(root).Unmount(target)
		Expect(chorutError.IsMountError(err, chorutError.UnmountFailed)).To(BeTrue())
	})

	It("creates mount points in the namespace", func() {
		maker, ok := handle.Mounter(root).(types.MountpointMaker)
		Expect(ok).To(BeTrue())
		target := filepath.Join(root, "run", "nested", "dir")
		Expect(maker.MkdirAll(target, constants.DirPerm)).To(Succeed())
		fi, err := os.Stat(target)
		Expect(err).ToNot(HaveOccurred())
		Expect(fi.IsDir()).To(BeTrue())
	})

	It("refuses targets redirected by a symlink inside the namespace", func() {
		outside, err := os.MkdirTemp("", "chorut-outside")
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(os.RemoveAll, outside)
		Expect(os.MkdirAll(filepath.Join(root, "mnt"), constants.DirPerm)).To(Succeed())
		Expect(os.Symlink(outside, filepath.Join(root, "mnt", "evil"))).To(Succeed())
		m := handle.Mounter(root)

		target := filepath.Join(root, "mnt", "evil")
		err = m.Mount("tmpfs", target, "tmpfs", nil)
		Expect(chorutError.IsMountError(err, chorutError.PathEscape)).To(BeTrue())
		Expect(mounter.Targets()).To(BeEmpty())

		maker := m.(types.MountpointMaker)
		err = maker.MkdirAll(filepath.Join(target, "sub"), constants.DirPerm)
		Expect(chorutError.IsMountError(err, chorutError.PathEscape)).To(BeTrue())
		_, err = os.Stat(filepath.Join(outside, "sub"))
		Expect(os.IsNotExist(err)).To(BeTrue())

		Expect(os.Symlink("../../..", filepath.Join(root, "mnt", "up"))).To(Succeed())
		err = m.Mount("tmpfs", filepath.Join(root, "mnt", "up"), "tmpfs", nil)
		Expect(chorutError.IsMountError(err, chorutError.PathEscape)).To(BeTrue())

		err = m.Mount("tmpfs", outside, "tmpfs", nil)
		Expect(chorutError.IsMountError(err, chorutError.PathEscape)).To(BeTrue())
		Expect(mounter.Targets()).To(BeEmpty())

		Expect(m.Mount("tmpfs", filepath.Join(root, "mnt"), "tmpfs", nil)).To(Succeed())
		Expect(mounter.Targets()).To(Equal([]string{filepath.Join(root, "mnt")}))
	})

	It("does not check targets of unscoped mounters", func() {
		outside, err := os.MkdirTemp("", "chorut-outside")
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(os.RemoveAll, outside)
		Expect(handle.Mounter("").Mount("tmpfs", outside, "tmpfs", nil)).To(Succeed())
		Expect(mounter.Targets()).To(Equal([]string{outside}))
	})

	It("relays captured output", func() {
		runner.AttachedSideEffect = func(cmd *exec.Cmd) error {
			fmt.Fprint(cmd.Stdout, "hi\n")
			fmt.Fprint(cmd.Stderr, "oops\n")
			return nil
		}
		stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
		rc, err := handle.Exec(root, command.Request{Args: []string{"echo", "hi"}, Env: []string{"PATH=/bin"}, Stdout: stdout, Stderr: stderr})
		Expect(err).ToNot(HaveOccurred())
		Expect(rc).To(Equal(0))
		Expect(stdout.String()).To(Equal("hi\n"))
		Expect(stderr.String()).To(Equal("oops\n"))

		cmds := runner.GetAttachedCmds()
		Expect(cmds).To(HaveLen(1))
		Expect(cmds[0].Path).To(Equal("/bin/echo"))
		Expect(cmds[0].SysProcAttr.Chroot).To(Equal(root))
	})

	It("relays input", func() {
		runner.AttachedSideEffect = func(cmd *exec.Cmd) error {
			data, err := io.ReadAll(cmd.Stdin)
			if err != nil {
				return err
			}
			_, err = cmd.Stdout.Write(bytes.ToUpper(data))
			return err
		}
		stdout := &bytes.Buffer{}
		rc, err := handle.Exec(root, command.Request{Args: []string{"true"}, Stdin: strings.NewReader("input"), Stdout: stdout})
		Expect(err).ToNot(HaveOccurred())
		Expect(rc).To(Equal(0))
		Expect(stdout.String()).To(Equal("INPUT"))
	})

	It("connects missing streams to the null device", func() {
		runner.AttachedSideEffect = func(cmd *exec.Cmd) error {
			_, err := fmt.Fprint(cmd.Stdout, "discarded")
			return err
		}
		rc, err := handle.Exec(root, command.Request{Args: []string{"true"}})
		Expect(err).ToNot(HaveOccurred())
		Expect(rc).To(Equal(0))
	})

	It("sends the caller environment by default", func() {
		Expect(os.Setenv("CHORUT_NS_TEST", "yes")).To(Succeed())
		defer os.Unsetenv("CHORUT_NS_TEST")
		_, err := handle.Exec(root, command.Request{Args: []string{"true"}})
		Expect(err).ToNot(HaveOccurred())
		Expect(runner.GetAttachedCmds()[0].Env).To(ContainElement("CHORUT_NS_TEST=yes"))
	})

	It("returns the exit code of the command", func() {
		runner.AttachedSideEffect = mocks.RunOnHost
		rc, err := handle.Exec(root, command.Request{Args: []string{"false"}, Env: []string{"PATH=/bin:/usr/bin"}})
		Expect(err).ToNot(HaveOccurred())
		Expect(rc).To(Equal(1))
	})

	It("returns errors entering the chroot with their kind", func() {
		_, err := handle.Exec(root, command.Request{Args: []string{"true"}, UserSpec: "ghost"})
		Expect(chorutError.IsChrootError(err, chorutError.InvalidUserSpec)).To(BeTrue())

		runner.AttachedSideEffect = func(_ *exec.Cmd) error {
			return &os.PathError{Op: "fork/exec", Path: "/bin/true", Err: syscall.EPERM}
		}
		_, err = handle.Exec(root, command.Request{Args: []string{"true"}})
		Expect(chorutError.IsChrootError(err, chorutError.InsufficientPrivilege)).To(BeTrue())
	})

	It("rejects unknown requests", func() {
		res, err := handle.call(&request{Op: "bogus"}, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(chorutError.IsChrootError(res.err(chorutError.Unknown), chorutError.NamespaceFailed)).To(BeTrue())
	})

	It("fails once released", func() {
		Expect(handle.shutdown()).To(Succeed())
		err := handle.Mounter(root).Mount("tmpfs", filepath.Join(root, "run"), "tmpfs", nil)
		Expect(chorutError.IsChrootError(err, chorutError.NamespaceFailed)).To(BeTrue())
		_, err = handle.Exec(root, command.Request{Args: []string{"true"}})
		Expect(chorutError.IsChrootError(err, chorutError.NamespaceFailed)).To(BeTrue())
	})
})

var _ = Describe("Controller", Label("namespace", "controller"), func() {
	It("maps the caller to root only when unprivileged", func() {
		attr := sysProcAttr(false, 0, 0)
		Expect(attr.Cloneflags).To(Equal(uintptr(syscall.CLONE_NEWNS | syscall.CLONE_NEWPID)))
		Expect(attr.UidMappings).To(BeEmpty())
		Expect(attr.Pdeathsig).To(Equal(syscall.SIGKILL))

		attr = sysProcAttr(true, 1000, 100)
		Expect(attr.Cloneflags & syscall.CLONE_NEWUSER).ToNot(BeZero())
		Expect(attr.UidMappings).To(Equal([]syscall.SysProcIDMap{{ContainerID: 0, HostID: 1000, Size: 1}}))
		Expect(attr.GidMappings).To(Equal([]syscall.SysProcIDMap{{ContainerID: 0, HostID: 100, Size: 1}}))
		Expect(attr.GidMappingsEnableSetgroups).To(BeFalse())
	})

	It("releases nothing if never entered", func() {
		ctrl := NewController(config.NewConfig(config.WithLogger(types.NewNullLogger())))
		Expect(ctrl.Handle()).To(BeNil())
		Expect(ctrl.Mounter("/")).To(BeNil())
		Expect(ctrl.UserNS()).To(BeFalse())
		_, err := ctrl.Exec("/", command.Request{Args: []string{"true"}})
		Expect(chorutError.IsChrootError(err, chorutError.NamespaceFailed)).To(BeTrue())
		Expect(ctrl.Release()).To(Succeed())
	})

	It("mounts and runs commands in a private namespace", Label("privileged"), func() {
		ctrl := NewController(config.NewConfig(config.WithLogger(types.NewNullLogger())))
		err := ctrl.Enter()
		if err != nil {
			Skip("namespaces not available: " + err.Error())
		}
		defer ctrl.Release()
		h := ctrl.Handle()
		Expect(h.Pid()).To(BeNumerically(">", 0))
		Expect(h.UserNS()).To(Equal(os.Geteuid() != 0))
		Expect(ctrl.Handle()).To(Equal(h))

		err = ctrl.Enter()
		Expect(chorutError.IsChrootError(err, chorutError.NamespaceFailed)).To(BeTrue())
		Expect(ctrl.UserNS()).To(Equal(h.UserNS()))

		dir, err := os.MkdirTemp("", "chorut-ns-mnt")
		Expect(err).ToNot(HaveOccurred())
		defer os.RemoveAll(dir)
		m := h.Mounter("")
		if err = m.Mount("tmpfs", dir, "tmpfs", []string{"size=1m"}); err != nil {
			Skip("mounting not allowed in namespace: " + err.Error())
		}
		notMnt, err := m.IsLikelyNotMountPoint(dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(notMnt).To(BeFalse())
		mounted, err := mountinfo.Mounted(dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(mounted).To(BeFalse())

		stdout := &bytes.Buffer{}
		rc, err := ctrl.Exec("/", command.Request{Args: []string{"sh", "-c", "echo hi; exit 3"}, Stdout: stdout})
		Expect(err).ToNot(HaveOccurred())
		Expect(rc).To(Equal(3))
		Expect(stdout.String()).To(Equal("hi\n"))

		Expect(m.Unmount(dir)).To(Succeed())
		Expect(ctrl.Release()).To(Succeed())
		Expect(ctrl.Handle()).To(BeNil())
		err = m.Mount("tmpfs", dir, "tmpfs", nil)
		Expect(chorutError.IsChrootError(err, chorutError.NamespaceFailed)).To(BeTrue())
	})
})
