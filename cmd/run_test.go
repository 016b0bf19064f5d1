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

package cmd

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/rancher/chorut/pkg/command"
	chorutError "github.com/rancher/chorut/pkg/error"
)

var _ = Describe("Run", Label("run", "cmd"), func() {
	var buf *bytes.Buffer

	BeforeEach(func() {
		rootCmd = NewRootCmd()
		_ = NewRunCmd(rootCmd)
		buf = new(bytes.Buffer)
		rootCmd.SetOut(buf)
		rootCmd.SetErr(buf)
	})
	AfterEach(func() {
		// Restore cobra output
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		viper.Reset()
	})
	It("outputs usage if no CHROOT_DIR param", Label("args"), func() {
		_, _, err := executeCommandC(rootCmd, "run")
		Expect(err).ToNot(BeNil())
		Expect(buf.String()).To(ContainSubstring("Usage:"))
		Expect(err.Error()).To(ContainSubstring("requires at least 1 arg(s)"))
	})
	It("fails if the chroot dir does not exist", func() {
		_, _, err := executeCommandC(rootCmd, "run", "/nonexistent/chroot", "true")
		Expect(err).To(HaveOccurred())
		Expect(chorutError.ExitCodeOf(err)).To(Equal(chorutError.NotADirectory))
		Expect(buf.String()).NotTo(ContainSubstring("Usage:"))
	})
	It("rejects bind mounts with a relative source", Label("flags"), func() {
		_, _, err := executeCommandC(rootCmd, "run", "--bind", "relative:data", "/tmp", "true")
		Expect(err).To(HaveOccurred())
		Expect(chorutError.ExitCodeOf(err)).To(Equal(chorutError.ReadingSpecConfig))
		Expect(err.Error()).To(ContainSubstring("source must be an absolute path"))
	})
	It("rejects tmpfs mounts without target", Label("flags"), func() {
		_, _, err := executeCommandC(rootCmd, "run", "--tmpfs", ":size=1m", "/tmp", "true")
		Expect(err).To(HaveOccurred())
		Expect(chorutError.ExitCodeOf(err)).To(Equal(chorutError.ReadingSpecConfig))
	})
	It("fails on missing env files", Label("flags"), func() {
		_, _, err := executeCommandC(rootCmd, "run", "--env-file", "/nonexistent/.env", "/tmp", "true")
		Expect(err).To(HaveOccurred())
		Expect(chorutError.ExitCodeOf(err)).To(Equal(chorutError.InvalidArgs))
	})
	Describe("command arguments", func() {
		It("runs the default shell without arguments", func() {
			Expect(commandFromArgs([]string{})).To(BeNil())
		})
		It("takes a single argument as a shell line", func() {
			Expect(commandFromArgs([]string{"ls -l | wc -l"})).To(Equal(command.ShellLine("ls -l | wc -l")))
		})
		It("takes several arguments as an argument vector", func() {
			Expect(commandFromArgs([]string{"ls", "-l"})).To(Equal(command.ArgumentVector{"ls", "-l"}))
		})
	})
	DescribeTable("exit codes",
		func(rc, code int) {
			Expect(exitCode(rc)).To(Equal(code))
		},
		Entry("keeps plain return codes", 3, 3),
		Entry("keeps command not found", 127, 127),
		Entry("maps signals as shells do", -9, 137),
	)
})
