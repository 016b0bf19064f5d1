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
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	chorutError "github.com/rancher/chorut/pkg/error"
	"github.com/rancher/chorut/pkg/mounts"
)

var _ = Describe("Plan", Label("plan", "cmd"), func() {
	var buf *bytes.Buffer
	var root string

	BeforeEach(func() {
		rootCmd = NewRootCmd()
		_ = NewPlanCmd(rootCmd)
		buf = new(bytes.Buffer)
		rootCmd.SetErr(buf)

		var err error
		root, err = os.MkdirTemp("", "chorut-plan-")
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(os.RemoveAll, root)
	})
	AfterEach(func() {
		rootCmd.SetErr(nil)
		viper.Reset()
	})
	It("prints the required and custom mounts in order", func() {
		_, output, err := executeCommandC(
			rootCmd, "plan", "--bind", "/tmp:data:ro", "--tmpfs", "scratch:size=1m", root,
		)
		Expect(err).ToNot(HaveOccurred(), buf.String())

		plan := []mounts.Record{}
		Expect(yaml.Unmarshal([]byte(output), &plan)).To(Succeed(), output)
		Expect(plan).To(HaveLen(7))
		Expect(plan[0].Spec.Target).To(Equal("proc"))
		Expect(plan[0].Target).To(Equal(filepath.Join(root, "proc")))
		Expect(plan[4].Spec.Target).To(Equal("run"))

		Expect(plan[5].Source).To(Equal("/tmp"))
		Expect(plan[5].Target).To(Equal(filepath.Join(root, "data")))
		Expect(plan[5].Spec.Bind).To(BeTrue())
		Expect(plan[5].Spec.Options).To(Equal("ro"))
		Expect(plan[6].Spec.FSType).To(Equal("tmpfs"))
		Expect(plan[6].Index).To(Equal(6))
		for _, rec := range plan {
			Expect(rec.Mounted).To(BeFalse())
		}

		// nothing is created under the root
		entries, err := os.ReadDir(root)
		Expect(err).ToNot(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})
	It("fails if the chroot dir does not exist", func() {
		_, _, err := executeCommandC(rootCmd, "plan", filepath.Join(root, "missing"))
		Expect(err).To(HaveOccurred())
		Expect(chorutError.ExitCodeOf(err)).To(Equal(chorutError.NotADirectory))
	})
	It("fails if a mount target escapes the chroot", func() {
		_, _, err := executeCommandC(rootCmd, "plan", "--tmpfs", "../../escape", root)
		Expect(err).To(HaveOccurred())
		Expect(chorutError.IsMountError(err, chorutError.PathEscape)).To(BeTrue())
	})
})
