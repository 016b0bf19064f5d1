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

package types_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rancher/chorut/pkg/types"
)

var _ = Describe("Chroot types", Label("types", "chroot"), func() {
	Describe("MountSpec", func() {
		It("splits options", func() {
			m := types.MountSpec{Options: "ro, nosuid,,size=1G "}
			Expect(m.OptionList()).To(Equal([]string{"ro", "nosuid", "size=1G"}))
			Expect(m.HasOption("nosuid")).To(BeTrue())
			Expect(m.HasOption("nodev")).To(BeFalse())
			Expect(types.MountSpec{}.OptionList()).To(BeEmpty())
		})
		DescribeTable("synthetic sources",
			func(m types.MountSpec, synthetic bool) {
				Expect(m.IsSynthetic()).To(Equal(synthetic))
			},
			Entry("fresh tmpfs", types.MountSpec{Source: "tmpfs", FSType: "tmpfs"}, true),
			Entry("proc", types.MountSpec{Source: "proc", FSType: "proc"}, true),
			Entry("block device", types.MountSpec{Source: "/dev/sda1", FSType: "ext4"}, false),
			Entry("bind mount", types.MountSpec{Source: "/var/cache", Bind: true}, false),
		)
	})

	Describe("ChrootSpec", func() {
		It("cleans the root path", func() {
			spec := types.ChrootSpec{Path: "/some//root/"}
			Expect(spec.Sanitize()).To(Succeed())
			Expect(spec.Path).To(Equal("/some/root"))
		})
		It("requires a root path", func() {
			spec := types.ChrootSpec{}
			Expect(spec.Sanitize()).NotTo(Succeed())
		})
		It("requires mount targets", func() {
			spec := types.ChrootSpec{
				Path:   "/root",
				Mounts: []types.MountSpec{{Source: "tmpfs", Target: " ", FSType: "tmpfs"}},
			}
			Expect(spec.Sanitize()).NotTo(Succeed())
		})
		It("requires bind mount sources", func() {
			spec := types.ChrootSpec{
				Path:   "/root",
				Mounts: []types.MountSpec{{Target: "cache", Bind: true}},
			}
			Expect(spec.Sanitize()).NotTo(Succeed())
		})
		It("labels fresh mounts without source after their type", func() {
			spec := types.ChrootSpec{
				Path:   "/root",
				Mounts: []types.MountSpec{{Target: "scratch", FSType: "tmpfs"}},
			}
			Expect(spec.Sanitize()).To(Succeed())
			Expect(spec.Mounts[0].Source).To(Equal("tmpfs"))
			Expect(spec.Mounts[0].IsSynthetic()).To(BeTrue())
		})
	})
})
