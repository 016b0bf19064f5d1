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
	"github.com/rancher/chorut/pkg/constants"
	"github.com/rancher/chorut/pkg/types"
)

// RequiredMounts returns the fixed mount set every chroot gets, in mount
// order. Inside a user namespace a fresh sysfs can't be mounted and host
// group ids are not mapped, so sys is bound from the host and devpts gets
// a private instance without gid. Host submounts of sys and dev are locked
// there, so both are bound recursively.
func RequiredMounts(userns bool) []types.MountSpec {
	sys := types.MountSpec{
		Source:  constants.SysfsSource,
		Target:  "sys",
		FSType:  "sysfs",
		Options: "nosuid,noexec,nodev,ro",
	}
	dev := types.MountSpec{
		Source: "/dev",
		Target: "dev",
		Bind:   true,
	}
	devpts := types.MountSpec{
		Source:  constants.DevptsSource,
		Target:  "dev/pts",
		FSType:  "devpts",
		Options: "mode=0620,gid=5,nosuid,noexec",
	}
	if userns {
		sys = types.MountSpec{
			Source:  "/sys",
			Target:  "sys",
			Bind:    true,
			Options: "rbind",
		}
		dev.Options = "rbind"
		devpts.Options = "newinstance,ptmxmode=0666,mode=0620,nosuid,noexec"
	}

	return []types.MountSpec{
		{
			Source:  constants.ProcSource,
			Target:  "proc",
			FSType:  "proc",
			Options: "nosuid,noexec,nodev",
		},
		sys,
		dev,
		devpts,
		{
			Source:  constants.RunSource,
			Target:  "run",
			FSType:  "tmpfs",
			Options: "nosuid,nodev,mode=0755",
		},
	}
}
