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
package types

import (
	"os"

	"github.com/moby/sys/mountinfo"
	"k8s.io/mount-utils"
)

// This is is just a redefinition of mount.Interface to chorut types
type Mounter interface {
	Mount(source string, target string, fstype string, options []string) error
	Unmount(target string) error
	IsLikelyNotMountPoint(file string) (bool, error)
}

// MountpointMaker is implemented by mounters that create mount points in
// their own mount namespace
type MountpointMaker interface {
	MkdirAll(path string, perm os.FileMode) error
}

// hostMounter relies on mount-utils to mount and unmount and on the mount
// table to detect mount points, so bind mounts from the same device are
// reported too
type hostMounter struct {
	mount.Interface
}

func NewMounter(binary string) Mounter {
	return &hostMounter{Interface: mount.New(binary)}
}

func (m *hostMounter) IsLikelyNotMountPoint(file string) (bool, error) {
	mounted, err := mountinfo.Mounted(file)
	if err != nil {
		return m.Interface.IsLikelyNotMountPoint(file)
	}
	return !mounted, nil
}
