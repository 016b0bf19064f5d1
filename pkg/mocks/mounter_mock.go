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
package mocks

import (
	"errors"
	"path/filepath"

	"k8s.io/mount-utils"

	"github.com/rancher/chorut/pkg/types"
)

var _ types.Mounter = (*FakeMounter)(nil)

// FakeMounter is a fake mounter for tests that can error out.
type FakeMounter struct {
	ErrorOnMount   bool
	ErrorOnUnmount bool
	// FailOnMount makes the Nth mount call fail, starting at 1
	FailOnMount int
	// FailUnmountOf makes the unmount of the listed targets fail
	FailUnmountOf []string
	FakeMounter   *mount.FakeMounter
	mountCalls    int
}

// NewFakeMounter returns an FakeMounter with an instance of FakeMounter inside so we can use its functions
func NewFakeMounter() *FakeMounter {
	return &FakeMounter{
		FakeMounter: mount.NewFakeMounter([]mount.MountPoint{}),
	}
}

// Mount will return an error if ErrorOnMount is true or on the FailOnMount call
func (e *FakeMounter) Mount(source string, target string, fstype string, options []string) error {
	e.mountCalls++
	if e.ErrorOnMount || e.mountCalls == e.FailOnMount {
		return errors.New("mount error")
	}
	return e.FakeMounter.Mount(source, target, fstype, options)
}

// Unmount will return an error if ErrorOnUnmount is true or the target is in FailUnmountOf
func (e *FakeMounter) Unmount(target string) error {
	if e.ErrorOnUnmount {
		return errors.New("unmount error")
	}
	for _, t := range e.FailUnmountOf {
		if t == target {
			return errors.New("unmount error")
		}
	}
	return e.FakeMounter.Unmount(target)
}

func (e *FakeMounter) IsLikelyNotMountPoint(file string) (bool, error) {
	mnts, _ := e.List()

	abs := resolve(file)
	for _, mnt := range mnts {
		if abs == mnt.Path {
			return false, nil
		}
	}
	return true, nil
}

// This is not part of the interface, just a helper method for tests
func (e *FakeMounter) List() ([]mount.MountPoint, error) {
	return e.FakeMounter.List()
}

// MountCalls returns the number of mount attempts, failed ones included
func (e *FakeMounter) MountCalls() int {
	return e.mountCalls
}

// Log returns the ordered mount and unmount actions that succeeded
func (e *FakeMounter) Log() []mount.FakeAction {
	return e.FakeMounter.GetLog()
}

// Targets returns the currently mounted paths in mount order
func (e *FakeMounter) Targets() []string {
	mnts, _ := e.List()
	targets := []string{}
	for _, mnt := range mnts {
		targets = append(targets, mnt.Path)
	}
	return targets
}

func resolve(path string) string {
	abs, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	return abs
}
