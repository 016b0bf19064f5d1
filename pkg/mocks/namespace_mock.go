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

	"github.com/rancher/chorut/pkg/command"
	"github.com/rancher/chorut/pkg/types"
)

// FakeNamespace is a namespace stand-in for tests. Mounts go to its
// FakeMounter and commands to ExecSideEffect.
type FakeNamespace struct {
	ErrorOnEnter   bool
	ErrorOnRelease bool
	UserNamespace  bool
	FakeMounter    *FakeMounter
	// ExecSideEffect runs the commands, they return 0 if unset
	ExecSideEffect func(rawRoot string, req command.Request) (int, error)
	Entered        bool
	EnterCalls     int
	ReleaseCalls   int
	execRoots      []string
	mountRoots     []string
}

func NewFakeNamespace() *FakeNamespace {
	return &FakeNamespace{FakeMounter: NewFakeMounter()}
}

func (n *FakeNamespace) Enter() error {
	n.EnterCalls++
	if n.ErrorOnEnter {
		return errors.New("unshare error")
	}
	n.Entered = true
	return nil
}

func (n *FakeNamespace) Release() error {
	n.ReleaseCalls++
	if !n.Entered {
		return nil
	}
	n.Entered = false
	if n.ErrorOnRelease {
		return errors.New("release error")
	}
	return nil
}

func (n *FakeNamespace) UserNS() bool {
	return n.UserNamespace
}

func (n *FakeNamespace) Mounter(rawRoot string) types.Mounter {
	n.mountRoots = append(n.mountRoots, rawRoot)
	return n.FakeMounter
}

func (n *FakeNamespace) Exec(rawRoot string, req command.Request) (int, error) {
	n.execRoots = append(n.execRoots, rawRoot)
	if n.ExecSideEffect != nil {
		return n.ExecSideEffect(rawRoot, req)
	}
	return 0, nil
}

// ExecRoots returns the roots commands were run in, in order
func (n *FakeNamespace) ExecRoots() []string {
	return n.execRoots
}

// MountRoots returns the roots mounters were requested for, in order
func (n *FakeNamespace) MountRoots() []string {
	return n.mountRoots
}
