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
	"github.com/rancher/chorut/pkg/types"
)

var _ types.SyscallInterface = (*FakeSyscall)(nil)

// FakeSyscall reports a fixed identity, root unless told otherwise
type FakeSyscall struct {
	Euid int
	Egid int
}

func (f FakeSyscall) Geteuid() int {
	return f.Euid
}

func (f FakeSyscall) Getegid() int {
	return f.Egid
}
