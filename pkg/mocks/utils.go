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
	"path/filepath"

	"github.com/rancher/chorut/pkg/constants"
	"github.com/rancher/chorut/pkg/types"
	"github.com/rancher/chorut/pkg/utils"
)

const (
	FakePasswd = "root:x:0:0:root:/root:/bin/bash\nnobody:x:65534:65534:nobody:/nonexistent:/usr/sbin/nologin\nbuilder:x:1000:1000::/home/builder:/bin/bash\n"
	FakeGroup  = "root:x:0:\nwheel:x:10:builder\nnogroup:x:65534:\nbuilder:x:1000:\n"
)

// FakeRootfs populates a minimal root tree at root: a few executables
// under /bin, /usr/bin linking to it and user databases under /etc.
// Used for unit testing only.
func FakeRootfs(fs types.FS, root string, bins ...string) error {
	for _, dir := range []string{"bin", "etc", "tmp", "usr"} {
		if err := utils.MkdirAll(fs, filepath.Join(root, dir), constants.DirPerm); err != nil {
			return err
		}
	}
	if err := fs.Symlink("../bin", filepath.Join(root, "usr", "bin")); err != nil {
		return err
	}
	if len(bins) == 0 {
		bins = []string{"bash", "echo", "true", "false", "sh"}
	}
	for _, bin := range bins {
		err := fs.WriteFile(filepath.Join(root, "bin", bin), []byte("#!/bin/fake\n"), 0755)
		if err != nil {
			return err
		}
	}
	err := fs.WriteFile(filepath.Join(root, constants.PasswdFile), []byte(FakePasswd), constants.FilePerm)
	if err != nil {
		return err
	}
	return fs.WriteFile(filepath.Join(root, constants.GroupFile), []byte(FakeGroup), constants.FilePerm)
}
