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
package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/moby/sys/symlink"
	"github.com/twpayne/go-vfs/v4"

	"github.com/rancher/chorut/pkg/types"
)

// Exists checks if a file or directory exists.
func Exists(fs types.FS, path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// IsDir check if the path is a dir
func IsDir(fs types.FS, path string) (bool, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

// IsExecutable checks the path is a regular file with any execute bit set
func IsExecutable(fs types.FS, path string) bool {
	fi, err := fs.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular() && fi.Mode().Perm()&0111 != 0
}

// MkdirAll directory and all parents if not existing
func MkdirAll(fs types.FS, name string, mode os.FileMode) (err error) {
	if _, isReadOnly := fs.(*vfs.ReadOnlyFS); isReadOnly {
		return permError("mkdir", name)
	}
	if name, err = fs.RawPath(name); err != nil {
		return &os.PathError{Op: "mkdir", Path: name, Err: err}
	}
	return os.MkdirAll(name, mode)
}

// ErrPathEscape is returned when a path resolves outside its root
var ErrPathEscape = fmt.Errorf("path escapes root")

// InRootPath lexically joins path under root. Paths starting with / are
// taken as relative to root. It fails with ErrPathEscape if any ".."
// component climbs above root.
func InRootPath(root, path string) (string, error) {
	rel := filepath.Clean(strings.TrimLeft(path, "/"))
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, path)
	}
	return filepath.Join(root, rel), nil
}

// ResolveInRoot returns the location of path once every symlink is resolved
// in the scope of root, so absolute links are taken relative to root and
// never leave it. It returns the resolved path in the fs view and its raw
// host path.
func ResolveInRoot(fs types.FS, root, path string) (string, string, error) {
	lexical, err := InRootPath(root, path)
	if err != nil {
		return "", "", err
	}
	rawRoot, err := fs.RawPath(root)
	if err != nil {
		return "", "", err
	}
	rawPath, err := fs.RawPath(lexical)
	if err != nil {
		return "", "", err
	}
	resolved, err := symlink.FollowSymlinkInScope(rawPath, rawRoot)
	if err != nil {
		return "", "", err
	}
	rel, err := filepath.Rel(rawRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", "", fmt.Errorf("%w: %s", ErrPathEscape, path)
	}
	return filepath.Join(root, rel), resolved, nil
}

// permError returns an *os.PathError with Err syscall.EPERM.
func permError(op, path string) error {
	return &fs.PathError{
		Op:   op,
		Path: path,
		Err:  syscall.EPERM,
	}
}
