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
// Package fstype classifies filesystem types: pseudo filesystems synthesized
// by the kernel and on-disk filesystems that take a consistency check.
package fstype

import (
	"bufio"
	"bytes"
	"sort"
	"strings"

	"github.com/rancher/chorut/pkg/constants"
	"github.com/rancher/chorut/pkg/types"
)

var pseudoFS = map[string]struct{}{
	"anon_inodefs":          {},
	"apparmorfs":            {},
	"autofs":                {},
	"bdev":                  {},
	"binder":                {},
	"binfmt_misc":           {},
	"bpf":                   {},
	"cgroup":                {},
	"cgroup2":               {},
	"configfs":              {},
	"cpuset":                {},
	"debugfs":               {},
	"devfs":                 {},
	"devpts":                {},
	"devtmpfs":              {},
	"dlmfs":                 {},
	"efivarfs":              {},
	"fuse.gvfs-fuse-daemon": {},
	"fusectl":               {},
	"hugetlbfs":             {},
	"mqueue":                {},
	"nfsd":                  {},
	"none":                  {},
	"pipefs":                {},
	"proc":                  {},
	"pstore":                {},
	"ramfs":                 {},
	"resctrl":               {},
	"rootfs":                {},
	"rpc_pipefs":            {},
	"securityfs":            {},
	"sockfs":                {},
	"spufs":                 {},
	"sysfs":                 {},
	"tmpfs":                 {},
	"tracefs":               {},
}

// on-disk types; btrfs is known but never checked
var fsck = map[string]bool{
	"btrfs":    false,
	"cramfs":   true,
	"exfat":    true,
	"ext2":     true,
	"ext3":     true,
	"ext4":     true,
	"ext4dev":  true,
	"jfs":      true,
	"minix":    true,
	"msdos":    true,
	"reiserfs": true,
	"vfat":     true,
	"xfs":      true,
}

// IsPseudoFS reports whether fstype has no on-disk backing store
func IsPseudoFS(fstype string) bool {
	_, ok := pseudoFS[fstype]
	return ok
}

// HasFsck reports whether a consistency check is meaningful before mounting fstype
func HasFsck(fstype string) bool {
	return fsck[fstype]
}

// Known reports whether fstype is in any of the classification tables
func Known(fstype string) bool {
	_, onDisk := fsck[fstype]
	return IsPseudoFS(fstype) || onDisk
}

// PseudoFSTypes returns the sorted list of pseudo filesystem types
func PseudoFSTypes() []string {
	list := make([]string, 0, len(pseudoFS))
	for t := range pseudoFS {
		list = append(list, t)
	}
	sort.Strings(list)
	return list
}

// FsckTypes returns the sorted list of filesystem types that get checked
func FsckTypes() []string {
	list := []string{}
	for t, check := range fsck {
		if check {
			list = append(list, t)
		}
	}
	sort.Strings(list)
	return list
}

// KernelSupports looks fstype up in the filesystems registered in the
// running kernel
func KernelSupports(fs types.FS, fstype string) (bool, error) {
	data, err := fs.ReadFile(constants.ProcFilesystems)
	if err != nil {
		return false, err
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 && fields[len(fields)-1] == fstype {
			return true, nil
		}
	}
	return false, scanner.Err()
}
