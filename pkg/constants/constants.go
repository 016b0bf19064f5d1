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

package constants

import (
	"os"
	"time"
)

const (
	MountBinary       = "/usr/bin/mount"
	FsckBinary        = "fsck"
	DefaultShell      = "/bin/bash"
	DefaultPath       = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
	ProcFilesystems   = "/proc/filesystems"
	PasswdFile        = "/etc/passwd"
	GroupFile         = "/etc/group"
	ConfigDir         = "/etc/chorut"
	ConfigName        = "config.yaml"
	EnvPrefix         = "CHORUT"
	NsInitName        = "chorut-nsinit"
	LogLevelEnv       = "CHORUT_LOG_LEVEL"
	ControlFd         = 3
	MaxControlMessage = 64 * 1024
	CommandNotFound   = 127

	// Synthetic sources used by the required mounts
	ProcSource   = "proc"
	SysfsSource  = "sys"
	DevptsSource = "devpts"
	RunSource    = "run"

	DirPerm  = os.ModeDir | os.ModePerm
	FilePerm = 0666

	NamespaceReadyTimeout    = 10 * time.Second
	NamespaceShutdownTimeout = 5 * time.Second
)

// GetDefaultEnv returns the environment variables set for every command
// executed inside a chroot on top of the caller provided ones
func GetDefaultEnv() map[string]string {
	return map[string]string{
		"SHELL": DefaultShell,
	}
}
