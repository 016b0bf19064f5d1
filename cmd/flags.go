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

package cmd

import (
	"github.com/spf13/cobra"
)

// addChrootFlags adds the flags shaping the chroot session
func addChrootFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("unshare", "N", false, "Run in new mount and pid namespaces, mapping the caller to root if unprivileged")
	cmd.Flags().StringArray("bind", []string{}, "Bind mount SRC[:DST[:OPTIONS]] into the chroot, can be repeated")
	cmd.Flags().StringArray("tmpfs", []string{}, "Mount a tmpfs on DST[:OPTIONS] inside the chroot, can be repeated")
}

// addExecFlags adds the flags tuning the command run inside the chroot
func addExecFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("userspec", "u", "", "Run the command as USER[:GROUP], names or numeric ids")
	cmd.Flags().StringP("workdir", "w", "", "Working directory inside the chroot")
	cmd.Flags().StringArray("env-file", []string{}, "Add the variables of a dotenv file to the command environment, can be repeated")
	cmd.Flags().Bool("clear-env", false, "Do not inherit the caller environment")
	cmd.Flags().Bool("no-auto-shell", false, "Never wrap the command into a shell, split it instead")
}
