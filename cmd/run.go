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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rancher/chorut/cmd/config"
	"github.com/rancher/chorut/pkg/chroot"
	"github.com/rancher/chorut/pkg/command"
	"github.com/rancher/chorut/pkg/constants"
	chorutError "github.com/rancher/chorut/pkg/error"
	"github.com/rancher/chorut/pkg/types"
)

func NewRunCmd(root *cobra.Command) *cobra.Command {
	c := &cobra.Command{
		Use:   "run CHROOT_DIR [COMMAND [ARG...]]",
		Short: "Run a command or an interactive shell inside a chroot",
		Long: "Mounts proc, sys, dev, dev/pts and run under CHROOT_DIR, plus any extra mount, runs the\n" +
			"command inside and unmounts everything on exit. A single COMMAND argument is taken as a\n" +
			"shell line, several are taken as the argument vector. Without COMMAND " + constants.DefaultShell + " is run.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ReadConfigRun(viper.GetString("config-dir"), types.NewMounter(constants.MountBinary))
			if err != nil {
				cfg.Logger.Errorf("Error reading config: %s\n", err)
				return chorutError.NewFromError(err, chorutError.ReadingRunConfig)
			}

			cmd.SilenceUsage = true
			spec, err := config.ReadChrootSpec(cfg, args[0], cmd.Flags())
			if err != nil {
				cfg.Logger.Errorf("Error reading spec: %s\n", err)
				return chorutError.NewFromError(err, chorutError.ReadingSpecConfig)
			}
			opts, err := config.ReadExecOptions(cmd.Flags())
			if err != nil {
				cfg.Logger.Errorf("Error reading command options: %s\n", err)
				return chorutError.NewFromError(err, chorutError.InvalidArgs)
			}

			rc := 0
			err = chroot.NewChroot(cfg, *spec).Scoped(func(c *chroot.Chroot) error {
				res, err := c.Execute(commandFromArgs(args[1:]), opts)
				if err != nil {
					return err
				}
				rc = res.ReturnCode
				return nil
			})
			if err != nil {
				return err
			}
			if rc != 0 {
				// the command already reported its own failure
				cmd.SilenceErrors = true
				return chorutError.New(fmt.Sprintf("command exited with %d", rc), exitCode(rc))
			}
			return nil
		},
	}
	root.AddCommand(c)
	c.Flags().SetInterspersed(false)
	addChrootFlags(c)
	addExecFlags(c)
	return c
}

// commandFromArgs takes a single argument as a shell line and several
// ones as an argument vector
func commandFromArgs(args []string) command.Command {
	switch len(args) {
	case 0:
		return nil
	case 1:
		return command.ShellLine(args[0])
	default:
		return command.ArgumentVector(args)
	}
}

// exitCode maps a command return code to a process exit code, commands
// killed by a signal exit as a shell would report them
func exitCode(rc int) int {
	if rc < 0 {
		return 128 - rc
	}
	return rc
}

// register the subcommand into rootCmd
var _ = NewRunCmd(rootCmd)
