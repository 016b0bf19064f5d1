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
	"github.com/moby/sys/userns"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rancher/chorut/cmd/config"
	"github.com/rancher/chorut/pkg/constants"
	chorutError "github.com/rancher/chorut/pkg/error"
	"github.com/rancher/chorut/pkg/mounts"
	"github.com/rancher/chorut/pkg/types"
	"github.com/rancher/chorut/pkg/utils"
)

func NewPlanCmd(root *cobra.Command) *cobra.Command {
	c := &cobra.Command{
		Use:   "plan CHROOT_DIR",
		Short: "Print the mounts a run on CHROOT_DIR would apply, without mounting anything",
		Args:  cobra.ExactArgs(1),
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
			if ok, _ := utils.IsDir(cfg.Fs, spec.Path); !ok {
				return chorutError.NewChrootError(chorutError.NotADirectory, spec.Path+" is not a directory", nil)
			}

			inUserNS := userns.RunningInUserNS() || (spec.Unshare && cfg.Syscall.Geteuid() != 0)
			plan, err := mounts.NewManager(cfg, nil, mounts.RequiredMounts(inUserNS)).Plan(spec.Path, spec.Mounts)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(plan)
			if err != nil {
				return chorutError.NewFromError(err, chorutError.WriteOutput)
			}
			if _, err = cmd.OutOrStdout().Write(out); err != nil {
				return chorutError.NewFromError(err, chorutError.WriteOutput)
			}
			return nil
		},
	}
	root.AddCommand(c)
	addChrootFlags(c)
	return c
}

// register the subcommand into rootCmd
var _ = NewPlanCmd(rootCmd)
