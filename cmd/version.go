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
	"gopkg.in/yaml.v3"

	"github.com/rancher/chorut/internal/version"
	chorutError "github.com/rancher/chorut/pkg/error"
)

func NewVersionCmd(root *cobra.Command) *cobra.Command {
	c := &cobra.Command{
		Use:   "version",
		Args:  cobra.ExactArgs(0),
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := version.Get()
			if cmd.Flag("long").Changed {
				out, err := yaml.Marshal(v)
				if err != nil {
					return chorutError.NewFromError(err, chorutError.WriteOutput)
				}
				fmt.Print(string(out))
				return nil
			}
			if commit := v.GitCommit; commit != "" {
				if len(commit) > 7 {
					commit = commit[:7]
				}
				fmt.Printf("%s+g%s\n", v.Version, commit)
				return nil
			}
			fmt.Println(v.Version)
			return nil
		},
	}
	root.AddCommand(c)
	c.Flags().Bool("long", false, "Show the full build info as YAML")
	return c
}

// register the subcommand into rootCmd
var _ = NewVersionCmd(rootCmd)
