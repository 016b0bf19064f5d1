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

package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/sanity-io/litter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rancher/chorut/pkg/config"
	"github.com/rancher/chorut/pkg/constants"
	"github.com/rancher/chorut/pkg/types"
)

// chrootKey is the config section holding the chroot spec defaults
const chrootKey = "chroot"

// ReadConfigRun loads the config.yaml file of configDir and any file under
// its config.d folder, sets the CHORUT_ environment prefix and returns the
// run configuration with its logger set up accordingly
func ReadConfigRun(configDir string, mounter types.Mounter) (*types.Config, error) {
	cfg := config.NewConfig(
		config.WithLogger(types.NewLogger()),
		config.WithMounter(mounter),
	)
	if configDir == "" {
		configDir = constants.ConfigDir
	}

	viper.AddConfigPath(configDir)
	viper.SetConfigType("yaml")
	viper.SetConfigName(constants.ConfigName)
	// If a config file is found, read it in.
	if err := viper.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed reading config file: %w", err)
		}
	}

	// Load extra config files on configdir/config.d/ so we can override config values
	cfgExtra := filepath.Join(configDir, "config.d")
	if _, err := os.Stat(cfgExtra); err == nil {
		err = filepath.WalkDir(cfgExtra, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isYAML(d.Name()) {
				return nil
			}
			viper.SetConfigFile(path)
			if err := viper.MergeInConfig(); err != nil {
				return fmt.Errorf("failed reading %s: %w", path, err)
			}
			return nil
		})
		if err != nil {
			return cfg, err
		}
	}

	// Set the prefix for vars so we get only the ones starting with CHORUT
	viper.SetEnvPrefix(constants.EnvPrefix)
	// Nested keys like chroot.unshare are read from CHORUT_CHROOT_UNSHARE
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := setupLogger(cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Sanitize()
}

func setupLogger(cfg *types.Config) error {
	if viper.GetBool("debug") {
		cfg.Logger.SetLevel(types.DebugLevel())
	}

	// Set formatter so both file and stderr format are equal
	cfg.Logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
	})

	var out io.Writer = os.Stderr
	if viper.GetBool("quiet") {
		out = io.Discard
	}
	if logfile := viper.GetString("logfile"); logfile != "" {
		o, err := cfg.Fs.OpenFile(logfile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, constants.FilePerm)
		if err != nil {
			return fmt.Errorf("could not open %s for logging to file: %w", logfile, err)
		}
		if viper.GetBool("quiet") {
			out = o
		} else {
			out = io.MultiWriter(os.Stderr, o)
		}
	}
	cfg.Logger.SetOutput(out)
	return nil
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// ReadChrootSpec returns the chroot spec for path. Defaults come from the
// chroot section of the loaded config, each field can be overwritten from
// the environment and the bind and tmpfs flags add mounts on top.
func ReadChrootSpec(cfg *types.Config, path string, flags *pflag.FlagSet) (*types.ChrootSpec, error) {
	spec := config.NewChrootSpec(path)

	err := viper.UnmarshalKey(chrootKey, spec, viper.DecodeHook(mountSpecHook()))
	if err != nil {
		return nil, fmt.Errorf("failed unmarshalling chroot spec: %w", err)
	}
	// the section is decoded as a whole, so keys overwritten by env vars
	// need to be set one by one
	if viper.IsSet(chrootKey + ".unshare") {
		spec.Unshare = viper.GetBool(chrootKey + ".unshare")
	}
	if viper.IsSet(chrootKey + ".auto-shell") {
		spec.AutoShell = viper.GetBool(chrootKey + ".auto-shell")
	}
	spec.Path = path

	if flags != nil {
		if err = applyFlags(spec, flags); err != nil {
			return nil, err
		}
	}

	if err = spec.Sanitize(); err != nil {
		return nil, err
	}
	cfg.Logger.Debugf("Loaded chroot spec: %s", litter.Sdump(spec))
	return spec, nil
}

func applyFlags(spec *types.ChrootSpec, flags *pflag.FlagSet) error {
	if f := flags.Lookup("unshare"); f != nil && f.Changed {
		spec.Unshare, _ = flags.GetBool("unshare")
	}
	if f := flags.Lookup("no-auto-shell"); f != nil && f.Changed {
		noAutoShell, _ := flags.GetBool("no-auto-shell")
		spec.AutoShell = !noAutoShell
	}
	if flags.Lookup("bind") != nil {
		binds, _ := flags.GetStringArray("bind")
		for _, b := range binds {
			m, err := ParseBindMount(b)
			if err != nil {
				return err
			}
			spec.Mounts = append(spec.Mounts, m)
		}
	}
	if flags.Lookup("tmpfs") != nil {
		tmpfs, _ := flags.GetStringArray("tmpfs")
		for _, t := range tmpfs {
			m, err := ParseTmpfsMount(t)
			if err != nil {
				return err
			}
			spec.Mounts = append(spec.Mounts, m)
		}
	}
	return nil
}

// mountSpecHook decodes "SRC[:DST[:OPTIONS]]" strings as bind mounts
func mountSpecHook() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(types.MountSpec{}) {
			return data, nil
		}
		return ParseBindMount(data.(string))
	}
}

// ParseBindMount parses a SRC[:DST[:OPTIONS]] bind mount definition. DST
// defaults to SRC, so host paths can be shared at the same location.
func ParseBindMount(value string) (types.MountSpec, error) {
	parts := strings.SplitN(value, ":", 3)
	m := types.MountSpec{Source: parts[0], Target: parts[0], Bind: true}
	if len(parts) > 1 && parts[1] != "" {
		m.Target = parts[1]
	}
	if len(parts) > 2 {
		m.Options = parts[2]
	}
	if m.Source == "" {
		return m, fmt.Errorf("invalid bind mount '%s': missing source", value)
	}
	if !filepath.IsAbs(m.Source) {
		return m, fmt.Errorf("invalid bind mount '%s': source must be an absolute path", value)
	}
	return m, nil
}

// ParseTmpfsMount parses a DST[:OPTIONS] tmpfs mount definition
func ParseTmpfsMount(value string) (types.MountSpec, error) {
	target, options, _ := strings.Cut(value, ":")
	if target == "" {
		return types.MountSpec{}, fmt.Errorf("invalid tmpfs mount '%s': missing target", value)
	}
	return types.MountSpec{
		Source:  "tmpfs",
		Target:  target,
		FSType:  "tmpfs",
		Options: options,
	}, nil
}

// ReadExecOptions returns the command options set by the run flags. The
// environment is only replaced when an env file is given or the caller
// environment is cleared.
func ReadExecOptions(flags *pflag.FlagSet) (types.ExecOptions, error) {
	opts := types.ExecOptions{}
	opts.UserSpec, _ = flags.GetString("userspec")
	opts.Dir, _ = flags.GetString("workdir")

	files, _ := flags.GetStringArray("env-file")
	clearEnv, _ := flags.GetBool("clear-env")
	if len(files) == 0 && !clearEnv {
		return opts, nil
	}

	env := []string{}
	if !clearEnv {
		env = append(env, os.Environ()...)
	}
	if len(files) > 0 {
		vars, err := godotenv.Read(files...)
		if err != nil {
			return opts, fmt.Errorf("failed reading env files: %w", err)
		}
		keys := make([]string, 0, len(vars))
		for k := range vars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, k+"="+vars[k])
		}
	}
	opts.Env = env
	return opts, nil
}
