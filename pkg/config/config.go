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
	"github.com/twpayne/go-vfs/v4"

	"github.com/rancher/chorut/pkg/constants"
	"github.com/rancher/chorut/pkg/types"
)

type GenericOptions func(a *types.Config) error

func WithFs(fs types.FS) func(r *types.Config) error {
	return func(r *types.Config) error {
		r.Fs = fs
		return nil
	}
}

func WithLogger(logger types.Logger) func(r *types.Config) error {
	return func(r *types.Config) error {
		r.Logger = logger
		return nil
	}
}

func WithSyscall(syscall types.SyscallInterface) func(r *types.Config) error {
	return func(r *types.Config) error {
		r.Syscall = syscall
		return nil
	}
}

func WithMounter(mounter types.Mounter) func(r *types.Config) error {
	return func(r *types.Config) error {
		r.Mounter = mounter
		return nil
	}
}

func WithRunner(runner types.Runner) func(r *types.Config) error {
	return func(r *types.Config) error {
		r.Runner = runner
		return nil
	}
}

func NewConfig(opts ...GenericOptions) *types.Config {
	log := types.NewLogger()

	c := &types.Config{
		Fs:      vfs.OSFS,
		Logger:  log,
		Syscall: &types.RealSyscall{},
	}
	for _, o := range opts {
		err := o(c)
		if err != nil {
			log.Errorf("error applying config option: %s", err.Error())
			return nil
		}
	}

	// delay runner creation after we have run over the options in case we use WithRunner
	if c.Runner == nil {
		c.Runner = &types.RealRunner{Logger: c.Logger}
	}

	// Now check if the runner has a logger inside, otherwise point our logger into it
	// This can happen if we set the WithRunner option as that doesn't set a logger
	if c.Runner.GetLogger() == nil {
		c.Runner.SetLogger(c.Logger)
	}

	if c.Mounter == nil {
		c.Mounter = types.NewMounter(constants.MountBinary)
	}

	return c
}

// NewChrootSpec returns a ChrootSpec with the defaults every session starts from
func NewChrootSpec(path string, mounts ...types.MountSpec) *types.ChrootSpec {
	return &types.ChrootSpec{
		Path:      path,
		Mounts:    append([]types.MountSpec{}, mounts...),
		AutoShell: true,
	}
}
