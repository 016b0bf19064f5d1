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
package types

// Config is the shared set of collaborators used by every chorut component
type Config struct {
	Logger  Logger
	Fs      FS
	Mounter Mounter
	Runner  Runner
	Syscall SyscallInterface
}

// Sanitize checks the consistency of the struct, returns error
// if unsolvable inconsistencies are found
func (c *Config) Sanitize() error {
	if c.Runner != nil && c.Runner.GetLogger() == nil {
		c.Runner.SetLogger(c.Logger)
	}
	return nil
}
