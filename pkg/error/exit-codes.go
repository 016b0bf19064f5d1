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

// provides custom error types and exit codes to use on chorut
package error

//
// Provided exit codes for chorut

// To make it easy to generate them you have to respect the structure:
//
// comment that explains the error
// const NamedConstant = ERRORCODE
//
// This way they can be turned into a Markdown list of EXITCODE -> COMMENT

// Chroot path does not exist or is not a directory
const NotADirectory = 10

// Chroot environment was already set up
const AlreadySetUp = 11

// Chroot environment is not ready to run commands
const NotReady = 12

// Errors tearing down the chroot environment
const TeardownFailed = 13

// Missing privileges to mount, chroot or switch user
const InsufficientPrivilege = 14

// Error creating or releasing the isolated namespace
const NamespaceFailed = 15

// Error starting a command inside the chroot
const ExecFailed = 16

// The given command could not be parsed
const InvalidCommand = 17

// User or group could not be resolved inside the chroot
const InvalidUserSpec = 18

// Error mounting a filesystem
const MountFailed = 30

// Error unmounting a filesystem
const UnmountFailed = 31

// Mount target resolves outside the chroot
const PathEscape = 32

// Mount source does not exist
const MissingSource = 33

// Filesystem type is not supported
const UnsupportedFSType = 34

// Invalid mount options
const InvalidOptions = 35

// Filesystem check failed before mounting
const CheckFailed = 36

// Error reading the run configuration
const ReadingRunConfig = 40

// Error reading the chroot spec
const ReadingSpecConfig = 41

// Wrong flags or arguments used in cmd
const InvalidArgs = 42

// Error writing output
const WriteOutput = 43

// Unknown error
const Unknown = 255
