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
package namespace

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sys/unix"

	"github.com/rancher/chorut/pkg/constants"
	chorutError "github.com/rancher/chorut/pkg/error"
)

const (
	opReady    = "ready"
	opMount    = "mount"
	opUnmount  = "unmount"
	opMounted  = "mounted"
	opMkdir    = "mkdir"
	opExec     = "exec"
	opShutdown = "shutdown"
)

const (
	kindChroot = "chroot"
	kindMount  = "mount"
)

// Number of descriptors passed along an exec request: stdin, stdout, stderr
const stdioFiles = 3

// request is sent from the controller to the namespace helper
type request struct {
	Op      string       `cbor:"op"`
	Root    string       `cbor:"root,omitempty"`
	Source  string       `cbor:"source,omitempty"`
	Target  string       `cbor:"target,omitempty"`
	FSType  string       `cbor:"fstype,omitempty"`
	Options []string     `cbor:"options,omitempty"`
	Perm    uint32       `cbor:"perm,omitempty"`
	Exec    *execRequest `cbor:"exec,omitempty"`
}

type execRequest struct {
	Root     string   `cbor:"root"`
	Args     []string `cbor:"args"`
	UserSpec string   `cbor:"userspec,omitempty"`
	Dir      string   `cbor:"dir,omitempty"`
	Env      []string `cbor:"env"`
}

// response answers every request, including the initial ready message
type response struct {
	Op         string `cbor:"op"`
	Error      string `cbor:"error,omitempty"`
	Cause      string `cbor:"cause,omitempty"`
	Kind       string `cbor:"kind,omitempty"`
	Code       int    `cbor:"code,omitempty"`
	Target     string `cbor:"target,omitempty"`
	NotMounted bool   `cbor:"not_mounted,omitempty"`
	ReturnCode int    `cbor:"rc,omitempty"`
}

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("namespace: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{MaxArrayElements: constants.MaxControlMessage}.DecMode()
	if err != nil {
		panic("namespace: CBOR decoder initialization failed: " + err.Error())
	}
}

// errorResponse serializes err keeping its kind, so the controller side can
// rebuild an equivalent error
func errorResponse(op string, err error) *response {
	res := &response{Op: op, Error: err.Error(), Code: chorutError.Unknown}
	var mErr *chorutError.MountError
	var cErr *chorutError.ChrootError
	switch {
	case errors.As(err, &mErr):
		res.Kind = kindMount
		res.Code = mErr.Kind()
		res.Target = mErr.Target()
		res.Error, res.Cause = mErr.Message(), causeOf(mErr)
	case errors.As(err, &cErr):
		res.Kind = kindChroot
		res.Code = cErr.Kind()
		res.Error, res.Cause = cErr.Message(), causeOf(cErr)
	}
	return res
}

func causeOf(err error) string {
	if cause := errors.Unwrap(err); cause != nil {
		return cause.Error()
	}
	return ""
}

// err rebuilds the error carried by the response, if any. Errors without
// a known kind are reported as failures of the given fallback kind.
func (r *response) err(fallback int) error {
	if r.Error == "" {
		return nil
	}
	var cause error
	if r.Cause != "" {
		cause = errors.New(r.Cause)
	}
	switch r.Kind {
	case kindMount:
		return chorutError.NewMountError(r.Code, r.Target, r.Error, cause)
	case kindChroot:
		return chorutError.NewChrootError(r.Code, r.Error, cause)
	}
	cause = errors.New(r.Error)
	switch fallback {
	case chorutError.MountFailed, chorutError.UnmountFailed:
		return chorutError.NewMountError(fallback, r.Target, "namespace helper failed", cause)
	}
	return chorutError.NewChrootError(fallback, "namespace helper failed", cause)
}

// conn frames CBOR messages over a SOCK_SEQPACKET unix socket, one message
// per packet, and carries file descriptors as SCM_RIGHTS
type conn struct {
	c *net.UnixConn
}

func newConn(f *os.File) (*conn, error) {
	c, err := net.FileConn(f)
	if err != nil {
		return nil, err
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		_ = c.Close()
		return nil, fmt.Errorf("control socket is not a unix socket")
	}
	return &conn{c: uc}, nil
}

func (c *conn) send(v interface{}, files ...*os.File) error {
	data, err := encMode.Marshal(v)
	if err != nil {
		return err
	}
	if len(data) > constants.MaxControlMessage {
		return fmt.Errorf("control message too large: %d bytes", len(data))
	}
	var oob []byte
	if len(files) > 0 {
		fds := make([]int, 0, len(files))
		for _, f := range files {
			fds = append(fds, int(f.Fd()))
		}
		oob = unix.UnixRights(fds...)
	}
	_, _, err = c.c.WriteMsgUnix(data, oob, nil)
	return err
}

// recv reads one message into v and returns the files attached to it
func (c *conn) recv(v interface{}) ([]*os.File, error) {
	buf := make([]byte, constants.MaxControlMessage)
	oob := make([]byte, unix.CmsgSpace(stdioFiles*4))
	n, oobn, _, _, err := c.c.ReadMsgUnix(buf, oob)
	if err != nil {
		return nil, err
	}
	files, err := parseRights(oob[:oobn])
	if err != nil {
		return nil, err
	}
	if n == 0 {
		closeFiles(files)
		return nil, io.EOF
	}
	if err = decMode.Unmarshal(buf[:n], v); err != nil {
		closeFiles(files)
		return nil, err
	}
	return files, nil
}

func (c *conn) close() error {
	return c.c.Close()
}

func parseRights(oob []byte) ([]*os.File, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, err
	}
	var files []*os.File
	for i := range msgs {
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			closeFiles(files)
			return nil, err
		}
		for _, fd := range fds {
			files = append(files, os.NewFile(uintptr(fd), fmt.Sprintf("fd-%d", fd)))
		}
	}
	return files, nil
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
