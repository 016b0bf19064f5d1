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
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rancher/chorut/pkg/command"
	"github.com/rancher/chorut/pkg/constants"
	chorutError "github.com/rancher/chorut/pkg/error"
	"github.com/rancher/chorut/pkg/types"
)

// Handle is a live private namespace. Every operation is forwarded to the
// helper process owning the namespace, one at a time.
type Handle struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	conn   *conn
	userNS bool
	closed bool
	logger types.Logger
}

func newHandle(c *conn, cmd *exec.Cmd, userNS bool, logger types.Logger) *Handle {
	return &Handle{conn: c, cmd: cmd, userNS: userNS, logger: logger}
}

// UserNS reports whether the namespace also maps the caller to root in a
// new user namespace
func (h *Handle) UserNS() bool {
	return h.userNS
}

// Pid returns the host pid of the namespace helper, 0 if unknown
func (h *Handle) Pid() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Mounter returns a mounter operating inside the namespace. Unless rawRoot
// is empty, mount points are created and mounted only where they resolve
// to themselves under rawRoot as seen from within the namespace.
func (h *Handle) Mounter(rawRoot string) types.Mounter {
	return &nsMounter{h: h, root: rawRoot}
}

// Exec runs req inside the namespace with rawRoot as its filesystem root.
// rawRoot is a host path. Streams other than files are relayed through
// pipes and fully copied before Exec returns.
func (h *Handle) Exec(rawRoot string, req command.Request) (int, error) {
	streams, err := newStdio(req.Stdin, req.Stdout, req.Stderr)
	if err != nil {
		return -1, chorutError.NewChrootError(chorutError.ExecFailed, "failed preparing standard streams", err)
	}
	env := req.Env
	if env == nil {
		env = os.Environ()
	}
	res, err := h.call(&request{
		Op: opExec,
		Exec: &execRequest{
			Root:     rawRoot,
			Args:     req.Args,
			UserSpec: req.UserSpec,
			Dir:      req.Dir,
			Env:      env,
		},
	}, streams.files, streams.release)
	streams.release()
	streams.wait()
	if err != nil {
		return -1, err
	}
	if err = res.err(chorutError.ExecFailed); err != nil {
		return -1, err
	}
	return res.ReturnCode, nil
}

// call sends req with files attached and waits for the reply. sent runs
// once the request left, so the caller can drop its copies of the files.
func (h *Handle) call(req *request, files []*os.File, sent func()) (*response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, chorutError.NewChrootError(chorutError.NamespaceFailed, "namespace already released", nil)
	}
	err := h.conn.send(req, files...)
	if sent != nil {
		sent()
	}
	if err != nil {
		return nil, chorutError.NewChrootError(chorutError.NamespaceFailed, "failed sending "+req.Op+" request", err)
	}
	res := &response{}
	received, err := h.conn.recv(res)
	closeFiles(received)
	if err != nil {
		return nil, chorutError.NewChrootError(chorutError.NamespaceFailed, "failed reading "+req.Op+" reply", err)
	}
	return res, nil
}

// waitReady blocks until the helper reports the namespace is set up
func (h *Handle) waitReady() error {
	_ = h.conn.c.SetReadDeadline(time.Now().Add(constants.NamespaceReadyTimeout))
	defer func() { _ = h.conn.c.SetReadDeadline(time.Time{}) }()

	res := &response{}
	files, err := h.conn.recv(res)
	closeFiles(files)
	if err != nil {
		return chorutError.NewChrootError(chorutError.NamespaceFailed, "namespace helper did not start", err)
	}
	if res.Op != opReady {
		return chorutError.NewChrootError(chorutError.NamespaceFailed, "unexpected message from namespace helper: "+res.Op, nil)
	}
	return res.err(chorutError.NamespaceFailed)
}

// shutdown asks the helper to exit and reaps it. The helper is killed if
// it does not exit in time. Mounts left in the namespace go away with it.
func (h *Handle) shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	if err := h.conn.send(&request{Op: opShutdown}); err == nil {
		_ = h.conn.c.SetReadDeadline(time.Now().Add(constants.NamespaceShutdownTimeout))
		files, _ := h.conn.recv(&response{})
		closeFiles(files)
	}
	_ = h.conn.close()

	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() {
		done <- h.cmd.Wait()
	}()
	select {
	case err := <-done:
		if err != nil {
			return chorutError.NewChrootError(chorutError.NamespaceFailed, "namespace helper failed", err)
		}
	case <-time.After(constants.NamespaceShutdownTimeout):
		h.logger.Warnf("Namespace helper %d did not exit, killing it", h.cmd.Process.Pid)
		_ = h.cmd.Process.Kill()
		<-done
		return chorutError.NewChrootError(chorutError.NamespaceFailed, "namespace helper did not exit in time", nil)
	}
	return nil
}

// kill terminates a helper that never became ready
func (h *Handle) kill() {
	h.closed = true
	_ = h.conn.close()
	if h.cmd != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
		_ = h.cmd.Wait()
	}
}

// nsMounter runs mount operations inside the namespace of its handle
type nsMounter struct {
	h    *Handle
	root string
}

var _ types.Mounter = (*nsMounter)(nil)
var _ types.MountpointMaker = (*nsMounter)(nil)

func (m *nsMounter) Mount(source string, target string, fstype string, options []string) error {
	res, err := m.h.call(&request{Op: opMount, Root: m.root, Source: source, Target: target, FSType: fstype, Options: options}, nil, nil)
	if err != nil {
		return err
	}
	return res.err(chorutError.MountFailed)
}

func (m *nsMounter) Unmount(target string) error {
	res, err := m.h.call(&request{Op: opUnmount, Target: target}, nil, nil)
	if err != nil {
		return err
	}
	return res.err(chorutError.UnmountFailed)
}

func (m *nsMounter) IsLikelyNotMountPoint(file string) (bool, error) {
	res, err := m.h.call(&request{Op: opMounted, Target: file}, nil, nil)
	if err != nil {
		return true, err
	}
	return res.NotMounted, res.err(chorutError.MountFailed)
}

func (m *nsMounter) MkdirAll(path string, perm os.FileMode) error {
	res, err := m.h.call(&request{Op: opMkdir, Root: m.root, Target: path, Perm: uint32(perm)}, nil, nil)
	if err != nil {
		return err
	}
	return res.err(chorutError.MountFailed)
}

// stdio holds the files standing for the streams of an exec request
type stdio struct {
	files []*os.File
	owned []*os.File
	once  sync.Once
	wg    sync.WaitGroup
}

func newStdio(stdin io.Reader, stdout, stderr io.Writer) (*stdio, error) {
	s := &stdio{}
	in, err := s.input(stdin)
	if err != nil {
		s.release()
		return nil, err
	}
	out, err := s.output(stdout)
	if err != nil {
		s.release()
		return nil, err
	}
	errOut, err := s.output(stderr)
	if err != nil {
		s.release()
		return nil, err
	}
	s.files = []*os.File{in, out, errOut}
	return s, nil
}

func (s *stdio) input(r io.Reader) (*os.File, error) {
	switch v := r.(type) {
	case nil:
		f, err := os.Open(os.DevNull)
		if err != nil {
			return nil, err
		}
		s.owned = append(s.owned, f)
		return f, nil
	case *os.File:
		return v, nil
	default:
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		s.owned = append(s.owned, pr)
		go func() {
			_, _ = io.Copy(pw, v)
			_ = pw.Close()
		}()
		return pr, nil
	}
}

func (s *stdio) output(w io.Writer) (*os.File, error) {
	switch v := w.(type) {
	case nil:
		f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return nil, err
		}
		s.owned = append(s.owned, f)
		return f, nil
	case *os.File:
		return v, nil
	default:
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		s.owned = append(s.owned, pw)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_, _ = io.Copy(v, pr)
			_ = pr.Close()
		}()
		return pw, nil
	}
}

// release closes the local copies of the files handed to the helper
func (s *stdio) release() {
	s.once.Do(func() {
		closeFiles(s.owned)
	})
}

// wait blocks until every relayed output stream reached EOF
func (s *stdio) wait() {
	s.wg.Wait()
}
