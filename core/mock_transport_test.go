package core

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ftpmanager/config"
	"ftpmanager/protocols"
)

// mockServer is an in-memory remote shared by every transport it dials, so
// remote state survives reconnects.
type mockServer struct {
	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	listings map[string][]protocols.FileEntry

	dials    int
	dialErrs []error
	failures map[string][]error
	hooks    map[string]func(ctx context.Context) error
	calls    []string
	conns    []*mockTransport
}

func newMockServer() *mockServer {
	return &mockServer{
		files:    make(map[string][]byte),
		dirs:     map[string]bool{"/": true},
		listings: make(map[string][]protocols.FileEntry),
		failures: make(map[string][]error),
		hooks:    make(map[string]func(ctx context.Context) error),
	}
}

func (s *mockServer) dial(ctx context.Context, p config.Profile, timeout time.Duration) (protocols.Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	s.calls = append(s.calls, "dial")
	if len(s.dialErrs) > 0 {
		err := s.dialErrs[0]
		s.dialErrs = s.dialErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	t := &mockTransport{srv: s, id: s.dials}
	s.conns = append(s.conns, t)
	return t, nil
}

// failNext makes the next calls of method fail with errs, in order.
func (s *mockServer) failNext(method string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = append(s.failures[method], errs...)
}

// failDial makes the next dials return errs; a nil entry lets a dial succeed.
func (s *mockServer) failDial(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialErrs = append(s.dialErrs, errs...)
}

func (s *mockServer) hook(method string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[method] = fn
}

func (s *mockServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *mockServer) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *mockServer) count(method string) int {
	n := 0
	for _, c := range s.callLog() {
		if c == method {
			n++
		}
	}
	return n
}

func (s *mockServer) conn(i int) *mockTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[i]
}

func (s *mockServer) file(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path.Clean(p)]
	return data, ok
}

type mockTransport struct {
	srv    *mockServer
	id     int
	closed atomic.Bool
}

func (t *mockTransport) call(ctx context.Context, method string) error {
	if t.closed.Load() {
		return protocols.ErrClosed
	}
	s := t.srv
	s.mu.Lock()
	s.calls = append(s.calls, method)
	var err error
	if errs := s.failures[method]; len(errs) > 0 {
		err = errs[0]
		s.failures[method] = errs[1:]
	}
	hook := s.hooks[method]
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		return hook(ctx)
	}
	return nil
}

func (t *mockTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.srv.mu.Lock()
	t.srv.calls = append(t.srv.calls, "close")
	t.srv.mu.Unlock()
	return nil
}

func (t *mockTransport) List(ctx context.Context, remotePath string) ([]protocols.FileEntry, error) {
	if err := t.call(ctx, "list"); err != nil {
		return nil, err
	}
	s := t.srv
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := path.Clean(remotePath)
	if entries, ok := s.listings[dir]; ok {
		return append([]protocols.FileEntry(nil), entries...), nil
	}
	if !s.dirs[dir] {
		return nil, fmt.Errorf("550 %s: no such directory", remotePath)
	}
	var out []protocols.FileEntry
	for p, data := range s.files {
		if path.Dir(p) == dir {
			out = append(out, protocols.FileEntry{Name: path.Base(p), Size: int64(len(data))})
		}
	}
	for p := range s.dirs {
		if p != dir && path.Dir(p) == dir {
			out = append(out, protocols.FileEntry{Name: path.Base(p), IsDir: true})
		}
	}
	return out, nil
}

func (t *mockTransport) UploadFrom(ctx context.Context, localPath, remotePath string) error {
	if err := t.call(ctx, "upload"); err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	t.srv.mu.Lock()
	t.srv.files[path.Clean(remotePath)] = data
	t.srv.mu.Unlock()
	return nil
}

func (t *mockTransport) DownloadTo(ctx context.Context, localPath, remotePath string) error {
	if err := t.call(ctx, "download"); err != nil {
		return err
	}
	data, ok := t.srv.file(remotePath)
	if !ok {
		return fmt.Errorf("550 %s: no such file", remotePath)
	}
	return os.WriteFile(localPath, data, 0644)
}

func (t *mockTransport) UploadFromDir(ctx context.Context, localDir, remoteDir string) error {
	if err := t.call(ctx, "uploaddir"); err != nil {
		return err
	}
	return filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(localDir, p)
		target := path.Join(remoteDir, filepath.ToSlash(rel))
		t.srv.mu.Lock()
		defer t.srv.mu.Unlock()
		if d.IsDir() {
			t.srv.dirs[target] = true
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		t.srv.files[target] = data
		return nil
	})
}

func (t *mockTransport) DownloadToDir(ctx context.Context, localDir, remoteDir string) error {
	if err := t.call(ctx, "downloaddir"); err != nil {
		return err
	}
	t.srv.mu.Lock()
	defer t.srv.mu.Unlock()
	prefix := path.Clean(remoteDir) + "/"
	for p, data := range t.srv.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		local := filepath.Join(localDir, filepath.FromSlash(strings.TrimPrefix(p, prefix)))
		if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(local, data, 0644); err != nil {
			return err
		}
	}
	return nil
}

func (t *mockTransport) Remove(ctx context.Context, remotePath string) error {
	if err := t.call(ctx, "remove"); err != nil {
		return err
	}
	t.srv.mu.Lock()
	defer t.srv.mu.Unlock()
	p := path.Clean(remotePath)
	if _, ok := t.srv.files[p]; !ok {
		return fmt.Errorf("550 %s: no such file", remotePath)
	}
	delete(t.srv.files, p)
	return nil
}

func (t *mockTransport) RemoveDir(ctx context.Context, remotePath string) error {
	if err := t.call(ctx, "removedir"); err != nil {
		return err
	}
	t.srv.mu.Lock()
	defer t.srv.mu.Unlock()
	dir := path.Clean(remotePath)
	for p := range t.srv.files {
		if strings.HasPrefix(p, dir+"/") {
			delete(t.srv.files, p)
		}
	}
	for p := range t.srv.dirs {
		if p == dir || strings.HasPrefix(p, dir+"/") {
			delete(t.srv.dirs, p)
		}
	}
	return nil
}

func (t *mockTransport) EnsureDir(ctx context.Context, remotePath string) error {
	if err := t.call(ctx, "mkdir"); err != nil {
		return err
	}
	t.srv.mu.Lock()
	defer t.srv.mu.Unlock()
	for p := path.Clean(remotePath); p != "/" && p != "."; p = path.Dir(p) {
		t.srv.dirs[p] = true
	}
	return nil
}
