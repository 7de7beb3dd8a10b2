package protocols

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"ftpmanager/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestLocalTransportFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	work := t.TempDir()

	tr, err := Dial(ctx, config.Profile{Name: "dev", Protocol: "local", Path: root}, 0)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close()

	src := filepath.Join(work, "index.html")
	writeFile(t, src, "<h1>hello</h1>")

	if err := tr.EnsureDir(ctx, "/site/assets"); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if err := tr.UploadFrom(ctx, src, "/site/index.html"); err != nil {
		t.Fatalf("UploadFrom: %v", err)
	}

	entries, err := tr.List(ctx, "/site")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	if entries[0].Name != "assets" || !entries[0].IsDir {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Name != "index.html" || entries[1].Size != int64(len("<h1>hello</h1>")) {
		t.Errorf("unexpected second entry %+v", entries[1])
	}

	dst := filepath.Join(work, "copy.html")
	if err := tr.DownloadTo(ctx, dst, "/site/index.html"); err != nil {
		t.Fatalf("DownloadTo: %v", err)
	}
	if got := readFile(t, dst); got != "<h1>hello</h1>" {
		t.Errorf("downloaded content = %q", got)
	}

	if err := tr.Remove(ctx, "/site/index.html"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "site", "index.html")); !os.IsNotExist(err) {
		t.Errorf("expected file removed, stat err = %v", err)
	}
}

func TestLocalTransportDirectoryTrees(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	work := t.TempDir()
	tr, err := OpenLocal(root)
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(work, "src", "a.txt"), "a")
	writeFile(t, filepath.Join(work, "src", "nested", "b.txt"), "b")

	if err := tr.UploadFromDir(ctx, filepath.Join(work, "src"), "/deploy"); err != nil {
		t.Fatalf("UploadFromDir: %v", err)
	}
	if got := readFile(t, filepath.Join(root, "deploy", "nested", "b.txt")); got != "b" {
		t.Errorf("remote nested file = %q", got)
	}

	out := filepath.Join(work, "out")
	if err := tr.DownloadToDir(ctx, out, "/deploy"); err != nil {
		t.Fatalf("DownloadToDir: %v", err)
	}
	if got := readFile(t, filepath.Join(out, "a.txt")); got != "a" {
		t.Errorf("local a.txt = %q", got)
	}
	if got := readFile(t, filepath.Join(out, "nested", "b.txt")); got != "b" {
		t.Errorf("local nested/b.txt = %q", got)
	}

	if err := tr.RemoveDir(ctx, "/deploy"); err != nil {
		t.Fatalf("RemoveDir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "deploy")); !os.IsNotExist(err) {
		t.Errorf("expected deploy removed, stat err = %v", err)
	}
	if err := tr.RemoveDir(ctx, "/deploy"); err == nil {
		t.Error("expected removing a missing directory to fail")
	}
}

func TestLocalTransportStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	tr, err := OpenLocal(root)
	if err != nil {
		t.Fatal(err)
	}
	if got := tr.resolve("../../etc/passwd"); got != filepath.Join(root, "etc", "passwd") {
		t.Errorf("resolve escaped root: %s", got)
	}
}

func TestLocalTransportClosed(t *testing.T) {
	tr, err := OpenLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tr.Close()

	if _, err := tr.List(context.Background(), "/"); !errors.Is(err, ErrClosed) {
		t.Errorf("List after Close = %v, want ErrClosed", err)
	}
	if err := tr.UploadFromDir(context.Background(), t.TempDir(), "/x"); !errors.Is(err, ErrClosed) {
		t.Errorf("UploadFromDir after Close = %v, want ErrClosed", err)
	}
}

func TestLocalTransportHonorsContext(t *testing.T) {
	tr, err := OpenLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.EnsureDir(ctx, "/a"); !errors.Is(err, context.Canceled) {
		t.Errorf("EnsureDir with cancelled ctx = %v", err)
	}
}

func TestDialUnknownProtocol(t *testing.T) {
	_, err := Dial(context.Background(), config.Profile{Name: "x", Protocol: "gopher"}, 0)
	if err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}

func TestTranslateFTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"service not available", &textproto.Error{Code: 421, Msg: "Timeout"}, ErrClosed},
		{"data connection", &textproto.Error{Code: 425, Msg: "Can't open data connection"}, ErrNoTransferStrategy},
		{"closed socket", fmt.Errorf("read: %w", net.ErrClosed), ErrClosed},
		{"eof", io.EOF, ErrClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateFTPError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("translateFTPError(%v) = %v, want %v", tt.err, got, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("underlying cause lost: %v", got)
			}
		})
	}

	permanent := &textproto.Error{Code: 550, Msg: "No such file"}
	if got := translateFTPError(permanent); got != permanent {
		t.Errorf("550 should pass through unchanged, got %v", got)
	}
	if translateFTPError(nil) != nil {
		t.Error("nil should stay nil")
	}
}
