package protocols

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
)

// LocalTransport serves a local directory as if it were a remote root.
type LocalTransport struct {
	RootPath string
	closed   atomic.Bool
}

func OpenLocal(rootPath string) (*LocalTransport, error) {
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, err
	}
	return &LocalTransport{RootPath: rootPath}, nil
}

func (l *LocalTransport) resolve(remotePath string) string {
	return filepath.Join(l.RootPath, filepath.FromSlash(path.Clean("/"+remotePath)))
}

func (l *LocalTransport) check(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (l *LocalTransport) Close() error {
	l.closed.Store(true)
	return nil
}

func (l *LocalTransport) List(ctx context.Context, remotePath string) ([]FileEntry, error) {
	if err := l.check(ctx); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.resolve(remotePath))
	if err != nil {
		return nil, err
	}

	var files []FileEntry
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileEntry{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   entry.IsDir(),
		})
	}
	return files, nil
}

func (l *LocalTransport) UploadFrom(ctx context.Context, localPath, remotePath string) error {
	if err := l.check(ctx); err != nil {
		return err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()
	return copyTo(l.resolve(remotePath), src)
}

func (l *LocalTransport) DownloadTo(ctx context.Context, localPath, remotePath string) error {
	if err := l.check(ctx); err != nil {
		return err
	}
	src, err := os.Open(l.resolve(remotePath))
	if err != nil {
		return err
	}
	defer src.Close()
	return copyTo(localPath, src)
}

func (l *LocalTransport) UploadFromDir(ctx context.Context, localDir, remoteDir string) error {
	return uploadTree(ctx, l, localDir, remoteDir)
}

func (l *LocalTransport) DownloadToDir(ctx context.Context, localDir, remoteDir string) error {
	return downloadTree(ctx, l, localDir, remoteDir)
}

func (l *LocalTransport) Remove(ctx context.Context, remotePath string) error {
	if err := l.check(ctx); err != nil {
		return err
	}
	return os.Remove(l.resolve(remotePath))
}

func (l *LocalTransport) RemoveDir(ctx context.Context, remotePath string) error {
	if err := l.check(ctx); err != nil {
		return err
	}
	full := l.resolve(remotePath)
	if _, err := os.Stat(full); err != nil {
		return err
	}
	return os.RemoveAll(full)
}

func (l *LocalTransport) EnsureDir(ctx context.Context, remotePath string) error {
	if err := l.check(ctx); err != nil {
		return err
	}
	return os.MkdirAll(l.resolve(remotePath), 0755)
}
