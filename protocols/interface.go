package protocols

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ftpmanager/config"
)

var (
	// ErrClosed is returned by every Transport method after Close, and when the
	// server has dropped the control connection.
	ErrClosed = errors.New("connection already closed")
	// ErrNoTransferStrategy is returned when no data connection could be opened.
	ErrNoTransferStrategy = errors.New("no viable transfer strategy available")
)

type FileEntry struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Transport is one authenticated session with a remote server. It is not safe
// for concurrent use; callers serialize access.
type Transport interface {
	// List returns the entries of a remote directory (non-recursive).
	List(ctx context.Context, remotePath string) ([]FileEntry, error)
	UploadFrom(ctx context.Context, localPath, remotePath string) error
	DownloadTo(ctx context.Context, localPath, remotePath string) error
	// UploadFromDir copies the contents of localDir into remoteDir, creating
	// remote directories as needed.
	UploadFromDir(ctx context.Context, localDir, remoteDir string) error
	// DownloadToDir copies the contents of remoteDir into localDir.
	DownloadToDir(ctx context.Context, localDir, remoteDir string) error
	Remove(ctx context.Context, remotePath string) error
	// RemoveDir removes remotePath and everything below it.
	RemoveDir(ctx context.Context, remotePath string) error
	// EnsureDir creates remotePath and any missing parents.
	EnsureDir(ctx context.Context, remotePath string) error
	Close() error
}

// Dialer opens an authenticated Transport for a profile.
type Dialer func(ctx context.Context, p config.Profile, timeout time.Duration) (Transport, error)

// Dial picks a backend by p.Protocol.
func Dial(ctx context.Context, p config.Profile, timeout time.Duration) (Transport, error) {
	p = p.WithDefaults()
	var (
		t   Transport
		err error
	)
	switch p.Protocol {
	case "ftp":
		t, err = DialFTP(ctx, p, timeout)
	case "sftp":
		t, err = DialSFTP(ctx, p, timeout)
	case "local":
		t, err = OpenLocal(p.Path)
	default:
		return nil, fmt.Errorf("unknown protocol: %s", p.Protocol)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}
