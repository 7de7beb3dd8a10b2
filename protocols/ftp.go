package protocols

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"path"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jlaffaye/ftp"

	"ftpmanager/config"
)

type FTPTransport struct {
	conn   *ftp.ServerConn
	closed atomic.Bool
}

// DialFTP connects and logs in. Secure profiles upgrade the control
// connection with AUTH TLS.
func DialFTP(ctx context.Context, p config.Profile, timeout time.Duration) (*FTPTransport, error) {
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout),
	}
	if p.Secure {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         p.Host,
			ClientSessionCache: tls.NewLRUClientSessionCache(0),
		}))
	}

	c, err := ftp.Dial(p.Addr(), opts...)
	if err != nil {
		return nil, err
	}

	user, password := p.User, p.Password
	if user == "" {
		user, password = "anonymous", "anonymous"
	}
	if err := c.Login(user, password); err != nil {
		c.Quit()
		return nil, err
	}
	return &FTPTransport{conn: c}, nil
}

func (f *FTPTransport) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	return f.conn.Quit()
}

// do runs fn against the control connection. If ctx ends first the
// connection is shut down, which unblocks fn; the transport is unusable
// afterwards.
func (f *FTPTransport) do(ctx context.Context, fn func() error) error {
	if f.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { f.Close() })
	err := fn()
	if !stop() {
		return context.Cause(ctx)
	}
	return translateFTPError(err)
}

func translateFTPError(err error) error {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case ftp.StatusNotAvailable:
			return fmt.Errorf("%w: %w", ErrClosed, err)
		case ftp.StatusCanNotOpenDataConnection:
			return fmt.Errorf("%w: %w", ErrNoTransferStrategy, err)
		}
		return err
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}

func (f *FTPTransport) List(ctx context.Context, remotePath string) ([]FileEntry, error) {
	var entries []*ftp.Entry
	err := f.do(ctx, func() error {
		var err error
		entries, err = f.conn.List(remotePath)
		return err
	})
	if err != nil {
		return nil, err
	}

	files := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		files = append(files, FileEntry{
			Name:    entry.Name,
			Size:    int64(entry.Size),
			ModTime: entry.Time,
			IsDir:   entry.Type == ftp.EntryTypeFolder,
		})
	}
	return files, nil
}

func (f *FTPTransport) UploadFrom(ctx context.Context, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()
	return f.do(ctx, func() error {
		return f.conn.Stor(remotePath, src)
	})
}

func (f *FTPTransport) DownloadTo(ctx context.Context, localPath, remotePath string) error {
	return f.do(ctx, func() error {
		r, err := f.conn.Retr(remotePath)
		if err != nil {
			return err
		}
		err = copyTo(localPath, r)
		if cerr := r.Close(); err == nil {
			err = cerr
		}
		return err
	})
}

func (f *FTPTransport) UploadFromDir(ctx context.Context, localDir, remoteDir string) error {
	return uploadTree(ctx, f, localDir, remoteDir)
}

func (f *FTPTransport) DownloadToDir(ctx context.Context, localDir, remoteDir string) error {
	return downloadTree(ctx, f, localDir, remoteDir)
}

func (f *FTPTransport) Remove(ctx context.Context, remotePath string) error {
	return f.do(ctx, func() error {
		return f.conn.Delete(remotePath)
	})
}

func (f *FTPTransport) RemoveDir(ctx context.Context, remotePath string) error {
	return f.do(ctx, func() error {
		return f.conn.RemoveDirRecur(remotePath)
	})
}

// EnsureDir creates every missing component of remotePath. FTP has no
// mkdir -p, so intermediate failures are ignored and only the final directory
// is verified.
func (f *FTPTransport) EnsureDir(ctx context.Context, remotePath string) error {
	target := path.Clean(remotePath)
	if target == "/" || target == "." {
		return nil
	}
	return f.do(ctx, func() error {
		ensureParents(path.Dir(target), f.conn.MakeDir)
		mkErr := f.conn.MakeDir(target)
		if mkErr == nil {
			return nil
		}
		entries, err := f.conn.List(path.Dir(target))
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.Name == path.Base(target) && entry.Type == ftp.EntryTypeFolder {
				return nil
			}
		}
		return mkErr
	})
}
