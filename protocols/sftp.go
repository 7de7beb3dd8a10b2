package protocols

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"ftpmanager/config"
)

type SFTPTransport struct {
	client  *sftp.Client
	sshConn *ssh.Client
	closed  atomic.Bool
}

func DialSFTP(ctx context.Context, p config.Profile, timeout time.Duration) (*SFTPTransport, error) {
	cfg := &ssh.ClientConfig{
		User: p.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(p.Password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	d := net.Dialer{Timeout: timeout}
	raw, err := d.DialContext(ctx, "tcp", p.Addr())
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(raw, p.Addr(), cfg)
	if err != nil {
		raw.Close()
		return nil, err
	}
	conn := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &SFTPTransport{client: client, sshConn: conn}, nil
}

func (s *SFTPTransport) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	err := s.client.Close()
	if s.sshConn != nil {
		err = s.sshConn.Close()
	}
	return err
}

func (s *SFTPTransport) do(ctx context.Context, fn func() error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { s.Close() })
	err := fn()
	if !stop() {
		return context.Cause(ctx)
	}
	if errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}

func (s *SFTPTransport) List(ctx context.Context, remotePath string) ([]FileEntry, error) {
	var infos []os.FileInfo
	err := s.do(ctx, func() error {
		var err error
		infos, err = s.client.ReadDir(remotePath)
		return err
	})
	if err != nil {
		return nil, err
	}

	files := make([]FileEntry, 0, len(infos))
	for _, info := range infos {
		files = append(files, FileEntry{
			Name:    info.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		})
	}
	return files, nil
}

func (s *SFTPTransport) UploadFrom(ctx context.Context, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()
	return s.do(ctx, func() error {
		dst, err := s.client.Create(remotePath)
		if err != nil {
			return err
		}
		if _, err := dst.ReadFrom(src); err != nil {
			dst.Close()
			return err
		}
		return dst.Close()
	})
}

func (s *SFTPTransport) DownloadTo(ctx context.Context, localPath, remotePath string) error {
	return s.do(ctx, func() error {
		src, err := s.client.Open(remotePath)
		if err != nil {
			return err
		}
		defer src.Close()
		return copyTo(localPath, src)
	})
}

func (s *SFTPTransport) UploadFromDir(ctx context.Context, localDir, remoteDir string) error {
	return uploadTree(ctx, s, localDir, remoteDir)
}

func (s *SFTPTransport) DownloadToDir(ctx context.Context, localDir, remoteDir string) error {
	return downloadTree(ctx, s, localDir, remoteDir)
}

func (s *SFTPTransport) Remove(ctx context.Context, remotePath string) error {
	return s.do(ctx, func() error {
		return s.client.Remove(remotePath)
	})
}

func (s *SFTPTransport) RemoveDir(ctx context.Context, remotePath string) error {
	return s.do(ctx, func() error {
		return s.client.RemoveAll(remotePath)
	})
}

func (s *SFTPTransport) EnsureDir(ctx context.Context, remotePath string) error {
	return s.do(ctx, func() error {
		return s.client.MkdirAll(remotePath)
	})
}
