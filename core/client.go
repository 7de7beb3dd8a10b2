package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"ftpmanager/config"
	"ftpmanager/metrics"
	"ftpmanager/protocols"
)

// RemoteEntry is one item of a remote listing. Path is the listed directory
// joined with Name by a single slash.
type RemoteEntry struct {
	Name    string
	Path    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

type Option func(*Client)

// WithDialer replaces protocols.Dial, mainly for tests.
func WithDialer(d protocols.Dialer) Option {
	return func(c *Client) { c.dial = d }
}

func WithTimeouts(t config.Timeouts) Option {
	return func(c *Client) { c.timeouts = t.WithDefaults() }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client owns a single remote session. Every remote operation goes through
// its queue, so at most one runs against the connection at a time, in the
// order they were requested.
type Client struct {
	dial     protocols.Dialer
	timeouts config.Timeouts
	grace    time.Duration
	logger   *zap.Logger
	queue    *Queue
	session  session
	events   *Broadcaster
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		dial:     protocols.Dial,
		timeouts: config.Timeouts{}.WithDefaults(),
		grace:    abandonGrace,
		logger:   zap.NewNop(),
		events:   NewBroadcaster(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.queue = NewQueue(c.logger)
	return c
}

// Connect opens a session for p. An existing session is replaced once the
// operations already queued against it have finished. On failure the
// previous state is left untouched.
func (c *Client) Connect(ctx context.Context, p config.Profile) error {
	p = p.WithDefaults()
	t, err := c.dial(ctx, p, c.timeouts.Connect.Std())
	if err != nil {
		c.logger.Error("connect failed", zap.String("profile", p.Name), zap.String("addr", p.Addr()), zap.Error(err))
		return opError("connect", p.Name, ErrConnection, err)
	}

	var old protocols.Transport
	if err := c.queue.WhenIdle(ctx, func() { old = c.session.replace(p, t) }); err != nil {
		t.Close()
		return ctxError("connect", p.Name, err)
	}
	if old != nil {
		old.Close()
	}
	c.onConnected(p)
	return nil
}

// reconnect runs inside the executing unit, which is the only one touching
// the session, so it swaps the transport directly.
func (c *Client) reconnect(ctx context.Context, p config.Profile) error {
	t, err := c.dial(ctx, p, c.timeouts.Connect.Std())
	if err != nil {
		return opError("reconnect", p.Name, ErrConnection, err)
	}
	if old := c.session.replace(p, t); old != nil {
		old.Close()
	}
	c.onConnected(p)
	return nil
}

func (c *Client) onConnected(p config.Profile) {
	metrics.SetConnected(true)
	c.logger.Info("connected", zap.String("profile", p.Name), zap.String("addr", p.Addr()))
	c.events.Publish(Event{Type: EventConnected, Profile: p.Name})
}

// Disconnect waits for every queued operation to finish, then closes the
// session. It is a no-op when not connected.
func (c *Client) Disconnect(ctx context.Context) error {
	if !c.session.connected() {
		return nil
	}

	var (
		old  protocols.Transport
		name string
	)
	err := c.queue.WhenIdle(ctx, func() {
		if p, _ := c.session.get(); p != nil {
			name = p.Name
		}
		old = c.session.clear()
	})
	if err != nil {
		return ctxError("disconnect", "", err)
	}
	if old == nil {
		return nil
	}
	if err := old.Close(); err != nil {
		c.logger.Warn("close failed", zap.String("profile", name), zap.Error(err))
	}
	metrics.SetConnected(false)
	c.logger.Info("disconnected", zap.String("profile", name))
	c.events.Publish(Event{Type: EventDisconnected, Profile: name})
	return nil
}

// Close disconnects without a deadline.
func (c *Client) Close() error {
	return c.Disconnect(context.Background())
}

func (c *Client) IsConnected() bool {
	return c.session.connected()
}

// IsBusy reports whether an operation is running or waiting.
func (c *Client) IsBusy() bool {
	return c.queue.Busy()
}

// Profile returns the active profile.
func (c *Client) Profile() (config.Profile, bool) {
	p, _ := c.session.get()
	if p == nil {
		return config.Profile{}, false
	}
	return *p, true
}

// Subscribe returns a channel of connected/disconnected events.
func (c *Client) Subscribe() chan Event { return c.events.Subscribe() }

func (c *Client) Unsubscribe(ch chan Event) { c.events.Unsubscribe(ch) }

type transportFunc func(ctx context.Context, t protocols.Transport) error

// submit queues fn behind the reconnect wrapper. fn receives the transport
// current at execution time.
func (c *Client) submit(ctx context.Context, op, path string, fn transportFunc) *Handle {
	work := func(ctx context.Context) error {
		_, t := c.session.get()
		if t == nil {
			return opError(op, path, ErrNotConnected, nil)
		}
		return fn(ctx, t)
	}
	return c.queue.Submit(ctx, op, c.withReconnect(op, work))
}

func (c *Client) do(ctx context.Context, op, path string, fn transportFunc) error {
	err := c.submit(ctx, op, path, fn).Wait(ctx)
	return ctxError(op, path, err)
}

// withReconnect retries work exactly once after a fresh connect when it fails
// because the session was lost and a profile is on record.
func (c *Client) withReconnect(op string, work Work) Work {
	return func(ctx context.Context) error {
		err := work(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
		p, _ := c.session.get()
		if p == nil {
			return err
		}
		profile := *p

		c.logger.Warn("session lost, reconnecting",
			zap.String("op", op),
			zap.String("profile", profile.Name),
			zap.Error(err),
		)
		if rerr := c.reconnect(ctx, profile); rerr != nil {
			metrics.RecordReconnect("failed")
			c.logger.Error("reconnect failed", zap.String("profile", profile.Name), zap.Error(rerr))
			return rerr
		}
		metrics.RecordReconnect("ok")
		return work(ctx)
	}
}

// abandonGrace bounds how long guard waits for a cancelled transfer to return
// before giving the queue back.
const abandonGrace = 5 * time.Second

// guard runs fn with a deadline of budget. fn gets a context that ends on the
// deadline or when ctx is cancelled, so the transport can tear the transfer
// down. After that guard waits up to c.grace for fn to return, so the next unit
// does not share the connection with the abandoned one.
func (c *Client) guard(ctx context.Context, op, path string, budget time.Duration, fn func(ctx context.Context) error) error {
	tctx, cancel := context.WithTimeoutCause(ctx, budget, ErrTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(tctx) }()

	select {
	case err := <-done:
		if err != nil && tctx.Err() != nil {
			return guardError(tctx, op, path, budget)
		}
		return err
	case <-tctx.Done():
		select {
		case <-done:
		case <-time.After(c.grace):
			c.logger.Warn("abandoned transfer still running", zap.String("op", op), zap.String("path", path))
		}
		return guardError(tctx, op, path, budget)
	}
}

func guardError(tctx context.Context, op, path string, budget time.Duration) error {
	if errors.Is(context.Cause(tctx), ErrTimeout) {
		return opError(op, path, ErrTimeout, fmt.Errorf("took longer than %v", budget))
	}
	return opError(op, path, ErrUserCancelled, tctx.Err())
}

// ctxError gives a kind to bare context errors returned while waiting.
func ctxError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opError(op, path, ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return opError(op, path, ErrUserCancelled, err)
	}
	return err
}

// joinRemote joins dir and name with exactly one slash.
func joinRemote(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

// ListFiles lists remotePath, or the profile's root when remotePath is empty.
func (c *Client) ListFiles(ctx context.Context, remotePath string) ([]RemoteEntry, error) {
	const op = "list"
	var files []RemoteEntry
	err := c.do(ctx, op, remotePath, func(ctx context.Context, t protocols.Transport) error {
		dir := remotePath
		if dir == "" {
			dir = "/"
			if p, _ := c.session.get(); p != nil && p.Path != "" {
				dir = p.Path
			}
		}
		entries, err := t.List(ctx, dir)
		if err != nil {
			return transferError(op, dir, err)
		}

		files = make([]RemoteEntry, 0, len(entries))
		for _, entry := range entries {
			if entry.Name == "" {
				c.logger.Warn("skipping unnamed entry", zap.String("dir", dir))
				continue
			}
			files = append(files, RemoteEntry{
				Name:    entry.Name,
				Path:    joinRemote(dir, entry.Name),
				IsDir:   entry.IsDir,
				Size:    entry.Size,
				ModTime: entry.ModTime,
			})
		}
		c.logger.Debug("listed", zap.String("dir", dir), zap.Int("entries", len(files)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) UploadFile(ctx context.Context, localPath, remotePath string) error {
	const op = "upload file"
	name := filepath.Base(localPath)
	item := Transfer{LocalPath: localPath, RemotePath: remotePath}
	return c.do(ctx, op, name, func(ctx context.Context, t protocols.Transport) error {
		return c.uploadOne(ctx, op, name, item, t)
	})
}

func (c *Client) uploadOne(ctx context.Context, op, name string, item Transfer, t protocols.Transport) error {
	info, err := os.Stat(item.LocalPath)
	if err != nil {
		return opError(op, name, ErrIO, err)
	}
	if !info.Mode().IsRegular() {
		return opError(op, name, ErrNotAFile, errors.New("use UploadFolder or SyncFolder for folders"))
	}
	if err := t.UploadFrom(ctx, item.LocalPath, item.RemotePath); err != nil {
		return transferError(op, name, err)
	}
	c.logger.Info("file uploaded", zap.String("local", item.LocalPath), zap.String("remote", item.RemotePath))
	return nil
}

func (c *Client) UploadFolder(ctx context.Context, localPath, remotePath string) error {
	return c.uploadDir(ctx, "upload folder", localPath, remotePath, c.timeouts.UploadFolder.Std())
}

// SyncFolder pushes the contents of localPath to remotePath.
func (c *Client) SyncFolder(ctx context.Context, localPath, remotePath string) error {
	return c.uploadDir(ctx, "sync folder", localPath, remotePath, c.timeouts.SyncFolder.Std())
}

func (c *Client) uploadDir(ctx context.Context, op, localPath, remotePath string, budget time.Duration) error {
	name := filepath.Base(localPath)
	return c.do(ctx, op, name, func(ctx context.Context, t protocols.Transport) error {
		info, err := os.Stat(localPath)
		if err != nil {
			return opError(op, name, ErrIO, err)
		}
		if !info.IsDir() {
			return opError(op, name, ErrNotADirectory, errors.New("use UploadFile for files"))
		}
		err = c.guard(ctx, op, name, budget, func(ctx context.Context) error {
			return t.UploadFromDir(ctx, localPath, remotePath)
		})
		if err != nil {
			return transferError(op, name, err)
		}
		c.logger.Info("folder uploaded", zap.String("op", op), zap.String("local", localPath), zap.String("remote", remotePath))
		return nil
	})
}

func (c *Client) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	const op = "download file"
	name := filepath.Base(localPath)
	return c.do(ctx, op, name, func(ctx context.Context, t protocols.Transport) error {
		if err := t.DownloadTo(ctx, localPath, remotePath); err != nil {
			return transferError(op, name, err)
		}
		c.logger.Info("file downloaded", zap.String("remote", remotePath), zap.String("local", localPath))
		return nil
	})
}

func (c *Client) DownloadFolder(ctx context.Context, remotePath, localPath string) error {
	const op = "download folder"
	name := baseRemote(remotePath)
	return c.do(ctx, op, name, func(ctx context.Context, t protocols.Transport) error {
		if err := os.MkdirAll(localPath, 0755); err != nil {
			return opError(op, name, ErrIO, err)
		}
		err := c.guard(ctx, op, name, c.timeouts.DownloadFolder.Std(), func(ctx context.Context) error {
			return t.DownloadToDir(ctx, localPath, remotePath)
		})
		if err != nil {
			return transferError(op, name, err)
		}
		c.logger.Info("folder downloaded", zap.String("remote", remotePath), zap.String("local", localPath))
		return nil
	})
}

func (c *Client) DeleteFile(ctx context.Context, remotePath string) error {
	const op = "delete file"
	if err := c.checkRemote(op, remotePath); err != nil {
		return err
	}
	return c.do(ctx, op, remotePath, func(ctx context.Context, t protocols.Transport) error {
		if err := t.Remove(ctx, remotePath); err != nil {
			return transferError(op, baseRemote(remotePath), err)
		}
		c.logger.Info("file deleted", zap.String("remote", remotePath))
		return nil
	})
}

// DeleteFolder removes remotePath and everything below it.
func (c *Client) DeleteFolder(ctx context.Context, remotePath string) error {
	const op = "delete folder"
	if err := c.checkRemote(op, remotePath); err != nil {
		return err
	}
	return c.do(ctx, op, remotePath, func(ctx context.Context, t protocols.Transport) error {
		if err := t.RemoveDir(ctx, remotePath); err != nil {
			return transferError(op, baseRemote(remotePath), err)
		}
		c.logger.Info("folder deleted", zap.String("remote", remotePath))
		return nil
	})
}

// CreateDirectory creates remotePath and any missing parents.
func (c *Client) CreateDirectory(ctx context.Context, remotePath string) error {
	const op = "create directory"
	name := baseRemote(remotePath)
	return c.do(ctx, op, name, func(ctx context.Context, t protocols.Transport) error {
		if err := t.EnsureDir(ctx, remotePath); err != nil {
			return transferError(op, name, err)
		}
		c.logger.Info("directory created", zap.String("remote", remotePath))
		return nil
	})
}

// checkRemote rejects a blank remote path before it is queued. The
// not-connected check comes first.
func (c *Client) checkRemote(op, remotePath string) error {
	if !c.session.connected() {
		return opError(op, remotePath, ErrNotConnected, nil)
	}
	if strings.TrimSpace(remotePath) == "" {
		return opError(op, remotePath, ErrInvalidPath, nil)
	}
	return nil
}

func baseRemote(p string) string {
	trimmed := strings.TrimRight(p, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
