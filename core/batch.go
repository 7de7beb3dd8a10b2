package core

import (
	"context"
	"errors"
	"path/filepath"

	"ftpmanager/protocols"
)

// Transfer pairs a local file with its remote destination.
type Transfer struct {
	LocalPath  string
	RemotePath string
}

type BatchItem struct {
	Path string
	Err  error
}

// BatchResult reports each item of a multi-file operation. Items keep the
// order they were given in.
type BatchResult struct {
	Succeeded []BatchItem
	Failed    []BatchItem
	// Cancelled is set when ctx ended before every item resolved; the
	// remaining items are reported in Failed with ErrUserCancelled.
	Cancelled bool
}

// Err summarizes the batch: nil when every item succeeded.
func (r BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, item := range r.Failed {
		errs = append(errs, item.Err)
	}
	return errors.Join(errs...)
}

// UploadFiles queues one upload per item and waits for all of them. A failed
// item does not stop the others; ending ctx stops further submissions.
func (c *Client) UploadFiles(ctx context.Context, items []Transfer) BatchResult {
	handles := make([]*Handle, len(items))
	paths := make([]string, len(items))
	for i, item := range items {
		paths[i] = item.LocalPath
		if ctx.Err() != nil {
			continue
		}
		handles[i] = c.submitFile(ctx, item)
	}
	return c.collect(ctx, "upload files", paths, handles)
}

func (c *Client) submitFile(ctx context.Context, item Transfer) *Handle {
	const op = "upload file"
	name := filepath.Base(item.LocalPath)
	return c.submit(ctx, op, name, func(ctx context.Context, t protocols.Transport) error {
		return c.uploadOne(ctx, op, name, item, t)
	})
}

// DeleteFiles queues one delete per remote path and waits for all of them.
func (c *Client) DeleteFiles(ctx context.Context, remotePaths []string) BatchResult {
	const op = "delete file"
	handles := make([]*Handle, len(remotePaths))
	for i, p := range remotePaths {
		if ctx.Err() != nil {
			break
		}
		if err := c.checkRemote(op, p); err != nil {
			handles[i] = resolved(err)
			continue
		}
		handles[i] = c.submit(ctx, op, p, func(ctx context.Context, t protocols.Transport) error {
			if err := t.Remove(ctx, p); err != nil {
				return transferError(op, baseRemote(p), err)
			}
			return nil
		})
	}
	return c.collect(ctx, "delete files", remotePaths, handles)
}

func (c *Client) collect(ctx context.Context, op string, paths []string, handles []*Handle) BatchResult {
	var res BatchResult
	for i, h := range handles {
		// nil: ctx ended before the item was submitted
		var err error
		if h == nil {
			err = opError(op, paths[i], ErrUserCancelled, ctx.Err())
		} else {
			err = ctxError(op, paths[i], h.Wait(ctx))
		}
		if errors.Is(err, ErrUserCancelled) {
			res.Cancelled = true
		}
		if err != nil {
			res.Failed = append(res.Failed, BatchItem{Path: paths[i], Err: err})
			continue
		}
		res.Succeeded = append(res.Succeeded, BatchItem{Path: paths[i]})
	}
	return res
}
