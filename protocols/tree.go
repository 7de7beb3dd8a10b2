package protocols

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// fileOps is the per-file subset every backend implements; the directory
// helpers below are built on it.
type fileOps interface {
	List(ctx context.Context, remotePath string) ([]FileEntry, error)
	UploadFrom(ctx context.Context, localPath, remotePath string) error
	DownloadTo(ctx context.Context, localPath, remotePath string) error
	EnsureDir(ctx context.Context, remotePath string) error
}

func uploadTree(ctx context.Context, t fileOps, localDir, remoteDir string) error {
	if err := t.EnsureDir(ctx, remoteDir); err != nil {
		return err
	}
	return filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := path.Join(remoteDir, filepath.ToSlash(rel))
		switch {
		case d.IsDir():
			return t.EnsureDir(ctx, target)
		case d.Type().IsRegular():
			return t.UploadFrom(ctx, p, target)
		default:
			// symlinks, sockets and devices are skipped
			return nil
		}
	})
}

func downloadTree(ctx context.Context, t fileOps, localDir, remoteDir string) error {
	if err := os.MkdirAll(localDir, 0755); err != nil {
		return err
	}
	entries, err := t.List(ctx, remoteDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.Name == "" || entry.Name == "." || entry.Name == ".." {
			continue
		}
		remote := path.Join(remoteDir, entry.Name)
		local := filepath.Join(localDir, entry.Name)
		if entry.IsDir {
			if err := downloadTree(ctx, t, local, remote); err != nil {
				return err
			}
			continue
		}
		if err := t.DownloadTo(ctx, local, remote); err != nil {
			return err
		}
	}
	return nil
}

// copyTo streams r into a newly created local file.
func copyTo(localPath string, r io.Reader) error {
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ensureParents creates each missing directory from the top of remotePath
// down, ignoring failures for directories that already exist.
func ensureParents(remotePath string, mkdir func(string) error) {
	var dirs []string
	curr := path.Clean(remotePath)
	for curr != "." && curr != "/" && curr != "" {
		dirs = append(dirs, curr)
		curr = path.Dir(curr)
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		mkdir(dirs[i])
	}
}
