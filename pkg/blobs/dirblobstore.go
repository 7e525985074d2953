package blobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// DirBlobstore keeps blobs as files named by their hash in one directory.
type DirBlobstore struct {
	Dir string
}

var _ Blobstore = (*DirBlobstore)(nil)

// Path returns where the blob is, or would be, stored.
func (s *DirBlobstore) Path(info BlobInfo) (string, error) {
	if !ValidHash(info.Hash) {
		return "", fmt.Errorf("invalid blob hash %q", info.Hash)
	}
	return filepath.Join(s.Dir, info.Hash), nil
}

// Open opens the stored blob; a missing blob yields an os.ErrNotExist error.
func (s *DirBlobstore) Open(info BlobInfo) (*os.File, error) {
	p, err := s.Path(info)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("opening blob %q: %w", info.Hash, err)
	}
	return f, nil
}

func (s *DirBlobstore) Download(ctx context.Context, info BlobInfo, destPath string) error {
	f, err := s.Open(info)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := writeToFile(ctx, f, destPath); err != nil {
		return fmt.Errorf("copying blob %q: %w", info.Hash, err)
	}
	return nil
}

func (s *DirBlobstore) Upload(ctx context.Context, sourcePath string, info BlobInfo) error {
	log := klog.FromContext(ctx)

	p, err := s.Path(info)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err == nil {
		log.V(2).Info("blob already stored", "path", p)
		return nil
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating blob directory %q: %w", s.Dir, err)
	}
	if _, err := writeToFile(ctx, src, p); err != nil {
		return fmt.Errorf("storing blob %q: %w", info.Hash, err)
	}
	log.Info("stored blob", "path", p)
	return nil
}
