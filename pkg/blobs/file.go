package blobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// writeToFile copies src into destinationPath through a temp file in the same
// directory, so destinationPath either holds the whole blob or is untouched.
func writeToFile(ctx context.Context, src io.Reader, destinationPath string) (int64, error) {
	log := klog.FromContext(ctx)

	tempFile, err := os.CreateTemp(filepath.Dir(destinationPath), "download")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := tempFile.Name()

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tempFile.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			log.Error(err, "closing temp file", "path", tempPath)
		}
		if err := os.Remove(tempPath); err != nil {
			log.Error(err, "removing temp file", "path", tempPath)
		}
	}()

	n, err := io.Copy(tempFile, src)
	if err != nil {
		return n, fmt.Errorf("copying blob: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return n, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempPath, destinationPath); err != nil {
		return n, fmt.Errorf("renaming temp file: %w", err)
	}
	committed = true

	return n, nil
}
