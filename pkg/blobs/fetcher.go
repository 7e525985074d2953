package blobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"k8s.io/klog/v2"
)

// ErrHashMismatch is returned when downloaded content does not hash to the
// requested BlobInfo.
var ErrHashMismatch = errors.New("blob content does not match hash")

// Fetcher downloads blobs, retrying transient failures, and verifies their
// content before handing them out.
type Fetcher struct {
	// Reader is the interface to fetch blobs
	Reader BlobReader

	// MaxAttempts is the number of times to attempt a download before failing
	MaxAttempts int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// Fetch downloads info to destPath. On a hash mismatch destPath is removed
// and ErrHashMismatch is returned without further attempts.
func (f *Fetcher) Fetch(ctx context.Context, info BlobInfo, destPath string) error {
	log := klog.FromContext(ctx)

	if !ValidHash(info.Hash) {
		return fmt.Errorf("invalid blob hash %q", info.Hash)
	}

	attempt := 0
	for {
		attempt++

		err := f.Reader.Download(ctx, info, destPath)
		if err == nil {
			break
		}
		if attempt >= f.MaxAttempts || ctx.Err() != nil {
			return fmt.Errorf("downloading blob %q after %d attempts: %w", info.Hash, attempt, err)
		}

		log.Error(err, "downloading blob, will retry", "hash", info.Hash, "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.RetryDelay):
		}
	}

	got, err := HashFile(destPath)
	if err != nil {
		return err
	}
	if got.Hash != info.Hash {
		if err := os.Remove(destPath); err != nil {
			log.Error(err, "removing corrupt blob", "path", destPath)
		}
		return fmt.Errorf("blob %q hashed to %q: %w", info.Hash, got.Hash, ErrHashMismatch)
	}
	return nil
}
