package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"

	"k8s.io/examples/AI/graphscore/pkg/blobs"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	listen := ":8080"
	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		// We expect CACHE_DIR to be set when running on kubernetes, but default sensibly for local dev
		cacheDir = "~/.cache/weight-store/blobs"
	}
	bucket := os.Getenv("WEIGHTS_BUCKET")
	flag.StringVar(&listen, "listen", listen, "listen address")
	flag.StringVar(&cacheDir, "cache-dir", cacheDir, "cache directory")
	flag.StringVar(&bucket, "bucket", bucket, "GCS bucket (gs://<bucketName>) backing the cache")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] serve | push <weights-file>\n", os.Args[0])
		flag.PrintDefaults()
	}

	klog.InitFlags(nil)
	flag.Parse()

	if strings.HasPrefix(cacheDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		cacheDir = filepath.Join(homeDir, strings.TrimPrefix(cacheDir, "~/"))
	}

	var remote blobs.Blobstore
	if bucket != "" {
		if !strings.HasPrefix(bucket, "gs://") {
			return fmt.Errorf("bucket must be a GCS bucket URL (gs://<bucketName>)")
		}
		remote = &blobs.GCSBlobstore{Bucket: strings.TrimPrefix(bucket, "gs://")}
	}
	local := &blobs.DirBlobstore{Dir: cacheDir}

	switch flag.Arg(0) {
	case "serve":
		return serve(ctx, listen, local, remote)
	case "push":
		if flag.NArg() != 2 {
			flag.Usage()
			return fmt.Errorf("push takes one weights file")
		}
		return push(ctx, flag.Arg(1), local, remote)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", flag.Arg(0))
	}
}

// push stores a weights file under its sha256 locally and, when configured,
// in GCS, and prints the hash for use as WEIGHTS_HASH.
func push(ctx context.Context, path string, local, remote blobs.Blobstore) error {
	info, err := blobs.HashFile(path)
	if err != nil {
		return err
	}
	if err := local.Upload(ctx, path, info); err != nil {
		return err
	}
	if remote != nil {
		if err := remote.Upload(ctx, path, info); err != nil {
			return err
		}
	}
	fmt.Println(info.Hash)
	return nil
}

func serve(ctx context.Context, listen string, local *blobs.DirBlobstore, remote blobs.BlobReader) error {
	log := klog.FromContext(ctx)

	if err := os.MkdirAll(local.Dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory %q: %w", local.Dir, err)
	}

	s := &httpServer{
		blobCache: &blobCache{local: local, remote: remote},
	}

	log.Info("serving weights", "listen", listen, "cacheDir", local.Dir)
	if err := http.ListenAndServe(listen, s); err != nil {
		return fmt.Errorf("serving on %q: %w", listen, err)
	}
	return nil
}

type httpServer struct {
	blobCache *blobCache
}

func (s *httpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokens := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(tokens) == 1 {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			s.serveGETBlob(w, r, tokens[0])
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	http.Error(w, "not found", http.StatusNotFound)
}

func (s *httpServer) serveGETBlob(w http.ResponseWriter, r *http.Request, hash string) {
	ctx := r.Context()
	log := klog.FromContext(ctx)

	if !blobs.ValidHash(hash) {
		http.Error(w, "invalid hash", http.StatusBadRequest)
		return
	}

	f, err := s.blobCache.GetBlob(ctx, blobs.BlobInfo{Hash: hash})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		log.Error(err, "error getting blob", "hash", hash)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		log.Error(err, "stat blob", "hash", hash)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.V(2).Info("serving blob", "hash", hash)
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, hash, stat.ModTime(), f)
}

// blobCache serves blobs from local disk, filling misses from remote.
type blobCache struct {
	local  *blobs.DirBlobstore
	remote blobs.BlobReader

	fills singleflight.Group

	// timeout bounds one download from remote; zero means defaultFillTimeout.
	timeout time.Duration
}

const defaultFillTimeout = 30 * time.Minute

func (c *blobCache) fillTimeout() time.Duration {
	if c.timeout > 0 {
		return c.timeout
	}
	return defaultFillTimeout
}

func (c *blobCache) GetBlob(ctx context.Context, info blobs.BlobInfo) (*os.File, error) {
	f, err := c.local.Open(info)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, os.ErrNotExist) || c.remote == nil {
		return nil, err
	}

	// Concurrent misses on the same hash share one download, which outlives
	// any single requester.
	_, err, _ = c.fills.Do(info.Hash, func() (any, error) {
		p, err := c.local.Path(info)
		if err != nil {
			return nil, err
		}
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fillTimeout())
		defer cancel()
		fetcher := &blobs.Fetcher{Reader: c.remote, MaxAttempts: 1}
		return nil, fetcher.Fetch(fillCtx, info, p)
	})
	if err != nil {
		return nil, err
	}
	return c.local.Open(info)
}
