// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"k8s.io/klog/v2"

	"k8s.io/examples/AI/graphscore/pkg/blobs"
	"k8s.io/examples/AI/graphscore/pkg/engine"
	"k8s.io/examples/AI/graphscore/pkg/engine/fallback"
	"k8s.io/examples/AI/graphscore/pkg/mpnn"
	"k8s.io/examples/AI/graphscore/pkg/serving"
	"k8s.io/examples/AI/graphscore/pkg/weights"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type options struct {
	listen     string
	grpcListen string

	modelDir      string
	weightsFile   string
	weightsHash   string
	weightsFormat string
	blobserver    string
	bucket        string
	graphFile     string

	device      string
	parallelism int
	model       mpnn.Config
}

func run(ctx context.Context) error {
	opt := options{
		listen:        ":8080",
		grpcListen:    ":9876",
		modelDir:      os.Getenv("SM_MODEL_DIR"),
		weightsHash:   os.Getenv("WEIGHTS_HASH"),
		weightsFormat: "safetensors",
		blobserver:    os.Getenv("BLOBSERVER"),
		bucket:        os.Getenv("WEIGHTS_BUCKET"),
		device:        string(engine.DeviceCPU),
		parallelism:   runtime.NumCPU(),
		model:         mpnn.DefaultConfig(),
	}
	if opt.modelDir == "" {
		opt.modelDir = os.Getenv("MODEL_DIR")
	}
	if opt.modelDir == "" {
		// SageMaker mounts the model here; MODEL_DIR overrides for local dev.
		opt.modelDir = "/opt/ml/model"
	}

	flag.StringVar(&opt.listen, "listen", opt.listen, "HTTP listen address")
	flag.StringVar(&opt.grpcListen, "grpc-listen", opt.grpcListen, "gRPC listen address; empty disables gRPC")
	flag.StringVar(&opt.modelDir, "model-dir", opt.modelDir, "directory holding the model weights")
	flag.StringVar(&opt.weightsFile, "weights", opt.weightsFile, "weights file; defaults to model.safetensors or model.json in the model directory")
	flag.StringVar(&opt.weightsHash, "weights-hash", opt.weightsHash, "sha256 of the weights to fetch before serving")
	flag.StringVar(&opt.weightsFormat, "weights-format", opt.weightsFormat, "format of fetched weights: safetensors or json")
	flag.StringVar(&opt.blobserver, "blobserver", opt.blobserver, "base url to blobserver to fetch weights from")
	flag.StringVar(&opt.bucket, "weights-bucket", opt.bucket, "GCS bucket (gs://<bucketName>) to fetch weights from")
	flag.StringVar(&opt.graphFile, "graph", opt.graphFile, "JSON graph file; defaults to the built-in two-node graph")
	flag.StringVar(&opt.device, "device", opt.device, "engine device")
	flag.IntVar(&opt.parallelism, "parallelism", opt.parallelism, "number of CPU workers per operation")
	flag.IntVar(&opt.model.InDim, "in-dim", opt.model.InDim, "node feature width")
	flag.IntVar(&opt.model.NumLayers, "layers", opt.model.NumLayers, "number of message-passing layers")
	flag.IntVar(&opt.model.EmbDim, "emb-dim", opt.model.EmbDim, "hidden state width")
	flag.IntVar(&opt.model.OutDim, "out-dim", opt.model.OutDim, "per-node output width")
	flag.StringVar(&opt.model.Aggregation, "aggregation", opt.model.Aggregation, "message aggregation: sum, mean, min, max or mul")

	klog.InitFlags(nil)
	flag.Parse()

	log := klog.FromContext(ctx)

	model, err := loadModel(ctx, opt)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              opt.listen,
		Handler:           serving.NewHTTPServer(model).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := grpc.NewServer()
	serving.RegisterScorerServer(grpcServer, serving.NewGRPCServer(model))

	var grpcListener net.Listener
	if opt.grpcListen != "" {
		if grpcListener, err = net.Listen("tcp", opt.grpcListen); err != nil {
			return fmt.Errorf("listening on %q: %w", opt.grpcListen, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("serving HTTP", "listen", opt.listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving HTTP on %q: %w", opt.listen, err)
		}
		return nil
	})
	if grpcListener != nil {
		g.Go(func() error {
			log.Info("serving gRPC", "listen", opt.grpcListen)
			if err := grpcServer.Serve(grpcListener); err != nil {
				return fmt.Errorf("serving gRPC on %q: %w", opt.grpcListen, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down HTTP server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func loadModel(ctx context.Context, opt options) (*mpnn.Model, error) {
	device, err := engine.ParseDevice(opt.device)
	if err != nil {
		return nil, err
	}
	var eng engine.Engine
	switch device {
	case engine.DeviceCPU:
		eng = fallback.New(fallback.WithParallelism(opt.parallelism))
	default:
		return nil, fmt.Errorf("no engine for device %q", device)
	}

	graph := mpnn.DefaultGraph()
	if opt.graphFile != "" {
		if graph, err = mpnn.LoadGraph(opt.graphFile); err != nil {
			return nil, err
		}
	}

	weightsPath, err := resolveWeights(ctx, opt)
	if err != nil {
		return nil, err
	}
	params, err := weights.LoadFile(ctx, weightsPath)
	if err != nil {
		return nil, err
	}
	return mpnn.NewModel(ctx, eng, graph, opt.model, params)
}

// resolveWeights returns the local weights path, fetching the blob named by
// opt.weightsHash first when one is set.
func resolveWeights(ctx context.Context, opt options) (string, error) {
	log := klog.FromContext(ctx)

	if opt.weightsHash == "" {
		if opt.weightsFile != "" {
			return opt.weightsFile, nil
		}
		for _, name := range []string{"model.safetensors", "model.json"} {
			p := filepath.Join(opt.modelDir, name)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
		return "", fmt.Errorf("no model.safetensors or model.json in %q", opt.modelDir)
	}

	var reader blobs.BlobReader
	switch {
	case opt.blobserver != "":
		u, err := url.Parse(opt.blobserver)
		if err != nil {
			return "", fmt.Errorf("parsing blobserver url %q: %w", opt.blobserver, err)
		}
		reader = &blobs.HTTPBlobReader{BlobserverURL: u}
	case strings.HasPrefix(opt.bucket, "gs://"):
		reader = &blobs.GCSBlobstore{Bucket: strings.TrimPrefix(opt.bucket, "gs://")}
	default:
		return "", fmt.Errorf("WEIGHTS_HASH needs BLOBSERVER or WEIGHTS_BUCKET (gs://<bucketName>)")
	}

	if err := os.MkdirAll(opt.modelDir, 0o755); err != nil {
		return "", fmt.Errorf("creating model directory %q: %w", opt.modelDir, err)
	}
	p := filepath.Join(opt.modelDir, opt.weightsHash+"."+opt.weightsFormat)
	if _, err := os.Stat(p); err == nil {
		log.Info("using cached weights", "path", p)
		return p, nil
	}

	fetcher := &blobs.Fetcher{
		Reader:      reader,
		MaxAttempts: 5,
		RetryDelay:  5 * time.Second,
	}
	if err := fetcher.Fetch(ctx, blobs.BlobInfo{Hash: opt.weightsHash}, p); err != nil {
		return "", fmt.Errorf("fetching weights: %w", err)
	}
	return p, nil
}
