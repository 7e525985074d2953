package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"k8s.io/klog/v2"

	"k8s.io/examples/AI/graphscore/pkg/serving"
)

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	serverAddr := "127.0.0.1:9876"
	inputs := `[[1, 0], [0, 1]]`
	timeout := 10 * time.Second

	flag.StringVar(&serverAddr, "server", serverAddr, "address of the graphscore gRPC server")
	flag.StringVar(&inputs, "inputs", inputs, "node features as a JSON array, [nodes][features] or [batch][nodes][features]")
	flag.DurationVar(&timeout, "timeout", timeout, "request timeout")

	klog.InitFlags(nil)
	flag.Parse()

	log := klog.FromContext(ctx)

	var values any
	if err := json.Unmarshal([]byte(inputs), &values); err != nil {
		return fmt.Errorf("parsing inputs: %w", err)
	}
	request, err := serving.NewScoreRequest(values)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	conn, err := grpc.NewClient(serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to server %q: %w", serverAddr, err)
	}
	defer conn.Close()
	client := serving.NewScorerClient(conn)

	log.Info("scoring", "server", serverAddr)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	response, err := client.Score(ctx, request)
	if err != nil {
		return fmt.Errorf("failed to score: %w", err)
	}

	b, err := json.Marshal(response.AsSlice())
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	fmt.Println(string(b))
	return nil
}
