// Package weights loads frozen model parameters from disk.
package weights

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"k8s.io/examples/AI/graphscore/pkg/engine"
)

// Params maps parameter names (as in a PyTorch state dict) to their values.
type Params map[string]*engine.Tensor[float32]

// Names returns the parameter names in sorted order.
func (p Params) Names() []string {
	return slices.Sorted(maps.Keys(p))
}

// NumValues is the total number of scalars across all parameters.
func (p Params) NumValues() int {
	n := 0
	for _, t := range p {
		n += t.Size()
	}
	return n
}

// LoadFile reads parameters from path, choosing the format by extension:
// ".safetensors" or ".json".
func LoadFile(ctx context.Context, path string) (Params, error) {
	log := klog.FromContext(ctx)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening weights file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("getting size of %q: %w", path, err)
	}

	startedAt := time.Now()
	var params Params
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".safetensors":
		params, err = ReadSafetensors(f, stat.Size())
	case ".json":
		params, err = ReadJSON(f)
	default:
		return nil, fmt.Errorf("unknown weights format %q for %q", ext, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading weights from %q: %w", path, err)
	}

	log.Info("loaded weights", "path", path, "parameters", len(params),
		"values", humanize.Comma(int64(params.NumValues())), "size", humanize.Bytes(uint64(stat.Size())),
		"duration", time.Since(startedAt))
	return params, nil
}
