package encoder

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
)

// ONNXConfig points at an exported sentence-embedding model directory
// (model.onnx plus tokenizer.json).
type ONNXConfig struct {
	Name        string
	ModelPath   string
	LibraryPath string
	// Dimension is probed from the model when zero.
	Dimension int
}

// ONNX embeds sentences with a feature-extraction model run through ONNX
// Runtime. It fills the universal sentence encoder slot.
type ONNX struct {
	name     string
	dim      int
	mu       sync.RWMutex
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
}

func NewONNX(cfg ONNXConfig) (*ONNX, error) {
	sessionOpts := []options.WithOption{
		options.WithIntraOpNumThreads(runtime.NumCPU()),
	}
	if cfg.LibraryPath != "" {
		sessionOpts = append(sessionOpts, options.WithOnnxLibraryPath(cfg.LibraryPath))
	}

	session, err := hugot.NewORTSession(sessionOpts...)
	if err != nil {
		return nil, fmt.Errorf("create ORT session: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = "use"
	}
	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: cfg.ModelPath,
		Name:      name,
	})
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	e := &ONNX{name: name, dim: cfg.Dimension, session: session, pipeline: pipeline}
	if e.dim == 0 {
		probe, err := e.run([]string{"probe"})
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("probe embedding dimension: %w", err)
		}
		e.dim = len(probe[0])
	}
	return e, nil
}

func (e *ONNX) Name() string   { return e.name }
func (e *ONNX) Dimension() int { return e.dim }

func (e *ONNX) Vector(ctx context.Context, sentence string) ([]float32, error) {
	out, err := e.Vectors(ctx, []string{sentence})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *ONNX) Vectors(ctx context.Context, sentences []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(sentences) == 0 {
		return [][]float32{}, nil
	}
	out, err := e.run(sentences)
	if err != nil {
		return nil, err
	}
	if e.dim != 0 {
		for i, v := range out {
			if len(v) != e.dim {
				return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), e.dim)
			}
		}
	}
	return out, nil
}

func (e *ONNX) run(sentences []string) ([][]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pipeline == nil {
		return nil, fmt.Errorf("pipeline not initialized")
	}
	output, err := e.pipeline.RunPipeline(sentences)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	if len(output.Embeddings) != len(sentences) {
		return nil, fmt.Errorf("inference returned %d embeddings for %d sentences", len(output.Embeddings), len(sentences))
	}
	return output.Embeddings, nil
}

func (e *ONNX) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	e.pipeline = nil
	return nil
}
