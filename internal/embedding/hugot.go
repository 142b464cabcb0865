package embedding

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

type HugotConfig struct {
	// ModelPath is a local directory holding an ONNX sentence-transformer export.
	ModelPath string
	// ModelName is downloaded into ModelDir when ModelPath does not exist.
	ModelName  string
	ModelDir   string
	Dimensions int
	MaxInput   int
}

// Hugot runs a feature-extraction model in process. The model is loaded on the
// first call and kept until Close.
type Hugot struct {
	cfg HugotConfig

	mu       sync.Mutex
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
}

func NewHugot(cfg HugotConfig) *Hugot {
	return &Hugot{cfg: cfg}
}

func (h *Hugot) load() (*pipelines.FeatureExtractionPipeline, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pipeline != nil {
		return h.pipeline, nil
	}

	modelPath, err := h.prepareModel()
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("create hugot session failed: %w", err)
	}
	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "orgrag-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("create hugot pipeline failed: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("create hugot pipeline failed: %w", err)
	}

	h.session = session
	h.pipeline = pipeline
	return pipeline, nil
}

func (h *Hugot) prepareModel() (string, error) {
	if h.cfg.ModelPath != "" {
		if _, err := os.Stat(h.cfg.ModelPath); err == nil {
			return h.cfg.ModelPath, nil
		}
	}
	if h.cfg.ModelName == "" {
		return "", fmt.Errorf("hugot model path %q not found and no model name to download", h.cfg.ModelPath)
	}
	dir := h.cfg.ModelDir
	if dir == "" {
		dir = "./models"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory failed: %w", err)
	}
	options := hugot.NewDownloadOptions()
	options.OnnxFilePath = "onnx/model.onnx"
	path, err := hugot.DownloadModel(h.cfg.ModelName, dir, options)
	if err != nil {
		return "", fmt.Errorf("download model failed: %w", err)
	}
	return path, nil
}

func (h *Hugot) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := h.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (h *Hugot) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := checkLengths(texts, h.cfg.MaxInput); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, wrapFailure("hugot embed", err)
	}
	pipeline, err := h.load()
	if err != nil {
		return nil, wrapFailure("hugot load", err)
	}

	result, err := pipeline.RunPipeline(texts)
	if err != nil {
		return nil, wrapFailure("hugot embed", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, failure("hugot returned %d vectors for %d inputs", len(result.Embeddings), len(texts))
	}
	for _, v := range result.Embeddings {
		Normalize(v)
	}
	if err := checkDimensions(result.Embeddings, h.cfg.Dimensions); err != nil {
		return nil, err
	}
	return result.Embeddings, nil
}

func (h *Hugot) Dimensions() int     { return h.cfg.Dimensions }
func (h *Hugot) ModelName() string   { return h.cfg.ModelName }
func (h *Hugot) MaxInputLength() int { return h.cfg.MaxInput }

// Close releases the model session. A later call loads it again.
func (h *Hugot) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return nil
	}
	err := h.session.Destroy()
	h.session = nil
	h.pipeline = nil
	return err
}
