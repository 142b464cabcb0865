package embedding

import (
	"context"

	"orgrag/internal/ai"
)

// OpenAI embeds through an OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	client   *ai.OpenAICompatibleClient
	cfg      ai.EmbeddingConfig
	maxInput int
}

func NewOpenAI(client *ai.OpenAICompatibleClient, cfg ai.EmbeddingConfig, maxInput int) *OpenAI {
	return &OpenAI{client: client, cfg: cfg, maxInput: maxInput}
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := checkLengths(texts, o.maxInput); err != nil {
		return nil, err
	}
	vectors, err := o.client.EmbedBatch(ctx, o.cfg, texts)
	if err != nil {
		return nil, wrapFailure("openai embed", err)
	}
	if err := checkDimensions(vectors, o.cfg.Dimensions); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (o *OpenAI) Dimensions() int     { return o.cfg.Dimensions }
func (o *OpenAI) ModelName() string   { return o.cfg.Model }
func (o *OpenAI) MaxInputLength() int { return o.maxInput }
func (o *OpenAI) Close() error        { return nil }
