package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bblohar/MyBook-project/pkg/utils"
	"go.uber.org/zap"
)

// Options configures New.
type Options struct {
	Provider   string
	ModelPath  string
	VocabPath  string
	Dimensions int
	MaxTokens  int
	CacheSize  int
	Normalize  bool
	Timeout    time.Duration
}

// Provider wraps a backend Embedder with input validation, a per-call timeout,
// optional L2 normalization and an LRU cache. A Provider whose backend failed
// to initialize stays unavailable: every call returns ErrProviderUnavailable.
type Provider struct {
	backend    Embedder
	initErr    error
	dimensions int
	timeout    time.Duration
	normalize  bool
	cache      *EmbeddingCache
}

// New builds the backend named by opts.Provider. It never returns nil; if the
// backend cannot be created the returned Provider is unavailable and the cause
// is logged and available through Err.
func New(opts Options, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend, err := newBackend(opts)
	if err != nil {
		logger.Error("embedding provider failed to initialize",
			zap.String("provider", opts.Provider),
			zap.String("model_path", opts.ModelPath),
			zap.Error(err))
		return Unavailable(opts.Dimensions, err)
	}
	logger.Info("embedding provider ready",
		zap.String("provider", opts.Provider),
		zap.Int("dimensions", backend.Dimensions()))
	return NewProvider(backend, opts.Timeout, opts.CacheSize, opts.Normalize)
}

func newBackend(opts Options) (Embedder, error) {
	switch opts.Provider {
	case ProviderHash:
		return NewHashEmbedder(opts.Dimensions), nil
	case ProviderONNX, "":
		var tok Tokenizer = &SimpleTokenizer{}
		if opts.VocabPath != "" {
			wp, err := LoadWordPieceTokenizer(opts.VocabPath)
			if err != nil {
				return nil, err
			}
			tok = wp
		}
		return NewONNXEmbedder(opts.ModelPath, opts.Dimensions, opts.MaxTokens, tok)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: onnx, hash)", opts.Provider)
	}
}

// NewProvider wraps an initialized backend. A zero timeout disables the deadline
// and a non-positive cacheSize disables caching.
func NewProvider(backend Embedder, timeout time.Duration, cacheSize int, normalize bool) *Provider {
	p := &Provider{
		backend:    backend,
		dimensions: backend.Dimensions(),
		timeout:    timeout,
		normalize:  normalize,
	}
	if cacheSize > 0 {
		p.cache = NewEmbeddingCache(cacheSize)
	}
	return p
}

// Unavailable returns a Provider that fails every call with ErrProviderUnavailable.
func Unavailable(dimensions int, cause error) *Provider {
	if cause == nil {
		cause = errors.New("not initialized")
	}
	return &Provider{initErr: cause, dimensions: dimensions}
}

// Available reports whether the backend initialized.
func (p *Provider) Available() bool {
	return p.initErr == nil
}

// Err returns the initialization failure, or nil.
func (p *Provider) Err() error {
	return p.initErr
}

// Embed returns the embedding for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if p.initErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, p.initErr)
	}
	if p.cache != nil {
		if cached, ok := p.cache.Get(text); ok {
			return cached, nil
		}
	}
	out, err := p.call(ctx, func(ctx context.Context) ([][]float32, error) {
		v, err := p.backend.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return [][]float32{v}, nil
	})
	if err != nil {
		return nil, err
	}
	vec := p.finish(out[0])
	if p.cache != nil {
		p.cache.Set(text, vec)
	}
	return vec, nil
}

// EmbedBatch embeds texts in order. Any empty text fails the whole batch with ErrEmptyText.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("text %d: %w", i, ErrEmptyText)
		}
	}
	if p.initErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, p.initErr)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out, err := p.call(ctx, func(ctx context.Context) ([][]float32, error) {
		return p.backend.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("%w: backend returned %d embeddings for %d texts", ErrProviderUnavailable, len(out), len(texts))
	}
	for i := range out {
		out[i] = p.finish(out[i])
		if p.cache != nil {
			p.cache.Set(texts[i], out[i])
		}
	}
	return out, nil
}

// call runs fn under the provider timeout. Backends such as ONNX Runtime do not
// observe ctx, so the call runs on its own goroutine and is abandoned on deadline.
func (p *Provider) call(ctx context.Context, fn func(context.Context) ([][]float32, error)) ([][]float32, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	type result struct {
		vecs [][]float32
		err  error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, ErrEmptyText) || errors.Is(r.err, ErrProviderUnavailable) {
				return nil, r.err
			}
			return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, r.err)
		}
		return r.vecs, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, ctx.Err())
	}
}

func (p *Provider) finish(v []float32) []float32 {
	if p.normalize {
		utils.NormalizeL2(v)
	}
	return v
}

// Dimensions returns the embedding dimension.
func (p *Provider) Dimensions() int {
	return p.dimensions
}

// Close releases the backend.
func (p *Provider) Close() error {
	if p.backend == nil {
		return nil
	}
	return p.backend.Close()
}
