// Package translator defines the translation-service boundary: a closed
// set of providers behind one interface, memoized through the durable
// cache and retried on transient failures.
package translator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"pdf-translator/internal/cache"
	"pdf-translator/internal/logger"
)

// Translator turns source-language text into target-language text.
// Implementations must be safe for concurrent use.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// maxAttempts bounds retries of retryable provider failures.
const maxAttempts = 3

// Cached wraps a provider with the durable memo store: hit → return,
// miss → provider call (retried while retryable) → store. Concurrent
// translations of the same text are tolerated; the last store wins.
type Cached struct {
	provider    Translator
	cache       *cache.Cache
	ignoreCache bool
}

// NewCached builds the caching wrapper. A nil cache disables memoization.
func NewCached(provider Translator, c *cache.Cache, ignoreCache bool) *Cached {
	return &Cached{provider: provider, cache: c, ignoreCache: ignoreCache}
}

// Translate implements Translator.
func (t *Cached) Translate(ctx context.Context, text string) (string, error) {
	if t.cache != nil && !t.ignoreCache {
		if cached, ok := t.cache.Get(text); ok {
			return cached, nil
		}
	}

	var out string
	op := func() error {
		s, err := t.provider.Translate(ctx, text)
		if err != nil {
			if IsRetryable(err) {
				logger.Debug("retryable translation failure", zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		out = s
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}

	if t.cache != nil {
		t.cache.Set(text, out)
	}
	return out, nil
}
