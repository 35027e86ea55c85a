package interceptor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/TechinMama/RecipeForADisaster/internal/logger"
)

// Precache fetches every path and stores the responses in the static cache.
// It is all or nothing: when any fetch fails or is not ok, nothing is stored.
func (i *Interceptor) Precache(ctx context.Context, paths []string) error {
	type fetched struct {
		key  *http.Request
		resp *http.Response
	}
	results := make([]fetched, 0, len(paths))
	defer func() {
		for _, f := range results {
			_ = f.resp.Body.Close()
		}
	}()

	for _, p := range paths {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p, http.NoBody)
		if err != nil {
			return fmt.Errorf("precache %s: %w", p, err)
		}
		resp, err := i.fetch(req, nil)
		if err != nil {
			return fmt.Errorf("precache %s: %w", p, err)
		}
		results = append(results, fetched{key: i.cacheKeyRequest(req), resp: resp})
		if !isOK(resp.StatusCode) {
			return fmt.Errorf("precache %s: upstream returned %d", p, resp.StatusCode)
		}
	}

	name := i.settings.Cache.StaticCacheName()
	for _, f := range results {
		if err := i.caches.Put(name, f.key, f.resp); err != nil {
			return fmt.Errorf("precache %s: %w", f.key.URL.Path, err)
		}
	}
	i.log.Info("static assets precached", logger.Int("count", len(results)), logger.String("cache", name))
	return nil
}
