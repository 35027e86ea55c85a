package interceptor

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/TechinMama/RecipeForADisaster/internal/errors"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
	"github.com/TechinMama/RecipeForADisaster/internal/observability/metrics"
)

// Hook runs after a successful API GET whose path matches one of Patterns.
// A pattern ending in "/*" matches the prefix and anything below it; other
// patterns use path.Match. Hook errors are logged and never reach the caller.
type Hook struct {
	Name     string
	Patterns []string
	Run      func(ctx context.Context, req *http.Request, body []byte) error
}

// Matches reports whether p is covered by the hook's patterns.
func (h Hook) Matches(p string) bool {
	for _, pattern := range h.Patterns {
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if strings.HasPrefix(p, prefix+"/") {
				return true
			}
			continue
		}
		if ok, err := path.Match(pattern, p); err == nil && ok {
			return true
		}
	}
	return false
}

// EntityWriter stores mirrored entities.
type EntityWriter interface {
	UpsertCachedEntities(ctx context.Context, items []json.RawMessage) error
}

// MirrorHook copies the recipes carried by a response into the local store so
// they can be served while offline.
func MirrorHook(store EntityWriter, patterns []string, m *metrics.Metrics, log logger.Logger) Hook {
	if log == nil {
		log = logger.Discard()
	}
	return Hook{
		Name:     "recipe-mirror",
		Patterns: patterns,
		Run: func(ctx context.Context, req *http.Request, body []byte) error {
			items, err := ExtractEntities(body)
			if err != nil {
				return errors.New(err).
					Component("interceptor").
					Category(errors.CategoryParse).
					Context("path", req.URL.Path).
					Build()
			}
			if items == nil {
				log.Debug("response carries no recipe list", logger.String("path", req.URL.Path))
				return nil
			}
			if err := store.UpsertCachedEntities(ctx, items); err != nil {
				return err
			}
			m.RecordMirrored(len(items))
			return nil
		},
	}
}

// ExtractEntities finds the entity list in a response body: data.recipes when
// present, else a top-level array. Bodies with neither yield nil.
func ExtractEntities(body []byte) ([]json.RawMessage, error) {
	v, err := jason.NewValueFromBytes(body)
	if err != nil {
		return nil, err
	}

	var list []*jason.Value
	if obj, err := v.Object(); err == nil {
		recipes, err := obj.GetValueArray("data", "recipes")
		if err != nil {
			return nil, nil
		}
		list = recipes
	} else if arr, err := v.Array(); err == nil {
		list = arr
	} else {
		return nil, nil
	}

	items := make([]json.RawMessage, 0, len(list))
	for _, item := range list {
		raw, err := item.Marshal()
		if err != nil {
			return nil, err
		}
		items = append(items, raw)
	}
	return items, nil
}
