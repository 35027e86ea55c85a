// Package syncengine replays queued write operations against the upstream once
// it is reachable again.
package syncengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/TechinMama/RecipeForADisaster/internal/datastore/entities"
	"github.com/TechinMama/RecipeForADisaster/internal/errors"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
	"github.com/TechinMama/RecipeForADisaster/internal/observability/metrics"
)

// OperationStore is the queue the engine drains.
type OperationStore interface {
	ListPendingOperations(ctx context.Context) ([]entities.PendingOperation, error)
	RemoveOperation(ctx context.Context, id uint) error
	CountPendingOperations(ctx context.Context) int
}

// HTTPDoer performs the replayed requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Notifier receives the aggregate result of a drain that replayed anything.
type Notifier interface {
	SyncCompleted(result Result)
}

// OperationResult is the outcome of replaying one operation.
type OperationResult struct {
	Operation entities.PendingOperation `json:"operation"`
	Success   bool                      `json:"success"`
	Result    json.RawMessage           `json:"result,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// Result aggregates one drain.
type Result struct {
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Total      int               `json:"total"`
	Results    []OperationResult `json:"results,omitempty"`
}

// Engine drains the pending queue. Overlapping calls are not deduplicated;
// callers serialize triggers.
type Engine struct {
	store    OperationStore
	client   HTTPDoer
	notifier Notifier
	metrics  *metrics.Metrics
	log      logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine.
func New(store OperationStore, client HTTPDoer, log logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	e := &Engine{
		store:  store,
		client: client,
		log:    log.Module("syncengine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetNotifier replaces the completion notifier.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// SyncPendingOperations replays every queued operation once, oldest timestamp
// first and strictly one at a time. Each operation is removed after its
// attempt whatever the outcome. Clients are notified when anything ran.
func (e *Engine) SyncPendingOperations(ctx context.Context) Result {
	ops, err := e.store.ListPendingOperations(ctx)
	if err != nil {
		e.log.Error("loading pending operations failed", logger.Error(err))
		return Result{}
	}
	if len(ops) == 0 {
		e.log.Debug("no pending operations to sync")
		return Result{}
	}

	sort.SliceStable(ops, func(a, b int) bool {
		return ops[a].Timestamp < ops[b].Timestamp
	})
	e.log.Info("syncing pending operations", logger.Int("count", len(ops)))

	result := Result{Total: len(ops), Results: make([]OperationResult, 0, len(ops))}
	for i := range ops {
		op := ops[i]
		res := e.replay(ctx, &op)
		if res.Success {
			result.Successful++
		} else {
			result.Failed++
			e.log.Warn("operation replay failed",
				logger.Uint64("id", uint64(op.ID)),
				logger.String("operation", op.Operation),
				logger.String("error", res.Error))
		}
		result.Results = append(result.Results, res)

		if err := e.store.RemoveOperation(context.WithoutCancel(ctx), op.ID); err != nil {
			e.log.Error("removing operation from queue failed",
				logger.Uint64("id", uint64(op.ID)),
				logger.Error(err))
		}
	}

	e.metrics.RecordSync(result.Successful, result.Failed)
	e.metrics.SetPending(e.store.CountPendingOperations(ctx))
	e.log.Info("sync completed",
		logger.Int("successful", result.Successful),
		logger.Int("failed", result.Failed),
		logger.Int("total", result.Total))

	if e.notifier != nil {
		e.notifier.SyncCompleted(result)
	}
	return result
}

// replay sends one operation. Panics and request construction errors count
// as failures like any HTTP error.
func (e *Engine) replay(ctx context.Context, op *entities.PendingOperation) (res OperationResult) {
	res.Operation = *op
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Result = nil
			res.Error = fmt.Sprintf("replay panicked: %v", r)
		}
	}()

	req, err := BuildRequest(ctx, op)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	resp, err := e.client.Do(req)
	if err != nil {
		res.Error = errors.New(err).
			Component("syncengine").
			Category(errors.CategoryNetwork).
			Context("operation", op.Operation).
			Build().Error()
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		res.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		return res
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if len(bytes.TrimSpace(body)) == 0 {
		res.Success = true
		return res
	}
	if !json.Valid(body) {
		res.Error = errors.Newf("response is not JSON").
			Component("syncengine").
			Category(errors.CategoryParse).
			Context("status", resp.StatusCode).
			Build().Error()
		return res
	}
	res.Success = true
	res.Result = json.RawMessage(body)
	return res
}

// BuildRequest reconstructs the original request from a stored operation.
func BuildRequest(ctx context.Context, op *entities.PendingOperation) (*http.Request, error) {
	if op.URL == "" || op.Method == "" {
		return nil, malformed(op, "missing url or method")
	}
	var body io.Reader = http.NoBody
	if op.Body != nil && *op.Body != "" {
		body = strings.NewReader(*op.Body)
	}
	req, err := http.NewRequestWithContext(ctx, op.Method, op.URL, body)
	if err != nil {
		return nil, malformed(op, err.Error())
	}
	for name, value := range op.Headers {
		if name == "" || strings.ContainsAny(name, " \r\n:") || strings.ContainsAny(value, "\r\n") {
			return nil, malformed(op, "invalid header "+name)
		}
		if strings.EqualFold(name, "content-length") || strings.EqualFold(name, "host") {
			continue
		}
		req.Header.Set(name, value)
	}
	return req, nil
}

func malformed(op *entities.PendingOperation, reason string) error {
	return errors.Newf("malformed queued operation: %s", reason).
		Component("syncengine").
		Category(errors.CategoryMalformedOperation).
		Context("id", op.ID).
		Build()
}
