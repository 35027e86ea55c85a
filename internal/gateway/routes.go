package gateway

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/TechinMama/RecipeForADisaster/internal/bridge"
	"github.com/TechinMama/RecipeForADisaster/internal/errors"
	"github.com/TechinMama/RecipeForADisaster/internal/interceptor"
	"github.com/TechinMama/RecipeForADisaster/internal/logger"
)

// controlPrefix holds the gateway's own routes; everything else is intercepted.
const controlPrefix = "/_gateway"

// StatusResponse is served by GET /_gateway/status.
type StatusResponse struct {
	bridge.StatusReply
	Syncing   bool     `json:"syncing"`
	Status    string   `json:"status"`
	Visible   bool     `json:"visible"`
	CanSync   bool     `json:"canSync"`
	Caches    []string `json:"caches"`
	Clients   int      `json:"clients"`
	CheckedAt string   `json:"checkedAt"`
}

func (g *Gateway) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	ctl := e.Group(controlPrefix)
	ctl.GET("/status", g.handleStatus)
	ctl.POST("/sync", g.handleSync, middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(1),
			Burst:     3,
			ExpiresIn: time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "cannot identify client"})
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many sync requests, please wait before trying again",
			})
		},
	}))
	e.GET(g.settings.Bridge.WSPath, g.hub.ServeWS)
	if g.metrics != nil {
		e.GET(g.settings.Metrics.Path, echo.WrapHandler(g.metrics.Handler()))
	}

	e.Any("/*", g.handleIntercept)
	return e
}

// handleIntercept hands every non-control request to the interceptor.
func (g *Gateway) handleIntercept(c echo.Context) error {
	resp := g.interceptor.Handle(c.Request())
	if err := interceptor.WriteResponse(c.Response(), resp); err != nil {
		g.log.Debug("writing response to client failed",
			logger.String("path", c.Request().URL.Path),
			logger.Error(err))
	}
	return nil
}

func (g *Gateway) handleStatus(c echo.Context) error {
	ctx := c.Request().Context()
	ind := g.bridge.Indicator(ctx)
	return c.JSON(http.StatusOK, StatusResponse{
		StatusReply: bridge.StatusReply{Offline: !ind.Online, PendingOperations: ind.Pending},
		Syncing:     ind.Syncing,
		Status:      bridge.StatusText(ind),
		Visible:     ind.Visible(),
		CanSync:     ind.CanSyncManually(),
		Caches:      g.caches.Keys(),
		Clients:     g.hub.ClientCount(),
		CheckedAt:   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSync starts a manual drain; the outcome arrives over the websocket.
func (g *Gateway) handleSync(c echo.Context) error {
	err := g.bridge.TriggerSync()
	switch {
	case err == nil:
		return c.JSON(http.StatusAccepted, map[string]any{"accepted": true})
	case errors.Is(err, bridge.ErrRateLimited):
		return c.JSON(http.StatusTooManyRequests, map[string]any{"accepted": false, "error": err.Error()})
	default:
		return c.JSON(http.StatusConflict, map[string]any{"accepted": false, "error": err.Error()})
	}
}
