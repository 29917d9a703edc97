package api

import (
	"context"
	"net/http"

	"github.com/jabez4jc/openalgo-gsheets/internal/alert"
	"github.com/jabez4jc/openalgo-gsheets/internal/engine"
	"github.com/jabez4jc/openalgo-gsheets/internal/market"
	"github.com/jabez4jc/openalgo-gsheets/internal/registry"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
)

// LatestQuotes is satisfied by either ingestion runner.
type LatestQuotes interface {
	LatestQuotes() map[string]market.Quote
}

// RegisterRoutes wires the read-only status API: it serves operators while
// the dashboard runs but never feeds back into the reconciliation loop.
func RegisterRoutes(h *server.Hertz, table *registry.Table, state *engine.StateStore, alerts *alert.Service, latest LatestQuotes) {
	h.GET("/healthz", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})

	h.GET("/api/v1/instruments", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]any{
			"count":    table.Len(),
			"bindings": table.All(),
		})
	})

	h.GET("/api/v1/quotes/latest", func(_ context.Context, c *app.RequestContext) {
		resp := map[string]any{
			"last_price": state.Snapshot(),
		}
		if latest != nil {
			resp["quotes"] = latest.LatestQuotes()
		}
		c.JSON(http.StatusOK, resp)
	})

	h.GET("/api/v1/alerts/recent", func(_ context.Context, c *app.RequestContext) {
		if alerts == nil {
			c.JSON(http.StatusOK, map[string]any{"alerts": []alert.Record{}})
			return
		}
		c.JSON(http.StatusOK, map[string]any{"alerts": alerts.Recent()})
	})
}
