package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/http1/resp"

	"stock-ai-analyzer/internal/analysis"
	"stock-ai-analyzer/internal/instrument"
	"stock-ai-analyzer/internal/llm"
	"stock-ai-analyzer/internal/market"
	"stock-ai-analyzer/internal/prompt"
	"stock-ai-analyzer/internal/store"
)

type AnalyzeRequest struct {
	Code       string `json:"code"`
	Kind       string `json:"kind"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

// streamEvent is one SSE payload line of the analyze stream.
type streamEvent struct {
	Text  string     `json:"text,omitempty"`
	Usage *usageView `json:"usage,omitempty"`
	Model string     `json:"model,omitempty"`
	Done  bool       `json:"done,omitempty"`
	Error string     `json:"error,omitempty"`
	Stage string     `json:"stage,omitempty"`
}

type usageView struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func RegisterRoutes(h *server.Hertz, orch *analysis.Orchestrator, resolver *instrument.Resolver, fetcher *market.Fetcher, st *store.Store) {
	h.GET("/healthz", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})

	h.POST("/api/v1/analyze", func(ctx context.Context, c *app.RequestContext) {
		var req AnalyzeRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json body"})
			return
		}
		kind, err := prompt.ParseKind(req.Kind)
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}

		res, err := orch.Analyze(ctx, analysis.Request{
			Code:    req.Code,
			Kind:    kind,
			Timeout: time.Duration(req.TimeoutSec) * time.Second,
		})
		if err != nil {
			writeStageError(c, err)
			return
		}
		defer res.Stream.Close()

		streamAnalysis(c, res)
	})

	h.GET("/api/v1/quote/:code", func(ctx context.Context, c *app.RequestContext) {
		code, err := resolver.Resolve(c.Param("code"))
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		snap, attempts, err := fetcher.Fetch(ctx, code)
		if err != nil {
			c.JSON(http.StatusBadGateway, map[string]any{
				"ok":       false,
				"error":    err.Error(),
				"attempts": attempts,
			})
			return
		}
		c.JSON(http.StatusOK, map[string]any{
			"ok":       true,
			"quote":    snap,
			"attempts": attempts,
		})
	})

	h.GET("/api/v1/usage/stats", func(_ context.Context, c *app.RequestContext) {
		days, _ := strconv.Atoi(c.Query("days"))
		stats, err := st.UsageStats(days)
		if err != nil {
			c.JSON(http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "stats": stats})
	})

	h.GET("/api/v1/analyses", func(_ context.Context, c *app.RequestContext) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		records, err := st.RecentAnalyses(limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "analyses": records})
	})
}

// streamAnalysis switches the response to SSE over chunked transfer and
// relays the analysis stream.
func streamAnalysis(c *app.RequestContext, res *analysis.Result) {
	c.SetStatusCode(http.StatusOK)
	c.Response.Header.Set("Content-Type", "text/event-stream; charset=utf-8")
	c.Response.Header.Set("Cache-Control", "no-cache")
	c.Response.HijackWriter(resp.NewChunkedBodyWriter(&c.Response, c.GetWriter()))

	for {
		ch, err := res.Stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			// partial text already written stays visible; terminate with
			// an explicit error marker instead of silently stopping
			usage := res.Stream.Usage()
			writeEvent(c, streamEvent{
				Error: err.Error(),
				Stage: stageOf(err),
				Usage: toUsageView(&usage),
			})
			return
		}
		ev := streamEvent{Text: ch.Delta}
		if ch.Done {
			ev = streamEvent{Done: true, Model: res.Model, Usage: toUsageView(ch.Usage)}
		}
		if !writeEvent(c, ev) {
			return
		}
	}
}

// writeStageError maps pipeline failures to status codes while keeping the
// stage and per-source detail in the body.
func writeStageError(c *app.RequestContext, err error) {
	status := http.StatusInternalServerError
	body := map[string]any{"ok": false, "error": err.Error(), "stage": stageOf(err)}

	var resErr *instrument.ResolutionError
	if errors.As(err, &resErr) {
		status = http.StatusBadRequest
		body["reason"] = resErr.Reason
	}
	var fetchErr *market.FetchError
	if errors.As(err, &fetchErr) {
		status = http.StatusBadGateway
		body["attempts"] = fetchErr.Attempts
	}
	var serr *analysis.StageError
	if errors.As(err, &serr) && serr.Stage == analysis.StageStreamingLLM {
		status = http.StatusBadGateway
	}
	c.JSON(status, body)
}

func stageOf(err error) string {
	var serr *analysis.StageError
	if errors.As(err, &serr) {
		return string(serr.Stage)
	}
	return ""
}

func writeEvent(c *app.RequestContext, ev streamEvent) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("marshal stream event error: %v", err)
		return false
	}
	if _, err := c.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
		return false
	}
	if err := c.Flush(); err != nil {
		return false
	}
	return true
}

func toUsageView(u *llm.Usage) *usageView {
	if u == nil {
		return nil
	}
	return &usageView{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
}
