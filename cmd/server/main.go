package main

import (
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"

	"stock-ai-analyzer/internal/analysis"
	"stock-ai-analyzer/internal/api"
	"stock-ai-analyzer/internal/config"
	"stock-ai-analyzer/internal/httpx"
	"stock-ai-analyzer/internal/instrument"
	"stock-ai-analyzer/internal/llm"
	"stock-ai-analyzer/internal/market"
	"stock-ai-analyzer/internal/store"
)

func main() {
	cfg, err := config.Load("configs/app.yaml")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	h := server.Default(server.WithHostPorts(addr))

	st, err := store.Open(cfg.Store.Sqlite.Path)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("store close error: %v", err)
		}
	}()

	resolver := instrument.NewResolver(instrument.Tables{
		IndexCodes:     cfg.Resolver.IndexCodes,
		IndexPrefixes:  cfg.Resolver.IndexPrefixes,
		FundPrefixes:   cfg.Resolver.FundPrefixes,
		ASharePrefixes: cfg.Resolver.ASharePrefixes,
	})

	httpClient := httpx.New(time.Duration(cfg.Market.HTTPTimeoutMs) * time.Millisecond)
	adapters := buildAdapters(cfg.Market.Sources, httpClient)
	if len(adapters) == 0 {
		log.Fatalf("no market sources enabled")
	}
	fetcher := market.NewFetcher(adapters...)

	client, err := llm.New(llm.Config{
		Model:      cfg.LLM.Model,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		ByAzure:    cfg.LLM.ByAzure,
		APIVersion: cfg.LLM.APIVersion,
		Timeout:    time.Duration(cfg.LLM.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("llm error: %v", err)
	}

	orch := analysis.New(resolver, fetcher, client, st, analysis.Config{
		StreamTimeout: time.Duration(cfg.Analysis.StreamTimeoutSec) * time.Second,
	})

	api.RegisterRoutes(h, orch, resolver, fetcher, st)

	log.Printf("server starting on %s (model=%s sources=%d log.level=%s)", addr, cfg.LLM.Model, len(adapters), cfg.Log.Level)
	if err := h.Run(); err != nil {
		log.Fatalf("server run error: %v", err)
	}
}

func buildAdapters(sources []config.SourceConfig, client *httpx.Client) []market.Adapter {
	out := make([]market.Adapter, 0, len(sources))
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		timeout := time.Duration(src.TimeoutMs) * time.Millisecond
		var a market.Adapter
		switch src.Name {
		case "eastmoney":
			a = market.NewEastmoneyAdapter(client, src.Priority, timeout)
		case "sina":
			a = market.NewSinaAdapter(client, src.Priority, timeout)
		case "tencent":
			a = market.NewTencentAdapter(client, src.Priority, timeout)
		default:
			log.Printf("unknown market source %q, skipping", src.Name)
			continue
		}
		if src.MinIntervalMs > 0 {
			a = market.Limit(a, time.Duration(src.MinIntervalMs)*time.Millisecond)
		}
		out = append(out, a)
	}
	return out
}
