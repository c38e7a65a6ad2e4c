package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shineum/sealpost/internal/config"
	"github.com/shineum/sealpost/internal/provider"
	"github.com/shineum/sealpost/internal/provider/graph"
	"github.com/shineum/sealpost/internal/provider/ses"
	"github.com/shineum/sealpost/internal/provider/stdout"
)

// selectProvider chooses the transport for invitation replies.
// If notify.provider is set, it takes precedence.
// Otherwise, it falls back to auto-detection (Graph, then SES, else stdout).
func selectProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Notify.Provider {
	case "ses":
		if !cfg.SESConfigured() {
			return nil, errors.New("SES provider selected but SES_REGION and SES_SENDER are required")
		}
		return newSES(ctx, cfg)

	case "graph":
		if !cfg.GraphConfigured() {
			return nil, errors.New("Graph provider selected but GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET, and GRAPH_SENDER are required")
		}
		return newGraph(cfg), nil

	case "stdout":
		slog.Info("using stdout provider")
		return stdout.New(false), nil

	case "":
		if cfg.GraphConfigured() {
			return newGraph(cfg), nil
		}
		if cfg.SESConfigured() {
			return newSES(ctx, cfg)
		}
		slog.Info("no provider configured, using stdout provider")
		return stdout.New(false), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Notify.Provider)
	}
}

func newSES(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	slog.Info("using AWS SES provider",
		"region", cfg.Notify.SES.Region,
		"sender", cfg.Notify.SES.Sender,
	)

	p, err := ses.New(ctx, ses.Config{
		Region:          cfg.Notify.SES.Region,
		AccessKeyID:     cfg.Notify.SES.AccessKeyID,
		SecretAccessKey: cfg.Notify.SES.SecretAccessKey,
		Sender:          cfg.Notify.SES.Sender,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SES provider: %w", err)
	}

	return p, nil
}

func newGraph(cfg *config.Config) provider.Provider {
	slog.Info("using Microsoft Graph provider",
		"sender", cfg.Notify.Graph.Sender,
	)

	return graph.New(graph.Config{
		TenantID:     cfg.Notify.Graph.TenantID,
		ClientID:     cfg.Notify.Graph.ClientID,
		ClientSecret: cfg.Notify.Graph.ClientSecret,
		Sender:       cfg.Notify.Graph.Sender,
	})
}
