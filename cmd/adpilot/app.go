package main

import (
	"context"
	"fmt"
	"log"

	"github.com/adpilot-bot/adpilot/config"
	"github.com/adpilot-bot/adpilot/internal/action"
	"github.com/adpilot-bot/adpilot/internal/chat"
	"github.com/adpilot-bot/adpilot/internal/convo"
	"github.com/adpilot-bot/adpilot/internal/core"
	"github.com/adpilot-bot/adpilot/internal/direct"
	"github.com/adpilot-bot/adpilot/internal/journal"
	"github.com/adpilot-bot/adpilot/internal/llm"
	"github.com/adpilot-bot/adpilot/internal/resolver"
	"github.com/adpilot-bot/adpilot/internal/store"
)

// app bundles the long-lived collaborators shared by the commands.
type app struct {
	cfg      *config.Config
	store    *store.Store
	platform direct.Client
	llm      llm.Provider
	journal  *journal.Journal
	actions  *action.Manager
	orch     *core.Orchestrator
}

// buildApp wires the core object graph. transport may be nil for
// one-shot commands that should not reach the chat.
func buildApp(ctx context.Context, cfg *config.Config, transport chat.Transport, logger *log.Logger) (*app, error) {
	if err := cfg.LLM.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Direct.Validate(); err != nil {
		return nil, err
	}

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return nil, err
	}
	st, err := store.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	platform, err := direct.NewHTTPClient(cfg.Direct)
	if err != nil {
		return nil, err
	}
	provider, err := llm.NewOpenAIProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	jnl, err := journal.New(cfg.General.JournalDir)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	convos := convo.New(st, provider, jnl, cfg.Policy, log.New(log.Writer(), "[CONVO] ", log.LstdFlags))
	actions := action.New(st, platform, jnl, cfg.Policy.ActionTTL, log.New(log.Writer(), "[ACTION] ", log.LstdFlags))
	res := resolver.New(st, cfg.Policy, log.New(log.Writer(), "[RESOLVE] ", log.LstdFlags))

	orch := core.New(core.Deps{
		Store:     st,
		Convos:    convos,
		Actions:   actions,
		Resolver:  res,
		LLM:       provider,
		Platform:  platform,
		Transport: transport,
		Journal:   jnl,
		Logger:    logger,
	}, cfg.Policy, cfg.Schedule.ChatID)

	return &app{
		cfg:      cfg,
		store:    st,
		platform: platform,
		llm:      provider,
		journal:  jnl,
		actions:  actions,
		orch:     orch,
	}, nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}
