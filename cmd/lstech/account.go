package main

import (
	"context"
	"io"

	"github.com/jrsteele09/go-lstech-balance/fetch"
	"github.com/jrsteele09/go-lstech-balance/internal/config"
	"github.com/jrsteele09/go-lstech-balance/poller"
	"github.com/jrsteele09/go-lstech-balance/sink"
	"github.com/jrsteele09/go-lstech-balance/store"
	"github.com/jrsteele09/go-lstech-balance/token"
	"github.com/jrsteele09/go-lstech-balance/transport"
	"github.com/rs/zerolog/log"
)

// account wires one isolated engine with its own transport, tokens and store handle.
type account struct {
	name   string
	engine *poller.Engine
	store  store.Store
}

func openAccount(ctx context.Context, cfg config.Config, name string) (*account, error) {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger := log.With().Str("account", name).Logger()
	client := transport.New(cfg, transport.WithLogger(logger))
	tokens := token.New(client, cfg, token.WithLogger(logger))
	fetcher := fetch.New(client, tokens, cfg, fetch.WithLogger(logger))

	reporters := sink.Multi{sink.NewLogReporter(logger)}
	if cfg.GetAMQPURL() != "" {
		reporters = append(reporters, sink.NewAMQPReporter(cfg))
	}

	engine := poller.New(tokens, fetcher, poller.Collaborators{
		Account:   name,
		Reporter:  reporters,
		Reauth:    sink.NewLogReauthRequester(logger, appName+" login --account "+name),
		Persister: store.NewPersister(st),
		Loader:    st,
	}, poller.WithAutoClaim(cfg.GetAutoClaim()))

	return &account{name: name, engine: engine, store: st}, nil
}

func (a *account) restore(ctx context.Context) error {
	state, err := a.store.Load(ctx, a.name)
	if err != nil {
		return err
	}
	return a.engine.Restore(state)
}

func (a *account) Close() {
	if c, ok := a.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Err(err).Str("account", a.name).Msg("closing store")
		}
	}
}
