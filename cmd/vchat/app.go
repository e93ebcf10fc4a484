package main

import (
	"context"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/rs/zerolog"
	"github.com/vdavid/vchat/internal/auth"
	"github.com/vdavid/vchat/internal/config"
	"github.com/vdavid/vchat/internal/contacts"
	"github.com/vdavid/vchat/internal/conversation"
	"github.com/vdavid/vchat/internal/crypto"
	"github.com/vdavid/vchat/internal/db"
	"github.com/vdavid/vchat/internal/mailbox"
	"github.com/vdavid/vchat/internal/provider"
	"github.com/vdavid/vchat/internal/provider/gmail"
	"github.com/vdavid/vchat/internal/reconcile"
	"github.com/vdavid/vchat/internal/store"
	"github.com/vdavid/vchat/internal/syncer"
	"github.com/vdavid/vchat/migrations"
	"google.golang.org/api/option"
)

// App holds the wired components shared by every command.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	session  *auth.Session
	provider provider.Provider
	store    *store.Store
	mailbox  *mailbox.Service
	sync     *syncer.Orchestrator
}

// newSession opens the credential store and restores the OAuth session.
// Commands that never touch the mailbox stop here.
func newSession(cfg *config.Config, ring keyring.Keyring, log zerolog.Logger) (*auth.Session, error) {
	enc, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	oauthCfg, err := auth.LoadOAuthConfig(cfg.GoogleCredentialsFile, gmail.Scopes...)
	if err != nil {
		return nil, err
	}
	return auth.NewSession(oauthCfg, auth.NewCredentialStore(ring, enc), log)
}

func newApp(ctx context.Context, cfg *config.Config, ring keyring.Keyring, log zerolog.Logger) (*App, error) {
	session, err := newSession(cfg, ring, log)
	if err != nil {
		return nil, err
	}

	client, err := gmail.NewClient(ctx, log, option.WithTokenSource(session))
	if err != nil {
		return nil, err
	}
	p := provider.NewRefreshing(client, session)

	repo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	book := contacts.NewBook(cfg.ContactNames())
	rec := reconcile.New(conversation.NewResolver(book), log, reconcile.WithLearner(book))
	st, err := store.Open(ctx, repo, log, rec.Maintain)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		log:      log,
		session:  session,
		provider: p,
		store:    st,
		mailbox:  mailbox.NewService(p, session, st, rec, log),
		sync: syncer.New(p, session, st, rec, syncer.Options{
			Interval:         cfg.SyncInterval,
			BackoffBase:      cfg.BackoffBase,
			BackoffMax:       cfg.BackoffMax,
			FetchConcurrency: cfg.FetchConcurrency,
			FetchQPS:         cfg.FetchQPS,
			MaxMessages:      cfg.MaxMessages,
		}, log),
	}, nil
}

func openRepository(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Repository, error) {
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("Using the in-memory store; nothing survives a restart")
		return store.NewMemoryRepository(), nil
	}

	databaseURL := cfg.GetDatabaseURL()
	if err := migrations.Run(databaseURL); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	pool, err := db.NewConnection(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Str("host", cfg.DBHost).Str("database", cfg.DBName).Msg("Connected to database")
	return db.NewRepository(pool, log), nil
}

func (a *App) Close() {
	a.sync.Stop()
	a.store.Close()
}
