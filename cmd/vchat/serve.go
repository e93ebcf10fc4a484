package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/vdavid/vchat/internal/api"
	ws "github.com/vdavid/vchat/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Sync in the background and serve the HTTP API",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "port",
			Usage: "Override VCHAT_PORT",
		},
	},
	Action: cmdServe,
}

func cmdServe(ctx *cli.Context) error {
	cfg := getConfig(ctx)
	log := getLogger(ctx)

	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wsHandler := api.NewWebSocketHandler(ws.NewHub(10, log), app.sync, log)
	go wsHandler.ForwardSyncEvents(runCtx, app.sync.Events())

	router := api.NewRouter(api.RouterDeps{
		AuthHandler:          api.NewAuthHandler(app.session, log),
		ConversationsHandler: api.NewConversationsHandler(app.store, app.mailbox, log),
		MessagesHandler:      api.NewMessagesHandler(app.mailbox, log),
		SearchHandler:        api.NewSearchHandler(app.store),
		SyncHandler:          api.NewSyncHandler(app.sync, app.store, log),
		WebSocketHandler:     wsHandler,
		APIToken:             cfg.APIToken,
		Log:                  log,
	})

	port := cfg.Port
	if ctx.IsSet("port") {
		port = ctx.String("port")
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	app.sync.Start(runCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", server.Addr).Str("environment", cfg.Environment).Msg("vchat server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-runCtx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx.Context), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
