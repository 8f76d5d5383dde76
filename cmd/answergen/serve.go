package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"answergen/internal/api"
)

func serveCmd() *cobra.Command {
	var port string
	var queueSize int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if port == "" {
				port = a.cfg.Port
			}

			server := api.NewServer(a.pipeline, a.history, a.documents, api.NewJobManager(queueSize))
			server.Start(ctx)

			srv := &http.Server{
				Addr:        ":" + port,
				Handler:     server.Handler(),
				ReadTimeout: 60 * time.Second,
				// Synchronous runs answer every question before responding.
				WriteTimeout: 30 * time.Minute,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", srv.Addr).Str("provider", a.cfg.Provider).Msg("listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "port to listen on (default: PORT or 8080)")
	cmd.Flags().IntVar(&queueSize, "queue", 16, "how many background runs may wait")
	return cmd
}
