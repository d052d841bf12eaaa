package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arvele/voicecall/internal/adapters"
	"github.com/arvele/voicecall/internal/adapters/backend"
	"github.com/arvele/voicecall/internal/config"
	"github.com/arvele/voicecall/internal/diag"
	"github.com/arvele/voicecall/internal/store"
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Start a conversation and keep it up until interrupted",
	RunE:  runCall,
}

func runCall(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagBackend != "" {
		cfg.BackendURL = flagBackend
	}
	if flagEngine != "" {
		cfg.Engine = flagEngine
	}
	if flagToken != "" {
		cfg.AuthToken = flagToken
	}

	engine, renderers, err := adapters.NewEngine(cfg)
	if err != nil {
		return err
	}
	issuer := backend.NewClient(cfg.BackendURL, cfg.AuthToken, cfg.RequestTimeout)
	audio := cfg.Audio()

	s := store.New(store.Options{
		Backend:   issuer,
		Engine:    engine,
		Renderers: renderers,
		Audio:     &audio,
	})
	s.SetOnChange(func(snap store.Snapshot) {
		log.Info().Str("module", "cli").
			Str("phase", string(snap.Phase)).
			Bool("connected", snap.Connected).
			Bool("mic", snap.MicActive).
			Bool("remote_speaking", snap.RemoteSpeaking).
			Str("error", snap.ErrMessage).
			Msg("state")
	})

	diag.Serve(cfg.DiagAddr, s.Snapshot)

	if err := s.Start(ctx); err != nil {
		return err
	}
	log.Info().Str("module", "cli").Msg("call running, Ctrl-C to end")

	<-ctx.Done()
	log.Info().Str("module", "cli").Msg("shutting down")
	// Use a fresh context: the signal context is already canceled and the
	// end path should still reach the backend.
	s.End(context.Background())
	return nil
}
