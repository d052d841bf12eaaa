package commands

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagBackend string
	flagEngine  string
	flagToken   string
	flagDebug   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "voicecall",
	Short: "Voice-AI conversation client",
	Long: `voicecall joins a real-time audio conversation with a remote voice-AI
agent: it fetches room credentials from the conversation backend, joins the
room over the configured transport engine, and tears everything down cleanly
when the call ends on either side.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		if flagDebug {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagEngine, "engine", "", "transport engine: webrtc or gateway (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "backend auth token (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "debug logging")

	rootCmd.AddCommand(callCmd)
}
