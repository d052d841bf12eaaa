// voicecall is a CLI client for voice-AI conversations.
//
// It asks the conversation backend for room credentials, joins the room with
// the configured transport engine, and keeps the call up until interrupted.
//
// Usage:
//
//	voicecall call                  # start a conversation, Ctrl-C ends it
//	voicecall call --engine gateway # use the hosted gateway transport
package main

import (
	"os"

	"github.com/arvele/voicecall/cmd/voicecall/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
