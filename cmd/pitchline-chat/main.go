// pitchline-chat, chat API'sine bağlanan terminal client'ı.
//
// Bağlantı bilgisi PITCHLINE_API_URL / PITCHLINE_TOKEN environment
// variable'larından veya --api / --token flag'lerinden okunur.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pitchline-chat",
	Short: "Terminal client for pitchline chat",
	Long: `pitchline-chat talks to a pitchline backend over REST and WebSocket.

Examples:
  # Mint a local development token
  pitchline-chat devtoken --secret dev-secret --sub u1 --name Ada --role founder

  # List conversations with unread counts
  pitchline-chat conversations

  # Open a conversation: history, live tail, typing; stdin lines are sent
  pitchline-chat open <conversation-id>

  # One-shot operations
  pitchline-chat send <conversation-id> "hello"
  pitchline-chat dm <profile-id>
  pitchline-chat presence <profile-id>`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(dmCmd)
	rootCmd.AddCommand(presenceCmd)
	rootCmd.AddCommand(devtokenCmd)

	rootCmd.PersistentFlags().String("api", envOr("PITCHLINE_API_URL", "http://localhost:9090"), "Backend base URL")
	rootCmd.PersistentFlags().String("token", os.Getenv("PITCHLINE_TOKEN"), "Bearer access token")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
