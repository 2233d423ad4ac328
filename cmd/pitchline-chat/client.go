package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/akinalp/pitchline/chat"
	"github.com/akinalp/pitchline/chat/chatapi"
	"github.com/akinalp/pitchline/pkg/logger"
	"github.com/akinalp/pitchline/realtime"
)

// connection, bir komutun kullandığı REST client'ı, realtime bağlantısı ve Session.
type connection struct {
	api     *chatapi.Client
	rt      *realtime.RemoteConn
	session *chat.Session
	log     zerolog.Logger
}

func (c *connection) Close() {
	if c.rt != nil {
		c.rt.Close()
	}
}

// connect, token sahibinin profilini okur, WebSocket'e bağlanır ve Session kurar.
func connect(ctx context.Context, cmd *cobra.Command) (*connection, error) {
	apiURL, _ := cmd.Flags().GetString("api")
	token, _ := cmd.Flags().GetString("token")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if strings.TrimSpace(token) == "" {
		return nil, errors.New("no token: set PITCHLINE_TOKEN or pass --token")
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	log := logger.NewWithWriter(os.Stderr, level, true)

	api := chatapi.New(apiURL, token)
	me, err := api.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	wsURL, err := realtimeURL(apiURL)
	if err != nil {
		return nil, err
	}
	rt, err := realtime.Dial(ctx, wsURL, token, realtime.DialOptions{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("failed to connect realtime: %w", err)
	}

	session, err := chat.NewSession(chat.Viewer{
		ID:          me.ID,
		DisplayName: me.DisplayName,
		Role:        me.Role,
	}, chat.Options{
		Store:    api,
		Realtime: rt,
		Logger:   log,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	return &connection{api: api, rt: rt, session: session, log: log}, nil
}

// realtimeURL, http(s)://host → ws(s)://host/ws
func realtimeURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
