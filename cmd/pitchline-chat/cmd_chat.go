package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/akinalp/pitchline/chat"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations, most recently active first",
	Args:    cobra.NoArgs,
	RunE:    runConversations,
}

var openCmd = &cobra.Command{
	Use:   "open <conversation-id>",
	Short: "Show history and tail a conversation; stdin lines are sent",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpen,
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text>",
	Short: "Send a single message",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

var dmCmd = &cobra.Command{
	Use:   "dm <profile-id>",
	Short: "Start (or find) a direct conversation and print its id",
	Args:  cobra.ExactArgs(1),
	RunE:  runDM,
}

var presenceCmd = &cobra.Command{
	Use:   "presence <profile-id>",
	Short: "Watch whether a user is online",
	Args:  cobra.ExactArgs(1),
	RunE:  runPresence,
}

func runConversations(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	conn, err := connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	list := conn.session.Conversations()
	if err := list.Refresh(ctx); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tNAME\tUNREAD\tLAST MESSAGE")
	for _, c := range list.Items() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", c.ID, c.Type, c.Name, c.UnreadCount, preview(c))
	}
	return w.Flush()
}

func preview(c chat.Conversation) string {
	if c.LastMessageAt.IsZero() {
		return "-"
	}
	text := c.LastMessage
	if r := []rune(text); len(r) > 40 {
		text = string(r[:40]) + "…"
	}
	return fmt.Sprintf("%s  (%s)", text, c.LastMessageAt.Local().Format("Jan 2 15:04"))
}

func runOpen(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	convID := args[0]
	out := cmd.OutOrStdout()

	stream, err := conn.session.OpenMessages(ctx, convID)
	if err != nil {
		return err
	}
	defer stream.Close(context.Background())

	printed := make(map[string]bool)
	printNew := func(msgs []chat.Message) {
		for _, m := range msgs {
			if m.State != chat.Confirmed || printed[m.ID] {
				continue
			}
			printed[m.ID] = true
			fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), m.SenderName, m.Content)
		}
	}
	printNew(stream.Messages())

	updates := make(chan []chat.Message, 32)
	cancelStream := stream.OnChange(func(msgs []chat.Message) {
		select {
		case updates <- msgs:
		default:
		}
	})
	defer cancelStream()

	typing := conn.session.Typing(convID)
	defer typing.Close(context.Background())
	cancelTyping := typing.OnChange(func(typers []chat.Typer) {
		if len(typers) == 0 {
			return
		}
		names := make([]string, len(typers))
		for i, t := range typers {
			names[i] = t.Name
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "… %s typing\n", strings.Join(names, ", "))
	})
	defer cancelTyping()

	presence, err := conn.session.BroadcastPresence(ctx)
	if err != nil {
		conn.log.Warn().Err(err).Msg("presence unavailable")
	} else {
		defer presence.Close(context.Background())
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msgs := <-updates:
			printNew(msgs)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			_ = typing.StartTyping(ctx)
			if _, err := stream.Send(ctx, line); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "send failed: %v\n", err)
			}
			_ = typing.StopTyping(ctx)
			printNew(stream.Messages())
		}
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	conn, err := connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	msg, err := conn.api.SendMessage(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
	return nil
}

func runDM(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	conn, err := connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	conv, err := conn.session.StartDirect(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), conv.ID)
	return nil
}

func runPresence(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := connect(ctx, cmd)
	if err != nil {
		return err
	}
	defer conn.Close()

	watcher, err := conn.session.WatchPresence(ctx, args[0])
	if err != nil {
		return err
	}
	defer watcher.Close(context.Background())

	report := func(online bool) {
		state := "offline"
		if online {
			state = "online"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s is %s\n", time.Now().Format("15:04:05"), args[0], state)
	}
	cancel := watcher.OnChange(report)
	defer cancel()

	// İlk snapshot'ın gelmesi için kısa bir bekleme.
	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return nil
	}
	if !watcher.IsOnline() {
		report(false)
	}

	<-ctx.Done()
	return nil
}
