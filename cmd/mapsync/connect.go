package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mapsync/internal/client"
	"mapsync/internal/entry"
	"mapsync/internal/protocol"
)

var (
	connectAddr    string
	connectUser    string
	connectTimeout time.Duration
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Join a mapping server interactively",
	Long: `Connect to a mapping server and edit mappings from a prompt.

The address is host:port for TCP or a ws:// or wss:// URL for the
WebSocket endpoint.

Examples:
  mapsync connect --user alice
  mapsync connect --addr mapsync.example.com:34712 --user bob
  mapsync connect --addr ws://localhost:8080/ws --user carol`,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&connectAddr, "addr", "", "Server address (default from config)")
	connectCmd.Flags().StringVarP(&connectUser, "user", "u", "", "Username (default from config)")
	connectCmd.Flags().DurationVar(&connectTimeout, "timeout", 10*time.Second, "Login timeout")
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Client.Address = connectAddr
	}
	if cmd.Flags().Changed("user") {
		cfg.Client.Username = connectUser
	}
	if cfg.Client.Username == "" {
		return fmt.Errorf("a username is required (--user or client.username)")
	}

	factory := newLoggerFactory(cmd, cfg)
	defer factory.Close()
	// Activity is printed on the console; keep log lines for problems
	// unless asked for more.
	if !cmd.Flags().Changed("verbose") && !cmd.Flags().Changed("quiet") {
		factory.SetLevel(slog.LevelWarn)
	}
	logger, err := factory.Logger("client")
	if err != nil {
		return err
	}

	out := &syncWriter{w: cmd.OutOrStdout()}
	opts := client.Options{Logger: logger, Listener: &consoleListener{out: out}}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	var c *client.Client
	addr := cfg.Client.Address
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		c, err = client.DialWebSocket(dialCtx, addr, cfg.Client.Username, opts)
	} else {
		c, err = client.Dial(dialCtx, addr, cfg.Client.Username, opts)
	}
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Fprintf(out, "connected to %s as %s (%d mappings). Type help for commands.\n",
		addr, c.Username(), c.Snapshot().Len())

	r := &repl{s: c, out: out}
	return r.run(ctx, cmd.InOrStdin(), c.Done())
}

// consoleListener prints session events.
type consoleListener struct {
	client.NopListener
	out io.Writer
}

func (l *consoleListener) EditResolved(e entry.Entry, state client.PendingState) {
	if state == client.RolledBack {
		fmt.Fprintf(l.out, "! your edit of %s was rolled back\n", e)
	}
}

func (l *consoleListener) Conflict(e entry.Entry, mine, theirs entry.Mapping) {
	fmt.Fprintf(l.out, "! %s was changed by someone else: yours %q, now %q\n",
		e, entry.DisplayName(e, mine), entry.DisplayName(e, theirs))
}

func (l *consoleListener) UsersChanged(users []string) {
	fmt.Fprintf(l.out, "* online: %s\n", strings.Join(users, ", "))
}

func (l *consoleListener) MessageReceived(m protocol.Message) {
	fmt.Fprintf(l.out, "* %s\n", m.String())
}

func (l *consoleListener) Disconnected(reason string, err error) {
	switch {
	case reason != "":
		fmt.Fprintf(l.out, "disconnected: %s\n", reason)
	case err != nil:
		fmt.Fprintf(l.out, "connection lost: %v\n", err)
	default:
		fmt.Fprintln(l.out, "disconnected")
	}
}
