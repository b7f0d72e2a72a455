package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/chess-session-api/pkg/chessclient"
	"github.com/park285/chess-session-api/pkg/chessdto"
)

type cliOptions struct {
	apiURL  string
	liveURL string
	prefix  string
	user    string
	timeout time.Duration
}

func (o *cliOptions) client() *chessclient.Client {
	opts := []chessclient.Option{
		chessclient.WithPrefix(o.prefix),
		chessclient.WithTimeout(o.timeout),
	}
	if o.user != "" {
		opts = append(opts, chessclient.WithUser(o.user))
	}
	return chessclient.NewClient(o.apiURL, opts...)
}

func newRootCmd(out io.Writer) *cobra.Command {
	o := &cliOptions{}
	root := &cobra.Command{
		Use:           "chess-cli",
		Short:         "Play and watch games on a chess session server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&o.apiURL, "api", envOr("CHESS_API_URL", "http://localhost:8080"), "server base URL")
	root.PersistentFlags().StringVar(&o.liveURL, "live", envOr("CHESS_LIVE_URL", "ws://localhost:8081"), "live feed base URL")
	root.PersistentFlags().StringVar(&o.prefix, "prefix", envOr("API_PREFIX", "/api/v1"), "API path prefix")
	root.PersistentFlags().StringVarP(&o.user, "user", "u", os.Getenv("X_USER_ID"), "player id sent as X-User-Id")
	root.PersistentFlags().DurationVar(&o.timeout, "timeout", 10*time.Second, "per-request timeout")

	root.AddCommand(
		newHealthCmd(o),
		newCreateCmd(o),
		newShowCmd(o),
		newMoveCmd(o),
		newListCmd(o),
		newValidateCmd(o),
		newBoardCmd(o),
		newWatchCmd(o),
	)
	return root
}

func newHealthCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := o.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), h)
		},
	}
}

func newCreateCmd(o *cliOptions) *cobra.Command {
	var position, white, black string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a new game",
		Long: `Start a new game, optionally from a custom position.

Examples:
  chess-cli create -u alice --black bob
  chess-cli create --fen "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := chessdto.CreateGameRequest{}
			if position != "" {
				req.InitialFEN = &position
			}
			if white != "" || black != "" {
				req.Players = &chessdto.PlayersInput{White: optional(white), Black: optional(black)}
			}
			res, err := o.client().CreateGame(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&position, "fen", "", "starting position (default: standard start)")
	cmd.Flags().StringVar(&white, "white", "", "white player id")
	cmd.Flags().StringVar(&black, "black", "", "black player id")
	return cmd
}

func newShowCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <gameId>",
		Short: "Print the full state of a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := o.client().Game(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), g)
		},
	}
}

func newMoveCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <gameId> <move>",
		Short: "Play a move in SAN (Nf3) or UCI (g1f3)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := o.client().Move(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newListCmd(o *cliOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list [player]",
		Short: "List recent games of a player (default: --user)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			player := o.user
			if len(args) == 1 {
				player = args[0]
			}
			res, err := o.client().Games(cmd.Context(), player, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of games")
	return cmd
}

func newValidateCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <fen>",
		Short: "Check a FEN string without starting a game",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := o.client().Validate(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newBoardCmd(o *cliOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "board <gameId>",
		Short: "Save the rendered board as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := o.client().BoardPNG(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			path := output
			if path == "" {
				path = args[0] + ".png"
			}
			if err := os.WriteFile(path, img, 0o644); err != nil {
				return fmt.Errorf("write board: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default: <gameId>.png)")
	return cmd
}

func newWatchCmd(o *cliOptions) *cobra.Command {
	var attempts int
	cmd := &cobra.Command{
		Use:   "watch <gameId>",
		Short: "Stream live events of a game as JSON lines until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			w := chessclient.NewWatcher(chessclient.EventsURL(o.liveURL, o.prefix, args[0]), attempts, time.Second)
			if o.user != "" {
				user := o.user
				w.SetHeaderProvider(func() map[string]string { return map[string]string{"X-User-Id": user} })
			}
			lost := make(chan struct{})
			var lostOnce sync.Once
			w.OnStateChange(func(s chessclient.WatchState) {
				fmt.Fprintf(cmd.ErrOrStderr(), "watch state: %s\n", s)
				if s == chessclient.StateFailed || (s == chessclient.StateDisconnected && attempts <= 0) {
					lostOnce.Do(func() { close(lost) })
				}
			})
			events := make(chan *chessdto.Event, 16)
			w.OnEvent(func(ev *chessdto.Event) {
				select {
				case events <- ev:
				case <-ctx.Done():
				}
			})

			err := w.Connect(ctx)
			defer func() {
				stop()
				cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = w.Close(cctx)
			}()
			if err != nil {
				return fmt.Errorf("watch connect: %w", err)
			}

			enc := json.NewEncoder(out)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-lost:
					return fmt.Errorf("live feed lost")
				case ev := <-events:
					if err := enc.Encode(ev); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().IntVar(&attempts, "reconnect", 5, "reconnect attempts after the feed drops")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
