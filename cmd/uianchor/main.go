// CLAUDE:SUMMARY Entry point for uianchor — cobra CLI over the locator (index, match, gate, exec, recover, audit) plus the HTTP/MCP server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/uianchor/container"
	"github.com/hazyhaar/uianchor/device"
	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/kit"
	"github.com/hazyhaar/uianchor/locator"
	"github.com/hazyhaar/uianchor/match"
	"github.com/hazyhaar/uianchor/observability"
	"github.com/hazyhaar/uianchor/recovery"
	"github.com/hazyhaar/uianchor/snapshot"
)

var version = "0.1.0-dev"

type globalFlags struct {
	config    string
	db        string
	logLevel  string
	logFormat string
}

func main() {
	var g globalFlags
	root := &cobra.Command{
		Use:           "uianchor",
		Short:         "Locate and tap recorded UI elements on Android screen dumps",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.config, "config", env("UIANCHOR_CONFIG", ""), "YAML config file")
	root.PersistentFlags().StringVar(&g.db, "db", env("UIANCHOR_DB", ""), "SQLite path for audit, metrics and score cache (empty: in memory)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", env("LOG_LEVEL", "info"), "debug|info|warn|error")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", env("LOG_FORMAT", "json"), "json|text")

	root.AddCommand(
		indexCmd(&g),
		matchCmd(&g),
		containerCmd(&g),
		gateCmd(&g),
		execCmd(&g),
		recoverCmd(&g),
		auditCmd(&g),
		serveCmd(&g),
		mcpCmd(&g),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = kit.WithTransport(ctx, "cli")
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "uianchor:", err)
		os.Exit(1)
	}
}

// open loads the config and builds a Locator. Logs go to stderr so stdout
// stays machine readable.
func open(g *globalFlags, opts ...locator.Option) (*locator.Locator, *slog.Logger, error) {
	logger, err := observability.NewLogger(os.Stderr, g.logFormat, g.logLevel)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	cfg := locator.DefaultConfig()
	if g.config != "" {
		if cfg, err = locator.LoadConfigFile(g.config); err != nil {
			return nil, nil, err
		}
	}
	if g.db != "" {
		cfg.DBPath = g.db
	}
	loc, err := locator.New(cfg, logger, opts...)
	if err != nil {
		return nil, nil, err
	}
	return loc, logger, nil
}

func indexCmd(g *globalFlags) *cobra.Command {
	var dump string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Parse a dump and list its nodes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readDump(dump)
			if err != nil {
				return err
			}
			s, err := snapshot.Build(raw)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"snapshot_hash": s.Hash(),
				"screen":        s.Screen(),
				"nodes":         s.Nodes(),
			})
		},
	}
	cmd.Flags().StringVar(&dump, "dump", "-", "dump file, - for stdin")
	return cmd
}

// anchorFlags select the element either as a JSON anchor or as a node index
// of the recorded dump.
type anchorFlags struct {
	anchor string
	node   int
}

func (f *anchorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.anchor, "anchor", "", `anchor JSON, e.g. {"text":"Follow","resource_id":"app:id/follow"}`)
	cmd.Flags().IntVar(&f.node, "node", -1, "node index in the recorded dump")
}

func (f *anchorFlags) resolve(recorded string) (match.Anchor, error) {
	if f.anchor != "" {
		var a match.Anchor
		if err := json.Unmarshal([]byte(f.anchor), &a); err != nil {
			return a, fmt.Errorf("--anchor: %w", err)
		}
		return a, nil
	}
	if f.node < 0 {
		return match.Anchor{}, errors.New("one of --anchor or --node is required")
	}
	if recorded == "" {
		return match.Anchor{}, errors.New("--node needs the recorded dump")
	}
	s, err := snapshot.Build(recorded)
	if err != nil {
		return match.Anchor{}, err
	}
	if !s.Valid(f.node) {
		return match.Anchor{}, fmt.Errorf("--node %d out of range (%d nodes)", f.node, s.Len())
	}
	return match.AnchorFromNode(s, f.node), nil
}

func matchCmd(g *globalFlags) *cobra.Command {
	var (
		dump string
		af   anchorFlags
	)
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Score an anchor with every match mode and print the plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readDump(dump)
			if err != nil {
				return err
			}
			a, err := af.resolve(raw)
			if err != nil {
				return err
			}
			loc, _, err := open(g)
			if err != nil {
				return err
			}
			defer loc.Close()
			rep, err := loc.Match(cmd.Context(), raw, a)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().StringVar(&dump, "dump", "-", "dump file, - for stdin")
	af.register(cmd)
	return cmd
}

func containerCmd(g *globalFlags) *cobra.Command {
	var dump, hint, clicked string
	cmd := &cobra.Command{
		Use:   "container",
		Short: "Resolve a list container from a hint, or normalise a tapped bounds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readDump(dump)
			if err != nil {
				return err
			}
			loc, _, err := open(g)
			if err != nil {
				return err
			}
			defer loc.Close()
			if clicked != "" {
				r, err := geom.ParseRect(clicked)
				if err != nil {
					return err
				}
				n, err := loc.Normalize(cmd.Context(), raw, r)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), n)
			}
			h, err := container.ParseHint([]byte(hint))
			if err != nil {
				return err
			}
			res, err := loc.MatchContainer(cmd.Context(), raw, h)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&dump, "dump", "-", "dump file, - for stdin")
	cmd.Flags().StringVar(&hint, "hint", "{}", "container hint JSON")
	cmd.Flags().StringVar(&clicked, "bounds", "", "tapped bounds [l,t][r,b]; switches to normalisation")
	return cmd
}

func gateCmd(g *globalFlags) *cobra.Command {
	var (
		dump, selector string
		confidence     float64
	)
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Verify a selector before acting on it (quick check without --dump)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, _, err := open(g)
			if err != nil {
				return err
			}
			defer loc.Close()
			if dump == "" {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"selector":    selector,
					"quick_check": loc.QuickCheck(selector, confidence),
				})
			}
			raw, err := readDump(dump)
			if err != nil {
				return err
			}
			v, err := loc.Gate(cmd.Context(), raw, selector, confidence)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().StringVar(&dump, "dump", "", "dump file, - for stdin")
	cmd.Flags().StringVar(&selector, "selector", "", "XPath subset selector")
	cmd.Flags().Float64Var(&confidence, "confidence", 1, "static selector confidence")
	cmd.MarkFlagRequired("selector")
	return cmd
}

func execCmd(g *globalFlags) *cobra.Command {
	var (
		screens  []string
		recorded string
		params   string
		af       anchorFlags
	)
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run an anchor against replayed screens and report the tap",
		Long: `exec replays the given dump files as the live device (one per Dump call)
and records taps instead of performing them. The plan is derived on the live
screen. With --params, recovery runs after every variant failed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(screens) == 0 {
				return errors.New("--screen is required")
			}
			replay, err := device.LoadReplay(screens...)
			if err != nil {
				return err
			}
			var rec string
			if recorded != "" {
				if rec, err = readDump(recorded); err != nil {
					return err
				}
			}
			a, err := af.resolve(rec)
			if err != nil {
				return err
			}
			req := locator.ExecRequest{Anchor: a}
			if params != "" {
				data, err := os.ReadFile(params)
				if err != nil {
					return err
				}
				rc, err := recovery.ContextFromParams(data)
				if err != nil {
					return err
				}
				req.Recovery = &rc
			}

			loc, _, err := open(g, locator.WithDevice(replay))
			if err != nil {
				return err
			}
			defer loc.Close()
			res := loc.Execute(cmd.Context(), req)
			if err := printJSON(cmd.OutOrStdout(), map[string]any{"result": res, "taps": replay.Taps()}); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("run %s failed: %s", res.RunID, res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&screens, "screen", nil, "live dump file(s), served in order")
	cmd.Flags().StringVar(&recorded, "recorded", "", "recorded dump, needed with --node")
	cmd.Flags().StringVar(&params, "params", "", "recovery params JSON file")
	af.register(cmd)
	return cmd
}

func recoverCmd(g *globalFlags) *cobra.Command {
	var params, dump string
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Find a recorded element on a live dump from its recovery params",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(params)
			if err != nil {
				return err
			}
			raw, err := readDump(dump)
			if err != nil {
				return err
			}
			loc, _, err := open(g)
			if err != nil {
				return err
			}
			defer loc.Close()
			out, err := loc.Recover(cmd.Context(), data, raw)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&params, "params", "", "recovery params JSON file")
	cmd.Flags().StringVar(&dump, "dump", "-", "live dump file, - for stdin")
	cmd.MarkFlagRequired("params")
	return cmd
}

func auditCmd(g *globalFlags) *cobra.Command {
	var (
		f     observability.AuditFilter
		since time.Duration
		prune bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audited runs from the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, _, err := open(g)
			if err != nil {
				return err
			}
			defer loc.Close()
			if prune {
				if err := loc.Prune(cmd.Context()); err != nil {
					return err
				}
			}
			if since > 0 {
				f.Since = time.Now().Add(-since)
			}
			recs, err := loc.Audit(cmd.Context(), f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"runs": recs})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "success|failure")
	cmd.Flags().StringVar(&f.AnchorKey, "anchor-key", "", "only runs of this anchor")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "rows to skip")
	cmd.Flags().DurationVar(&since, "since", 0, "only runs newer than this")
	cmd.Flags().BoolVar(&prune, "prune", false, "drop rows past the retention window first")
	return cmd
}

func serveCmd(g *globalFlags) *cobra.Command {
	var (
		addr    string
		mcpPath string
		screens []string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP over streamable HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var opts []locator.Option
			if len(screens) > 0 {
				replay, err := device.LoadReplay(screens...)
				if err != nil {
					return err
				}
				opts = append(opts, locator.WithDevice(replay))
			}
			loc, logger, err := open(g, opts...)
			if err != nil {
				return err
			}
			defer loc.Close()
			if err := loc.Prune(ctx); err != nil {
				logger.Warn("prune at startup", "error", err)
			}

			mcpSrv := newMCPServer(loc)
			mux := http.NewServeMux()
			mux.Handle(mcpPath, mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))
			mux.Handle("/", loc.Handler())

			srv := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				logger.Info("server starting", "addr", addr, "mcp", mcpPath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown", "error", err)
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":"+env("PORT", "8087"), "listen address")
	cmd.Flags().StringVar(&mcpPath, "mcp-path", "/mcp", "path of the MCP endpoint")
	cmd.Flags().StringSliceVar(&screens, "screen", nil, "replay dump file(s) standing in for the device")
	return cmd
}

func mcpCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, _, err := open(g)
			if err != nil {
				return err
			}
			defer loc.Close()
			return newMCPServer(loc).Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}

func newMCPServer(loc *locator.Locator) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "uianchor", Version: version}, nil)
	loc.RegisterMCP(srv)
	return srv
}

func readDump(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read dump: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
