// ════════════════════════════════════════════════════════════════════════════════════════════════
// Out-of-Core Puzzle Solver - Main Entry Point
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Out-of-Core Puzzle Solver
// Component: Main Entry Point & Run Orchestration
//
// Description:
//   Loads configuration and a level, runs one search session and prints the solution.
//   Configuration → Engine Construction → Search → Transcript → Run Ledger
//
// Exit codes:
//   - 0: solution found
//   - 2: search exhausted without a solution
//   - 1: fatal error
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"

	"tilesolver/config"
	"tilesolver/debug"
	"tilesolver/logging"
	"tilesolver/puzzle/gridwalk"
	"tilesolver/runlog"
	"tilesolver/search"
	"tilesolver/solution"
)

// errNotFound marks a clean run that found no solution.
var errNotFound = errors.New("no solution within the frame budget")

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// COMMAND LINE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type options struct {
	configPath  string
	puzzle      string
	mode        string
	workers     int
	policy      string
	archive     string
	queue       string
	logLevel    string
	json        bool
	metricsAddr string
	runlog      string
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "tilesolver [max-frames]",
		Short: "Exhaustive shortest-path solver for tile puzzles larger than memory",
		Long: `tilesolver searches a level's state space frame by frame, keeping only
a bounded cache of node records in memory and swapping the rest to disk.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.resolve(cmd, args)
			if err != nil {
				return err
			}
			return solve(cmd.Context(), cfg, o.json, stdout)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "configuration file (YAML, or JSON by extension)")
	f.StringVarP(&o.puzzle, "puzzle", "p", "", "level file")
	f.StringVar(&o.mode, "mode", "", "search mode: bfs or dfs")
	f.IntVarP(&o.workers, "workers", "w", 0, "worker threads (0 = one per CPU)")
	f.StringVar(&o.policy, "policy", "", "cache eviction policy: hashchain or splay")
	f.StringVar(&o.archive, "archive", "", "archive backend: file, mmap or badger")
	f.StringVar(&o.queue, "queue", "", "frame queue backend: file, buffered, list or array")
	f.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.BoolVar(&o.json, "json", false, "print a JSON summary instead of the transcript")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringVar(&o.runlog, "runlog", "", "record the run in this SQLite ledger")
	return cmd
}

// resolve layers defaults, the config file, the environment and the flags.
func (o *options) resolve(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if len(args) == 1 {
		n, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return cfg, fmt.Errorf("max-frames %q: %w", args[0], err)
		}
		cfg.Search.MaxFrame = uint32(n)
	}

	set := cmd.Flags().Changed
	if set("puzzle") {
		cfg.Puzzle.Level = o.puzzle
	}
	if set("mode") {
		cfg.Search.Mode = o.mode
	}
	if set("workers") {
		cfg.Search.Workers = o.workers
	}
	if set("policy") {
		cfg.Cache.Policy = o.policy
	}
	if set("archive") {
		cfg.Archive.Backend = o.archive
	}
	if set("queue") {
		cfg.Queue.Backend = o.queue
	}
	if set("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if set("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}
	if set("runlog") {
		cfg.RunLog.Path = o.runlog
	}
	if cfg.Puzzle.Level == "" {
		return cfg, fmt.Errorf("%w: no level given (--puzzle or puzzle.level)", config.ErrInvalid)
	}
	return cfg, cfg.Validate()
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// RUN ORCHESTRATION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// summary is the --json output.
type summary struct {
	RunID     string  `json:"run_id,omitempty"`
	Puzzle    string  `json:"puzzle"`
	Mode      string  `json:"mode"`
	Found     bool    `json:"found"`
	Frame     uint32  `json:"frame"`
	Moves     int     `json:"moves"`
	Nodes     int     `json:"nodes"`
	Reparents uint64  `json:"reparents"`
	Stale     uint64  `json:"stale"`
	Trims     uint64  `json:"trims"`
	Seconds   float64 `json:"seconds"`
	Digest    string  `json:"digest,omitempty"`
}

func solve(ctx context.Context, cfg config.Config, asJSON bool, stdout io.Writer) error {
	lcfg, err := cfg.LoggerConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(lcfg)
	if err != nil {
		return err
	}
	defer log.Close()
	slog.SetDefault(log.Logger)

	if cfg.Metrics.Addr != "" {
		serveMetrics(cfg.Metrics.Addr)
	}

	lvl, err := gridwalk.LoadFile(cfg.Puzzle.Level)
	if err != nil {
		return err
	}
	p, err := gridwalk.New(lvl, gridwalk.Timing{
		Walk:      cfg.Puzzle.WalkDelay,
		Move:      cfg.Puzzle.MoveDelay,
		Push:      cfg.Puzzle.PushDelay,
		WalkLimit: cfg.Puzzle.WalkLimit,
	})
	if err != nil {
		return err
	}
	debug.DropMessage("LEVEL", fmt.Sprintf("%s %dx%d", cfg.Puzzle.Level, lvl.W, lvl.H))

	e, err := search.New[gridwalk.State](cfg, p, log.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			debug.DropError("CLOSE", err)
		}
	}()

	started := time.Now()
	res, err := e.Run(ctx)
	if err != nil {
		return err
	}

	var tr *solution.Transcript
	if res.Found {
		if tr, err = e.Solution(res.Goal); err != nil {
			return err
		}
	}

	out := summary{
		Puzzle:    cfg.Puzzle.Level,
		Mode:      cfg.Search.Mode,
		Found:     res.Found,
		Frame:     res.Frame,
		Nodes:     res.Nodes,
		Reparents: res.Reparents,
		Stale:     res.Stale,
		Trims:     res.Trims,
		Seconds:   res.Elapsed.Seconds(),
	}
	if tr != nil {
		out.Moves, out.Digest = tr.Moves, tr.DigestHex()
	}
	if cfg.RunLog.Path != "" {
		if out.RunID, err = record(ctx, cfg, out, started, res.Elapsed); err != nil {
			return err
		}
	}

	switch {
	case asJSON:
		b, err := sonnet.Marshal(out)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(stdout, "%s\n", b); err != nil {
			return err
		}
	case tr != nil:
		if _, err := tr.WriteTo(stdout); err != nil {
			return err
		}
	default:
		fmt.Fprintf(stdout, "No solution within %d frames (%d nodes searched)\n", cfg.Search.MaxFrame, res.Nodes)
	}

	if !res.Found {
		return errNotFound
	}
	return nil
}

func record(ctx context.Context, cfg config.Config, s summary, started time.Time, elapsed time.Duration) (string, error) {
	l, err := runlog.Open(cfg.RunLog.Path)
	if err != nil {
		return "", err
	}
	defer l.Close()
	return l.Record(ctx, runlog.Run{
		Puzzle:   s.Puzzle,
		Mode:     s.Mode,
		Policy:   cfg.Cache.Policy,
		Archive:  cfg.Archive.Backend,
		Queue:    cfg.Queue.Backend,
		MaxFrame: cfg.Search.MaxFrame,
		Found:    s.Found,
		Frame:    s.Frame,
		Moves:    s.Moves,
		Nodes:    s.Nodes,
		Trims:    s.Trims,
		Digest:   s.Digest,
		Started:  started,
		Elapsed:  elapsed,
	})
}

// serveMetrics exposes the default Prometheus registry. A listener failure
// is logged and the search carries on without metrics.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			debug.DropError("METRICS", err)
		}
	}()
	debug.DropMessage("METRICS", "serving on "+addr+"/metrics")
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// MAIN
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout))
}

// execute runs the command and maps its outcome to an exit code. SIGINT and
// SIGTERM cancel the search.
func execute(args []string, stdout io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(stdout)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errNotFound):
		return 2
	default:
		debug.DropError("FATAL", err)
		return 1
	}
}
