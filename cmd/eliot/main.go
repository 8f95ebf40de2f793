// Command eliot reconciles verse texts into the verse store and maintains the
// word concordance.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	tclient "go.temporal.io/sdk/client"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/config"
	"github.com/cdnilsen/eliot-web/internal/logging"
	"github.com/cdnilsen/eliot-web/internal/parser"
	"github.com/cdnilsen/eliot-web/internal/pipeline"
	"github.com/cdnilsen/eliot-web/internal/storage"
	"github.com/cdnilsen/eliot-web/internal/util"
	"github.com/cdnilsen/eliot-web/internal/workflows"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config   string `name:"config" short:"c" type:"path" help:"TOML config file (default $ELIOT_CONFIG)"`
	LogLevel string `name:"log-level" help:"Override the configured log level"`

	out io.Writer     `kong:"-"`
	cfg config.Config `kong:"-"`
}

type CLI struct {
	Globals

	Reconcile    ReconcileCmd    `cmd:"" help:"Reconcile one or more books against the store"`
	ReconcileAll ReconcileAllCmd `cmd:"" name:"reconcile-all" help:"Reconcile every book with source files, then sweep ghost headwords"`
	SweepGhosts  SweepGhostsCmd  `cmd:"" name:"sweep-ghosts" help:"Delete concordance headwords no current text produces"`
	Lint         LintCmd         `cmd:"" help:"Report formatting problems in source files"`
	Hapax        HapaxCmd        `cmd:"" help:"List headwords that occur exactly once"`
	Migrate      MigrateCmd      `cmd:"" help:"Create the verse, verse-word and concordance tables"`
	Watch        WatchCmd        `cmd:"" help:"Re-reconcile books as their source files change"`
	Start        StartCmd        `cmd:"" help:"Start a reconciliation workflow on the Temporal worker"`
}

func main() {
	_ = godotenv.Load(".env")
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "eliot:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var cli CLI
	k, err := kong.New(&cli,
		kong.Name("eliot"),
		kong.Description("Verse addressing and cross-edition word indexing"),
		kong.UsageOnError(),
		kong.Writers(stdout, os.Stderr),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err != nil {
		return err
	}
	kctx, err := k.Parse(args)
	if err != nil {
		return err
	}
	if err := cli.Globals.load(stdout); err != nil {
		return err
	}
	return kctx.Run(&cli.Globals)
}

func (g *Globals) load(stdout io.Writer) error {
	g.out = stdout
	if g.Config != "" {
		cfg, err := config.LoadFile(g.Config)
		if err != nil {
			return err
		}
		g.cfg = cfg
	} else {
		g.cfg = config.Load()
	}
	if g.LogLevel != "" {
		g.cfg.LogLevel = g.LogLevel
	}
	return logging.Configure(g.cfg.LogLevel, g.cfg.LogFormat)
}

// openStore opens the configured backend. The caller closes it.
func (g *Globals) openStore(ctx context.Context) (storage.Store, error) {
	if g.cfg.StoreDriver == storage.DriverSQLite && g.cfg.SQLitePath != ":memory:" {
		if err := util.EnsureDir(filepath.Dir(g.cfg.SQLitePath)); err != nil {
			return nil, err
		}
	}
	return storage.Open(ctx, g.cfg)
}

func (g *Globals) runner(store pipeline.Gateway) *pipeline.Runner {
	return pipeline.NewRunner(store, os.DirFS(g.cfg.TextsDir), pipeline.Options{
		Logger:          logging.GetLogger(),
		ReportDir:       g.cfg.DataOutRoot,
		RespellDistance: g.cfg.RespellDistance,
	})
}

// withRunner opens the store, runs fn and closes the store again.
func (g *Globals) withRunner(fn func(ctx context.Context, r *pipeline.Runner) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	store, err := g.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, g.runner(store))
}

type ReconcileCmd struct {
	Books []string `arg:"" name:"book" help:"Book names, e.g. Ruth or \"1 Samuel\""`
}

func (c *ReconcileCmd) Run(g *Globals) error {
	return g.withRunner(func(ctx context.Context, r *pipeline.Runner) error {
		failed := 0
		for _, b := range c.Books {
			rep, err := r.ReconcileBook(ctx, b)
			if err != nil {
				failed++
				fmt.Fprintf(g.out, "%s: FAILED: %v\n", b, err)
				continue
			}
			printReport(g.out, rep)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d books failed", failed, len(c.Books))
		}
		return nil
	})
}

type ReconcileAllCmd struct{}

func (c *ReconcileAllCmd) Run(g *Globals) error {
	return g.withRunner(func(ctx context.Context, r *pipeline.Runner) error {
		out, err := r.ReconcileAll(ctx)
		if out != nil {
			for _, rep := range out.Books {
				printReport(g.out, rep)
			}
			for _, f := range out.Failures {
				fmt.Fprintf(g.out, "%s: FAILED (%s, retryable=%t): %s\n", f.Book, f.Phase, f.Retryable, f.Error)
			}
			if out.Sweep != nil {
				printSweep(g.out, out.Sweep)
			}
		}
		if err != nil {
			return err
		}
		if len(out.Failures) > 0 {
			return fmt.Errorf("%d books failed; ghost sweep skipped", len(out.Failures))
		}
		return nil
	})
}

type SweepGhostsCmd struct{}

func (c *SweepGhostsCmd) Run(g *Globals) error {
	return g.withRunner(func(ctx context.Context, r *pipeline.Runner) error {
		rep, err := r.SweepGhosts(ctx)
		if err != nil {
			return err
		}
		printSweep(g.out, rep)
		return nil
	})
}

type LintCmd struct {
	Paths []string `arg:"" optional:"" type:"path" help:"Files or directories to lint (default: the texts dir)"`
	Out   string   `type:"path" help:"Also write findings as JSON lines to this file"`
}

func (c *LintCmd) Run(g *Globals) error {
	paths := c.Paths
	if len(paths) == 0 {
		paths = []string{g.cfg.TextsDir}
	}
	files, err := expandSources(paths)
	if err != nil {
		return err
	}
	var rows []parser.Finding
	for _, f := range files {
		findings, err := lintFile(f)
		if err != nil {
			return err
		}
		for _, fd := range findings {
			fmt.Fprintln(g.out, fd.String())
			rows = append(rows, fd)
		}
	}
	fmt.Fprintf(g.out, "%d findings in %d files\n", len(rows), len(files))
	if c.Out != "" {
		return util.WriteJSONLinesAtomic(c.Out, rows)
	}
	return nil
}

func lintFile(path string) ([]parser.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return parser.Lint(f, path)
}

// expandSources replaces each directory with the .txt files beneath it.
func expandSources(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(p), "**/*.txt")
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", p, err)
		}
		for _, m := range matches {
			out = append(out, filepath.Join(p, filepath.FromSlash(m)))
		}
	}
	slices.Sort(out)
	return out, nil
}

type HapaxCmd struct {
	Limit int `default:"50" help:"Maximum headwords to list (0 for all)"`
}

func (c *HapaxCmd) Run(g *Globals) error {
	return g.withRunner(func(ctx context.Context, r *pipeline.Runner) error {
		hapaxes, err := r.Hapaxes(ctx, c.Limit)
		if err != nil {
			return err
		}
		for _, h := range hapaxes {
			fmt.Fprintf(g.out, "%s\t%s\t%s\n", h.Headword, h.VerseID, h.NoDiacritics)
		}
		return nil
	})
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(g *Globals) error {
	ctx := context.Background()
	store, err := g.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "schema ready (%s)\n", g.cfg.StoreDriver)
	return nil
}

type WatchCmd struct{}

func (c *WatchCmd) Run(g *Globals) error {
	return g.withRunner(func(ctx context.Context, r *pipeline.Runner) error {
		w := pipeline.NewWatcher(r, g.cfg.TextsDir, g.cfg.WatchDebounce())
		w.OnReconciled = func(book string, rep *pipeline.Report, err error) {
			if err == nil {
				printReport(g.out, rep)
			}
		}
		return w.Run(ctx)
	})
}

type StartCmd struct {
	Book string `xor:"target" required:"" help:"Book to reconcile"`
	All  bool   `xor:"target" required:"" help:"Reconcile the whole corpus"`
	Wait bool   `help:"Block until the workflow finishes"`
}

func (c *StartCmd) Run(g *Globals) error {
	ctx := context.Background()
	tc, err := tclient.Dial(tclient.Options{HostPort: g.cfg.TemporalAddress})
	if err != nil {
		return fmt.Errorf("dial temporal: %w", err)
	}
	defer tc.Close()

	opts := tclient.StartWorkflowOptions{
		TaskQueue:                                g.cfg.TemporalTaskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	var we tclient.WorkflowRun
	if c.All {
		opts.ID = workflows.CorpusWorkflowID
		we, err = tc.ExecuteWorkflow(ctx, opts, workflows.ReconcileCorpusWorkflow, workflows.ReconcileCorpusInput{})
	} else {
		book, lerr := address.LookupBook(c.Book)
		if lerr != nil {
			return lerr
		}
		opts.ID = workflows.BookWorkflowID(book.Name)
		we, err = tc.ExecuteWorkflow(ctx, opts, workflows.ReconcileBookWorkflow, workflows.ReconcileBookInput{Book: book.Name})
	}
	if err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	fmt.Fprintf(g.out, "started %s run=%s\n", we.GetID(), we.GetRunID())
	if !c.Wait {
		return nil
	}
	var result any
	if err := we.Get(ctx, &result); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "finished %s: %v\n", we.GetID(), result)
	return nil
}

func printReport(w io.Writer, rep *pipeline.Report) {
	fmt.Fprintf(w, "%s: inserted=%d updated=%d unchanged=%d reindexed=%d orphaned=%d mass=%d concordance=+%d/-%d digest=%s\n",
		rep.Book,
		len(rep.Inserted),
		len(rep.Updated),
		len(rep.Unchanged),
		len(rep.Reindexed),
		len(rep.Orphaned),
		rep.MassChanges,
		rep.ConcordanceUpserts,
		rep.ConcordanceDeletes,
		rep.SourceDigest,
	)
}

func printSweep(w io.Writer, rep *pipeline.SweepReport) {
	fmt.Fprintf(w, "ghost headwords deleted: %d\n", rep.Deleted)
	for _, g := range rep.Ghosts {
		if hints := rep.Respellings[g]; len(hints) > 0 {
			fmt.Fprintf(w, "  %s (maybe %v)\n", g, hints)
		} else {
			fmt.Fprintf(w, "  %s\n", g)
		}
	}
}
