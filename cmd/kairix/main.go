// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/poiesic/kairix"
	"github.com/poiesic/kairix/config"
	"github.com/poiesic/kairix/core"
	"github.com/poiesic/kairix/ingestion"
	"github.com/poiesic/kairix/synthesis"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "kairix",
		Usage:     "Synthesize and ingest conversational memory",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"KAIRIX_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"KAIRIX_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Also write JSON logs to this file",
				EnvVars: []string{"KAIRIX_LOG_FILE"},
			},
		},
		Before: setupLogger,
		After:  closeLogger,
		Commands: []*cli.Command{
			{
				Name:   "bootstrap",
				Usage:  "Install graph constraints and the vector index",
				Action: bootstrapCommand,
			},
			{
				Name:   "ingest",
				Usage:  "Run one conversation ingestion job",
				Action: ingestCommand,
				Flags:  ingestFlags(),
			},
			{
				Name:   "schedule",
				Usage:  "Run ingestion on a cron schedule until interrupted",
				Action: scheduleCommand,
				Flags: append(ingestFlags(), &cli.StringFlag{
					Name:  "schedule",
					Usage: "Cron expression (defaults to KAIRIX_CRON_SCHEDULE or @hourly)",
				}),
			},
			{
				Name:   "synthesize",
				Usage:  "Turn source documents into memory shards",
				Action: synthesizeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "agent",
						Aliases: []string{"a"},
						Usage:   "Agent that owns the shards; also the key namespace",
					},
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "Only process chunks whose key starts with this prefix",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of parallel workers",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts per model call",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 500 * time.Millisecond,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 10,
					},
				},
			},
			{
				Name:   "verify",
				Usage:  "Check every memory shard for missing links",
				Action: verifyCommand,
			},
			{
				Name:      "load-gpt",
				Usage:     "Import a ChatGPT conversations export",
				ArgsUsage: "<conversations.json>",
				Action:    loadGPTCommand,
			},
			{
				Name:   "jobs",
				Usage:  "List recent ingestion jobs",
				Action: jobsCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of jobs to show",
						Value: 10,
					},
				},
			},
			{
				Name:      "job",
				Usage:     "Show one ingestion job and its conversations",
				ArgsUsage: "<job id>",
				Action:    jobCommand,
			},
			{
				Name:      "recall",
				Usage:     "Find memory shards similar to a query",
				ArgsUsage: "<query>",
				Action:    recallCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 5,
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Minimum cosine similarity",
						Value: 0.6,
					},
				},
			},
		},
	}
}

func ingestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "Directory of conversation files (defaults to CHAT_LOGS_PATH)",
		},
		&cli.StringFlag{
			Name:  "alert",
			Usage: "Where failure alerts go: wall or log",
			Value: "wall",
		},
	}
}

var logCleanup = func() error { return nil }

func setupLogger(c *cli.Context) error {
	level, err := config.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logger, cleanup := config.SetupLogger(level, c.String("log-file"))
	slog.SetDefault(logger)
	logCleanup = cleanup
	return nil
}

func closeLogger(c *cli.Context) error {
	return logCleanup()
}

func openSystem(c *cli.Context) (*kairix.System, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	sys, err := kairix.Open(c.Context, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open kairix: %w", err)
	}
	return sys, nil
}

func bootstrapCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close(c.Context)

	if err := sys.Bootstrap(c.Context); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Bootstrapped %s graph store\n", sys.Config().Graph.Backend)
	return nil
}

func newJob(c *cli.Context, sys *kairix.System) (*ingestion.Job, string, error) {
	dir := c.String("dir")
	if dir == "" {
		dir = sys.Config().Ingestion.Dir
	}
	if dir == "" {
		return nil, "", errors.New("conversation directory is required (--dir or CHAT_LOGS_PATH)")
	}

	var alerter ingestion.Alerter
	switch c.String("alert") {
	case "wall":
		alerter = ingestion.NewWallAlerter(slog.Default())
	case "log":
		alerter = ingestion.NewLogAlerter(slog.Default())
	default:
		return nil, "", fmt.Errorf("invalid alert target %q: must be wall or log", c.String("alert"))
	}

	job, err := sys.NewIngestionJob(ingestion.WithAlerter(alerter))
	if err != nil {
		return nil, "", err
	}
	return job, dir, nil
}

func ingestCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close(c.Context)

	job, dir, err := newJob(c, sys)
	if err != nil {
		return err
	}

	result, err := job.Run(c.Context, dir)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	if result == nil {
		fmt.Fprintln(c.App.Writer, "Ingestion is disabled (CRON_ENABLED=false)")
		return nil
	}
	printJob(c.App.Writer, result)
	return nil
}

func scheduleCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close(c.Context)

	job, dir, err := newJob(c, sys)
	if err != nil {
		return err
	}

	spec := c.String("schedule")
	if spec == "" {
		spec = sys.Config().Ingestion.Schedule
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cronLogger := &schedulerLogger{logger: slog.Default().With("component", "cron")}
	scheduler := cron.New(cron.WithLogger(cronLogger), cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
	if _, err := scheduler.AddFunc(spec, func() {
		if _, err := job.Run(ctx, dir); err != nil {
			slog.Error("scheduled ingestion failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	slog.Info("ingestion scheduled", "schedule", spec, "dir", dir)
	scheduler.Start()
	<-ctx.Done()

	slog.Info("stopping scheduler, waiting for running job")
	<-scheduler.Stop().Done()
	return nil
}

// schedulerLogger adapts slog.Logger to the cron.Logger interface.
type schedulerLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = (*schedulerLogger)(nil)

func (l *schedulerLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *schedulerLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

func synthesizeCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close(c.Context)

	agent := c.String("agent")
	if agent == "" {
		agent = sys.Config().Synthesis.Agent
	}
	prefix := c.String("prefix")
	if prefix == "" {
		prefix = sys.Config().Synthesis.KeyPrefix
	}

	opts := []synthesis.Option{
		synthesis.WithRetry(c.Int("max-retries"), c.Duration("retry-delay")),
		synthesis.WithProgress(os.Stderr, c.Int("report-interval")),
	}
	if n := c.Int("workers"); n > 0 {
		opts = append(opts, synthesis.WithWorkers(n))
	}

	orch, err := sys.NewOrchestrator(opts...)
	if err != nil {
		return err
	}
	defer orch.Release()

	fmt.Fprintf(os.Stderr, "Agent: %s\n", agent)
	if prefix != "" {
		fmt.Fprintf(os.Stderr, "Key prefix: %s\n", prefix)
	}
	fmt.Fprintln(os.Stderr)

	result, err := orch.Synthesize(c.Context, agent, prefix)
	if err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Chunks:  %d\n", result.Total)
	fmt.Fprintf(w, "Created: %d\n", len(result.Shards))
	fmt.Fprintf(w, "Skipped: %d\n", result.Skipped)
	fmt.Fprintf(w, "Failed:  %d\n", len(result.Failed))
	for _, f := range result.Failed {
		fmt.Fprintf(w, "  %s\n", f.Error())
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d chunks failed; run synthesize again to retry them", len(result.Failed))
	}
	return nil
}

func verifyCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close(c.Context)

	orch, err := sys.NewOrchestrator()
	if err != nil {
		return err
	}
	defer orch.Release()

	report, err := orch.Verify(c.Context)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Checked %d shards\n", report.Checked)
	for _, b := range report.Broken {
		fmt.Fprintf(w, "  %s: %v\n", b.UID, b.Problems)
	}
	if !report.OK() {
		return fmt.Errorf("%d broken shards", len(report.Broken))
	}
	return nil
}

func loadGPTCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one export file is required")
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close(c.Context)

	result, err := sys.LoadExport(c.Context, c.Args().First())
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Conversations: %d\nCreated: %d\nSkipped: %d\n",
		result.Conversations, result.Created, result.Skipped)
	return nil
}

func jobsCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close(c.Context)

	jobs, err := sys.AuditStore().GetJobHistory(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tFOUND\tPROCESSED\tERRORS")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
			j.ID, j.StartTime.Format(time.RFC3339), j.Status, j.FilesFound, j.FilesProcessed, j.ErrorsCount)
	}
	return tw.Flush()
}

func jobCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("a job id is required")
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close(c.Context)

	details, err := sys.AuditStore().GetJobDetails(c.Context, c.Args().First())
	if err != nil {
		return err
	}

	printJob(c.App.Writer, details.Job)
	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONVERSATION\tSTATUS\tSTAGE\tERROR")
	for _, s := range details.Statuses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ConversationID, s.Status, s.Stage, s.ErrorMessage)
	}
	return tw.Flush()
}

func recallCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("a query is required")
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close(c.Context)

	searcher, err := sys.NewSearcher()
	if err != nil {
		return err
	}

	query := c.Args().First()
	for _, arg := range c.Args().Tail() {
		query += " " + arg
	}
	results, err := searcher.Recall(c.Context, query, c.Int("limit"), float32(c.Float64("min-score")))
	if err != nil {
		return err
	}

	w := c.App.Writer
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching memories")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. [%.3f] %s\n   %s\n", i+1, r.Score, r.Shard.UID, r.Shard.Contents)
	}
	return nil
}

func printJob(w io.Writer, job *core.CronJob) {
	fmt.Fprintf(w, "Job:       %s\n", job.ID)
	fmt.Fprintf(w, "Status:    %s\n", job.Status)
	fmt.Fprintf(w, "Started:   %s\n", job.StartTime.Format(time.RFC3339))
	if job.EndTime != nil {
		fmt.Fprintf(w, "Ended:     %s\n", job.EndTime.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Files:     %d found, %d processed, %d errors\n", job.FilesFound, job.FilesProcessed, job.ErrorsCount)
	if len(job.ErrorDetails) > 0 {
		fmt.Fprintf(w, "Details:   %s\n", job.ErrorDetails)
	}
}
