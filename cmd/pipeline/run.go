package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"newsharvest/internal/log"
	"newsharvest/internal/pipeline"
)

var runCMD = &cobra.Command{
	Use:   "run",
	Short: "harvest news day by day",
	Long: `Harvest Google News results for a company, one day at a time.

Missing --subject / --start are asked for on stdin.
A subject with a builtin profile (e.g. Reliance) also matches its canonical
name, tickers, brands and key people unless the config file sets its own.
Without --csv, --sqlite or --notion the results are appended to news_results.csv.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHarvest(cmd)
	},
}

func init() {
	rootCMD.AddCommand(runCMD)

	f := runCMD.Flags()
	f.StringP("subject", "s", "", "company name to search for")
	f.String("start", "", "first day, DD-MM-YYYY or YYYY-MM-DD")
	f.String("end", "", "last day (inclusive), defaults to today")
	f.StringSlice("keyword", nil, "extra topical keywords (repeatable)")
	f.String("mode", "", "relevance mode `general/financial`")
	f.String("schema", "", "builtin schema name or path to a schema YAML")
	f.String("csv", "", "append results to this CSV file")
	f.String("sqlite", "", "upsert results into this sqlite database")
	f.Bool("notion", false, "write results to Notion (NOTION_TOKEN)")
	f.String("notion-database-id", "", "existing Notion database ID")
	f.String("notion-page-id", "", "parent page for a new Notion database")
	f.Bool("dry-run", false, "print results as a table instead of writing them")
	f.Int("concurrency", 0, "parallel article fetches per page")
	f.Int("max-pages", 0, "page limit per day, 0 means until exhausted")
	f.Bool("notify", false, "email the report when some days failed (EMAIL_*)")
}

func runHarvest(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := pipeline.LoadConfig(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	startArg, _ := cmd.Flags().GetString("start")
	endArg, _ := cmd.Flags().GetString("end")
	in := bufio.NewReader(cmd.InOrStdin())
	if cfg.Subject.Name == "" {
		cfg.Subject.Name = prompt(in, cmd.ErrOrStderr(), "Enter the stock name: ")
	}
	if startArg == "" {
		startArg = prompt(in, cmd.ErrOrStderr(), "Enter the start date (DD-MM-YYYY): ")
		if endArg == "" {
			endArg = prompt(in, cmd.ErrOrStderr(), "Enter the end date (DD-MM-YYYY, empty for today): ")
		}
	}

	cfg.Subject = cfg.Subject.WithBuiltinVocabulary()
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	start, end, err := pipeline.DateRange(startArg, endArg, time.Now())
	if err != nil {
		return err
	}

	schema, err := loadSchemaArg(cfg.Schema)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	opts := []pipeline.Option{
		pipeline.WithRand(rnd),
		pipeline.WithUserAgent(pipeline.PickUserAgent(rnd, cfg.UserAgents)),
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	useNotion, _ := cmd.Flags().GetBool("notion")
	persister, closeFn, err := buildPersister(ctx, cfg, cmd.OutOrStdout(), dryRun, useNotion, opts)
	if err != nil {
		return err
	}
	defer closeFn()

	orch, err := pipeline.NewOrchestrator(cfg, pipeline.Components{
		Schema:    schema,
		Localizer: buildLocalizer(cfg, opts),
		Persister: persister,
	}, opts...)
	if err != nil {
		return err
	}

	log.Logger.Info("start harvest",
		zap.String("subject", cfg.Subject.Name),
		zap.String("mode", string(cfg.Mode)),
		zap.String("schema", schema.Name),
		zap.String("start", start.Format("2006-01-02")),
		zap.String("end", end.Format("2006-01-02")))

	report, runErr := orch.Run(ctx, start, end)
	fmt.Fprint(cmd.ErrOrStderr(), report.Summary())

	if notify, _ := cmd.Flags().GetBool("notify"); notify && len(report.Failures()) > 0 {
		if err := notifyFailures(report, opts); err != nil {
			log.Logger.Error("send report email", zap.Error(err))
		}
	}
	return runErr
}

// applyFlags overrides config values with the flags that were set.
func applyFlags(cmd *cobra.Command, cfg *pipeline.PipelineConfig) {
	f := cmd.Flags()
	if f.Changed("subject") {
		cfg.Subject.Name, _ = f.GetString("subject")
	}
	if f.Changed("keyword") {
		kws, _ := f.GetStringSlice("keyword")
		cfg.Subject.Keywords = append(cfg.Subject.Keywords, kws...)
	}
	if f.Changed("mode") {
		mode, _ := f.GetString("mode")
		cfg.Mode = pipeline.RelevanceMode(strings.ToLower(mode))
	}
	if f.Changed("schema") {
		cfg.Schema, _ = f.GetString("schema")
	}
	if f.Changed("csv") {
		cfg.Output.CSVPath, _ = f.GetString("csv")
	}
	if f.Changed("sqlite") {
		cfg.Output.SQLitePath, _ = f.GetString("sqlite")
	}
	if f.Changed("notion-database-id") {
		cfg.Output.NotionDatabaseID, _ = f.GetString("notion-database-id")
	}
	if f.Changed("notion-page-id") {
		cfg.Output.NotionPageID, _ = f.GetString("notion-page-id")
	}
	if f.Changed("concurrency") {
		cfg.Concurrency, _ = f.GetInt("concurrency")
	}
	if f.Changed("max-pages") {
		cfg.MaxPagesPerDay, _ = f.GetInt("max-pages")
	}

	if ep := os.Getenv("TRANSLATE_ENDPOINT"); ep != "" {
		cfg.Translate.Endpoint = ep
	}
	if key := os.Getenv("TRANSLATE_API_KEY"); key != "" {
		cfg.Translate.APIKey = key
	}
}

func prompt(in *bufio.Reader, out io.Writer, label string) string {
	fmt.Fprint(out, label)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

// loadSchemaArg accepts either a builtin schema name or a file path.
func loadSchemaArg(nameOrPath string) (*pipeline.ExtractionSchema, error) {
	if _, err := os.Stat(nameOrPath); err == nil {
		return pipeline.LoadSchema(nameOrPath)
	}
	return pipeline.BuiltinSchema(nameOrPath)
}

func buildLocalizer(cfg *pipeline.PipelineConfig, opts []pipeline.Option) *pipeline.Localizer {
	if cfg.Translate.Endpoint == "" {
		return nil
	}
	return pipeline.NewLocalizer(pipeline.WhatlangDetector{}, pipeline.NewHTTPTranslator(cfg.Translate, opts...))
}

// buildPersister assembles the configured sinks. The returned func closes
// the sqlite database, if any.
func buildPersister(ctx context.Context,
	cfg *pipeline.PipelineConfig,
	stdout io.Writer,
	dryRun, useNotion bool,
	opts []pipeline.Option,
) (pipeline.Persister, func(), error) {
	noop := func() {}
	if dryRun {
		return pipeline.NewTablePersister(stdout), noop, nil
	}

	var sinks pipeline.MultiPersister
	closeFn := noop

	if cfg.Output.SQLitePath != "" {
		db, err := pipeline.OpenSQLite(cfg.Output.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		p, err := pipeline.NewSQLPersister(db)
		if err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		sinks = append(sinks, p)
		closeFn = func() {
			if err := db.Close(); err != nil {
				log.Logger.Warn("close sqlite", zap.Error(err))
			}
		}
	}

	if useNotion || cfg.Output.NotionDatabaseID != "" {
		if cfg.Output.NotionDatabaseID == "" {
			cfg.Output.NotionDatabaseID = os.Getenv("NOTION_DATABASE_ID")
		}
		if cfg.Output.NotionPageID == "" {
			cfg.Output.NotionPageID = os.Getenv("NOTION_PAGE_ID")
		}
		np, err := pipeline.NewNotionPersister(os.Getenv("NOTION_TOKEN"), cfg.Output.NotionDatabaseID, opts...)
		if err != nil {
			closeFn()
			return nil, noop, err
		}
		if np.DatabaseID() == "" {
			title := fmt.Sprintf("%s news", cfg.Subject.Name)
			if err := np.CreateDatabase(ctx, cfg.Output.NotionPageID, title); err != nil {
				closeFn()
				return nil, noop, err
			}
			log.Logger.Info("set NOTION_DATABASE_ID to reuse the database",
				zap.String("database_id", np.DatabaseID()))
		}
		sinks = append(sinks, np)
	}

	if cfg.Output.CSVPath != "" || len(sinks) == 0 {
		path := cfg.Output.CSVPath
		if path == "" {
			path = pipeline.DefaultCSVPath
		}
		sinks = append(sinks, pipeline.NewCSVPersister(path))
	}

	if len(sinks) == 1 {
		return sinks[0], closeFn, nil
	}
	return sinks, closeFn, nil
}

func notifyFailures(report *pipeline.RunReport, opts []pipeline.Option) error {
	sender, err := pipeline.NewEmailSender(
		os.Getenv("EMAIL_FROM"),
		os.Getenv("EMAIL_PASSWORD"),
		os.Getenv("EMAIL_TO"),
		opts...,
	)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return sender.SendRunReport(ctx, report)
}
