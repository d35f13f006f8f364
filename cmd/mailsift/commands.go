package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/mailsift"
	"github.com/poiesic/mailsift/config"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/index"
	"github.com/poiesic/mailsift/reindex"
	"github.com/poiesic/mailsift/storage"
)

const dateLayout = "2006-01-02"

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.Bool("no-keyring") {
		return cfg, nil
	}

	ring, err := config.OpenKeyring(cfg.DataDir)
	if err != nil {
		slog.Warn("keyring unavailable, using configured passwords only", "err", err)
		return cfg, nil
	}
	if err := cfg.ResolveSecrets(ring); err != nil {
		slog.Warn("could not read passwords from keyring", "err", err)
	}
	return cfg, nil
}

func openSystem(c *cli.Context) (*mailsift.System, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	sys, err := mailsift.Open(cfg, mailsift.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to open mailsift: %w", err)
	}
	return sys, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCommand(c *cli.Context) error {
	ctx, stop := signalContext()
	defer stop()

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	if addr := c.String("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "addr", addr, "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		slog.Info("serving metrics", "addr", addr)
	}

	return sys.Run(ctx)
}

func pollCommand(c *cli.Context) error {
	ctx, stop := signalContext()
	defer stop()

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	stats, err := sys.PollOnce(ctx)
	if stats != nil {
		fmt.Printf("Fetched %d, new %d, duplicates %d, invalid %d\n",
			stats.Fetched, stats.New, stats.Duplicates, stats.Invalid)
	}
	sys.Wait()
	return err
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func parseCategories(values []string) ([]core.Category, error) {
	var out []core.Category
	for _, v := range values {
		c := core.Category(strings.ToLower(strings.TrimSpace(v)))
		if err := core.ValidateCategory(c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseImportances(values []string) ([]core.Importance, error) {
	var out []core.Importance
	for _, v := range values {
		i := core.Importance(strings.ToLower(strings.TrimSpace(v)))
		if err := core.ValidateImportance(i); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

func parseStates(values []string) ([]core.ProcessingState, error) {
	var out []core.ProcessingState
	for _, v := range values {
		s := core.ProcessingState(strings.ToLower(strings.TrimSpace(v)))
		switch s {
		case core.StatePending, core.StateProcessed, core.StateFailed:
			out = append(out, s)
		default:
			return nil, fmt.Errorf("invalid state %q", v)
		}
	}
	return out, nil
}

func indexFilter(c *cli.Context) (*index.Filter, error) {
	categories, err := parseCategories(c.StringSlice("category"))
	if err != nil {
		return nil, err
	}
	importances, err := parseImportances(c.StringSlice("importance"))
	if err != nil {
		return nil, err
	}
	since, err := parseDate(c.String("since"))
	if err != nil {
		return nil, err
	}
	until, err := parseDate(c.String("until"))
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 && len(importances) == 0 && since.IsZero() && until.IsZero() {
		return nil, nil
	}
	return &index.Filter{Categories: categories, Importances: importances, Since: since, Until: until}, nil
}

func recordFilter(c *cli.Context) (*storage.RecordFilter, error) {
	f, err := indexFilter(c)
	if err != nil {
		return nil, err
	}
	states, err := parseStates(c.StringSlice("state"))
	if err != nil {
		return nil, err
	}
	filter := &storage.RecordFilter{States: states, Limit: c.Int("limit"), Offset: c.Int("offset")}
	if f != nil {
		filter.Categories = f.Categories
		filter.Importances = f.Importances
		filter.Since = f.Since
		filter.Until = f.Until
	}
	return filter, nil
}

func joinArgs(c *cli.Context, name string) (string, error) {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return text, nil
}

func idArg(c *cli.Context) (core.ID, error) {
	if c.NArg() != 1 {
		return 0, errors.New("exactly one record ID is required")
	}
	return core.ParseID(c.Args().First())
}

func searchCommand(c *cli.Context) error {
	query, err := joinArgs(c, "query")
	if err != nil {
		return err
	}
	filter, err := indexFilter(c)
	if err != nil {
		return err
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	var monitor *verboseMonitor
	if c.Bool("verbose") {
		monitor = newVerboseMonitor(os.Stderr)
	}
	results, err := sys.Search(c.Context, query, c.Int("k"), filter, monitorOrNil(monitor))
	if err != nil {
		return err
	}

	fmt.Printf("Found %d results\n", len(results))
	for i, r := range results {
		fmt.Printf("%d. [%0.3f] %s  %s\n", i+1, r.Score, r.Record.Id, r.Record.Subject)
		fmt.Printf("   %s | %s | %s/%s\n", r.Record.Sender, r.Record.ReceivedAt.Format(dateLayout),
			r.Record.Category, r.Record.Importance)
		fmt.Printf("   %s\n", r.Record.Summary)
	}
	return nil
}

func askCommand(c *cli.Context) error {
	question, err := joinArgs(c, "question")
	if err != nil {
		return err
	}
	filter, err := indexFilter(c)
	if err != nil {
		return err
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	answer, err := sys.Answer(c.Context, question, filter)
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, r := range answer.Sources {
			fmt.Printf("[%d] %s  %s (%s)\n", i+1, r.Record.Id, r.Record.Subject, r.Record.Sender)
		}
	}
	return nil
}

func listCommand(c *cli.Context) error {
	filter, err := recordFilter(c)
	if err != nil {
		return err
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	records, err := sys.ListRecords(c.Context, filter)
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Printf("%s  %s  %-9s %-13s %-6s %s\n", r.Id, r.ReceivedAt.Format("2006-01-02 15:04"),
			r.State, r.Category, r.Importance, r.Subject)
	}
	return nil
}

func showCommand(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	record, raw, err := sys.GetRecord(c.Context, id)
	if err != nil {
		return err
	}
	printRecord(os.Stdout, record, raw)
	return nil
}

func reprocessCommand(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	record, err := sys.Reprocess(c.Context, id)
	if record != nil {
		printRecord(os.Stdout, record, nil)
	}
	return err
}

func statsCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	stats, err := sys.Stats(c.Context)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	printStats(os.Stdout, stats)
	return nil
}

func rebuildIndexCommand(c *cli.Context) error {
	ctx, stop := signalContext()
	defer stop()

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	var progress reindex.Progress
	switch {
	case c.Bool("quiet"):
	case c.Int("report-interval") > 0:
		progress = reindex.NewProgressTracker(os.Stderr, c.Int("report-interval"))
	default:
		progress = newBarProgress(os.Stderr)
	}
	result, err := sys.RebuildIndex(ctx, progress)
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	fmt.Printf("Indexed %d records (%d stamped, %d refreshed) in %s\n", result.Records, result.Stamped, result.Refreshed, result.Elapsed.Round(time.Millisecond))
	return nil
}

func retryFailedCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	n, err := sys.RetryFailed(c.Context)
	if err != nil {
		return err
	}
	sys.Wait()
	fmt.Printf("Resubmitted %d records\n", n)
	return nil
}

func testNotificationCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	if err := sys.TestNotification(c.Context); err != nil {
		return fmt.Errorf("test notification failed: %w", err)
	}
	fmt.Println("Test notification sent")
	return nil
}

func configPath(c *cli.Context) string {
	if p := c.String("config"); p != "" {
		return p
	}
	return config.DefaultPath()
}

func configInitCommand(c *cli.Context) error {
	path := configPath(c)
	if err := config.Write(path, config.Default(), c.Bool("force")); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func configShowCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	cfg.Mailbox.Password = redact(cfg.Mailbox.Password)
	cfg.Notify.SMTP.Password = redact(cfg.Notify.SMTP.Password)
	cfg.AI.APIKey = redact(cfg.AI.APIKey)

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

func redact(secret string) string {
	if secret == "" || secret == "none" {
		return secret
	}
	return "********"
}

func credentialKey(c *cli.Context) (string, error) {
	key := c.Args().First()
	switch key {
	case config.KeyIMAPPassword, config.KeySMTPPassword:
		return key, nil
	}
	return "", fmt.Errorf("unknown credential %q: must be %s or %s", key, config.KeyIMAPPassword, config.KeySMTPPassword)
}

func openKeyring(c *cli.Context) (*config.Keyring, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	return config.OpenKeyring(cfg.DataDir)
}

func credentialSetCommand(c *cli.Context) error {
	key, err := credentialKey(c)
	if err != nil {
		return err
	}
	ring, err := openKeyring(c)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Enter %s: ", key)
	value, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && value == "" {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	value = strings.TrimRight(value, "\r\n")
	if value == "" {
		return errors.New("empty value")
	}
	if err := ring.Set(key, value); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Stored %s\n", key)
	return nil
}

func credentialDeleteCommand(c *cli.Context) error {
	key, err := credentialKey(c)
	if err != nil {
		return err
	}
	ring, err := openKeyring(c)
	if err != nil {
		return err
	}
	return ring.Delete(key)
}
