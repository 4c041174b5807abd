package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lotas/tabgenius/internal/applog"
	"github.com/lotas/tabgenius/internal/config"
	"github.com/lotas/tabgenius/internal/control"
	"github.com/lotas/tabgenius/internal/decide"
	"github.com/lotas/tabgenius/internal/domain"
	"github.com/lotas/tabgenius/internal/engine"
	"github.com/lotas/tabgenius/internal/export"
	"github.com/lotas/tabgenius/internal/firefox"
	"github.com/lotas/tabgenius/internal/plan"
	"github.com/lotas/tabgenius/internal/server"
	"github.com/lotas/tabgenius/internal/storage"
	"github.com/lotas/tabgenius/internal/tui"
	"github.com/lotas/tabgenius/internal/types"
	"github.com/lotas/tabgenius/internal/watcher"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		runServe(nil)
		return
	}
	switch args[0] {
	case "serve":
		runServe(args[1:])
	case "plan":
		runPlan(args[1:])
	case "provider":
		runProvider(args[1:])
	case "history":
		runHistory(args[1:])
	case "profiles":
		runProfiles()
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", args[0])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Print(`tabgenius: automatic tab grouping for the browser extension

Usage:
  tabgenius serve                                      Run the grouping daemon (default)
    --port <n>             WebSocket port (default: 19192, env TABGENIUS_PORT)
    --tui                  Show live placements in the terminal
    --verbose              Log to stderr instead of the log file

  tabgenius plan                                       Preview grouping of a saved Firefox session
    --profile <name>       Firefox profile name (env TABGENIUS_PROFILE)
    --ai                   Categorize with the active AI provider instead of by domain
    --format <f>           text (default), json or markdown
    --out <file>           Output file path (default: stdout)

  tabgenius provider show                              Show the active provider and stored configs
  tabgenius provider use <kind>                        Select azure-openai or siliconflow
  tabgenius provider set <kind>                        Validate and store a provider config
    --api-key <key>        API key
    --endpoint <url>       Endpoint (Azure resource URL; SiliconFlow default applies)
    --deployment <name>    Azure deployment name
    --model <id>           SiliconFlow model id
    --no-validate          Store without sending a test request

  tabgenius history                                    Show recent placements
    --limit <n>            Number of entries (default: 50)
    --purge-days <n>       Delete entries older than n days first

  tabgenius profiles                                   List Firefox profiles

Environment:
  TABGENIUS_DB, TABGENIUS_LOG_DIR, TABGENIUS_SKIP_URLS, TABGENIUS_POLL_INTERVAL,
  TABGENIUS_SEED are read from the environment or a .env file.
`)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", a...)
	os.Exit(1)
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fatalf("%v", err)
	}
	return cfg
}

func openDB(cfg *config.Config) *sql.DB {
	db, err := storage.OpenDB(cfg.DBPath)
	if err != nil {
		fatalf("open database: %v", err)
	}
	return db
}

func runServe(args []string) {
	cfg := loadConfig()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", cfg.Port, "WebSocket port")
	withTUI := fs.Bool("tui", false, "Show live placements in the terminal")
	verbose := fs.Bool("verbose", false, "Log to stderr instead of the log file")
	fs.Parse(args)

	if *verbose && !*withTUI {
		applog.SetOutput(os.Stderr)
	} else if err := applog.Init(cfg.LogDir); err != nil {
		fatalf("init log: %v", err)
	}
	defer applog.Close()

	db := openDB(cfg)
	defer db.Close()
	store := storage.NewStore(db)

	blank, err := domain.NewBlankMatcher(cfg.SkipURLs...)
	if err != nil {
		fatalf("TABGENIUS_SKIP_URLS: %v", err)
	}

	srv := server.New(*port)
	eng := engine.New(srv, store,
		engine.WithPalette(types.NewPalette(cfg.Seed)),
		engine.WithBlankMatcher(blank),
	)
	w := watcher.New(srv, eng, watcher.WithPollInterval(cfg.PollInterval))
	dispatcher := control.New(srv, eng, store, w)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		dispatcher.Run(ctx)
	}()

	var serveErr error
	if *withTUI {
		serve := func() error { return srv.ListenAndServe(ctx) }
		model := tui.NewModel(w.Outcomes(), srv.Connected, eng.Snapshot, serve, srv.Port())
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			serveErr = err
		}
	} else {
		fmt.Fprintf(os.Stderr, "Listening for the extension on 127.0.0.1:%d\n", srv.Port())
		serveErr = srv.ListenAndServe(ctx)
	}

	stop()
	<-dispatched
	w.Wait()
	applog.Info("serve.stopped")
	if serveErr != nil {
		fatalf("%v", serveErr)
	}
}

func runPlan(args []string) {
	cfg := loadConfig()

	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	profileName := fs.String("profile", cfg.Profile, "Firefox profile name")
	useAI := fs.Bool("ai", false, "Categorize with the active AI provider")
	format := fs.String("format", "text", "Output format: text, json or markdown")
	outFile := fs.String("out", "", "Output file path (default: stdout)")
	fs.Parse(args)

	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		fatalf("discover profiles: %v", err)
	}
	profile, err := firefox.SelectProfile(profiles, *profileName)
	if err != nil {
		fatalf("%v", err)
	}
	session, err := firefox.ReadSessionFile(profile.Path)
	if err != nil {
		fatalf("read session: %v", err)
	}
	session.Profile = profile

	blank, err := domain.NewBlankMatcher(cfg.SkipURLs...)
	if err != nil {
		fatalf("TABGENIUS_SKIP_URLS: %v", err)
	}
	opts := []engine.Option{
		engine.WithPalette(types.NewPalette(cfg.Seed)),
		engine.WithBlankMatcher(blank),
	}

	mode := plan.ModeDomain
	var configs plan.ConfigSource
	if *useAI {
		mode = plan.ModeAI
		db := openDB(cfg)
		defer db.Close()
		configs = storage.NewStore(db)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := plan.Run(ctx, session, mode, configs, opts...)
	if err != nil {
		fatalf("%v", err)
	}

	var output string
	switch *format {
	case "text":
		output = fmt.Sprintf("Profile: %s\n\n%s", profile.Name, plan.Render(res))
	case "json":
		output, err = export.JSON(res)
		if err != nil {
			fatalf("export JSON: %v", err)
		}
	case "markdown", "md":
		output = export.Markdown(res)
	default:
		fatalf("unknown format %q", *format)
	}

	if *outFile != "" {
		if err := os.WriteFile(*outFile, []byte(output), 0o644); err != nil {
			fatalf("write %s: %v", *outFile, err)
		}
		return
	}
	fmt.Print(output)
}

func runProvider(args []string) {
	if len(args) == 0 {
		fatalf("usage: tabgenius provider show|use|set")
	}
	cfg := loadConfig()
	db := openDB(cfg)
	defer db.Close()

	switch args[0] {
	case "show":
		providerShow(db)
	case "use":
		if len(args) < 2 {
			fatalf("usage: tabgenius provider use <azure-openai|siliconflow>")
		}
		kind, err := decide.ParseKind(args[1])
		if err != nil {
			fatalf("%v", err)
		}
		if err := storage.SetActiveProvider(db, kind); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Active provider: %s\n", kind)
	case "set":
		providerSet(db, args[1:])
	default:
		fatalf("unknown provider command %q", args[0])
	}
}

func providerShow(db *sql.DB) {
	active, err := storage.GetActiveProvider(db)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Active provider: %s\n", active)
	for _, kind := range []decide.Kind{decide.KindAzure, decide.KindSilicon} {
		pc, err := storage.GetProviderConfig(db, kind)
		if errors.Is(err, decide.ErrConfigMissing) {
			fmt.Printf("\n%s: not configured\n", kind)
			continue
		}
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("\n%s:\n", kind)
		switch c := pc.(type) {
		case decide.AzureConfig:
			fmt.Printf("  api key:    %s\n  endpoint:   %s\n  deployment: %s\n", maskKey(c.APIKey), c.Endpoint, c.Deployment)
		case decide.SiliconConfig:
			fmt.Printf("  api key:  %s\n  endpoint: %s\n  model:    %s\n", maskKey(c.APIKey), c.Endpoint, c.Model)
		}
	}
}

func providerSet(db *sql.DB, args []string) {
	fs := flag.NewFlagSet("provider set", flag.ExitOnError)
	apiKey := fs.String("api-key", "", "API key")
	endpoint := fs.String("endpoint", "", "Endpoint URL")
	deployment := fs.String("deployment", "", "Azure deployment name")
	model := fs.String("model", "", "SiliconFlow model id")
	noValidate := fs.Bool("no-validate", false, "Store without a test request")
	fs.Parse(reorderArgs(args))

	if fs.NArg() != 1 {
		fatalf("usage: tabgenius provider set <azure-openai|siliconflow> [flags]")
	}
	kind, err := decide.ParseKind(fs.Arg(0))
	if err != nil {
		fatalf("%v", err)
	}

	var pc decide.Config
	switch kind {
	case decide.KindAzure:
		pc = decide.AzureConfig{APIKey: *apiKey, Endpoint: *endpoint, Deployment: *deployment}
	case decide.KindSilicon:
		pc = decide.SiliconConfig{APIKey: *apiKey, Endpoint: *endpoint, Model: *model}
	}
	pc = pc.Normalized()
	if err := pc.Check(); err != nil {
		fatalf("%v", err)
	}

	if !*noValidate {
		provider, err := decide.New(pc)
		if err != nil {
			fatalf("%v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		fmt.Fprintf(os.Stderr, "Validating %s...\n", kind)
		if err := provider.Validate(ctx); err != nil {
			fatalf("%v", err)
		}
	}

	if err := storage.SaveProviderConfig(db, pc); err != nil {
		fatalf("%v", err)
	}
	if err := storage.SetActiveProvider(db, kind); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Saved %s config; it is now the active provider.\n", kind)
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", 8)
}

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Number of entries")
	purgeDays := fs.Int("purge-days", 0, "Delete entries older than n days first")
	fs.Parse(args)

	cfg := loadConfig()
	db := openDB(cfg)
	defer db.Close()

	if *purgeDays > 0 {
		n, err := storage.PurgePlacements(db, time.Now().AddDate(0, 0, -*purgeDays))
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Fprintf(os.Stderr, "Purged %d entries.\n", n)
	}

	entries, err := storage.ListPlacements(db, *limit)
	if err != nil {
		fatalf("%v", err)
	}
	if len(entries) == 0 {
		fmt.Println("No placements recorded.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMODE\tOUTCOME\tTAB\tGROUP\tHOST\tERROR")
	for _, p := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			p.CreatedAt.Local().Format("2006-01-02 15:04:05"), p.Mode, p.Outcome, p.TabID,
			p.GroupTitle, p.Host, p.Error)
	}
	tw.Flush()
}

func runProfiles() {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		fatalf("discover Firefox profiles: %v", err)
	}
	if len(profiles) == 0 {
		fatalf("no Firefox profiles found")
	}
	for _, p := range profiles {
		suffix := ""
		if p.IsDefault {
			suffix = " [default]"
		}
		fmt.Printf("%s (%s)%s\n", p.Name, p.Path, suffix)
	}
}

// reorderArgs moves flag arguments before positional arguments so that
// flag.Parse handles them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if strings.HasPrefix(args[i], "-") {
			flags = append(flags, args[i])
			if !strings.Contains(args[i], "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") && !isBoolFlag(args[i]) {
				flags = append(flags, args[i+1])
				i++
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}

func isBoolFlag(arg string) bool {
	return strings.TrimLeft(arg, "-") == "no-validate"
}
