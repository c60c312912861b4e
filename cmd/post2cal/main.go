package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"post2cal/internal/analyze"
	"post2cal/internal/calendar"
	"post2cal/internal/capture"
	"post2cal/internal/config"
	appLog "post2cal/internal/log"
	"post2cal/internal/model"
	"post2cal/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	serve      bool
	text       string
	postURL    string
	postedAt   string
	captureURL string
	printICS   bool
	debug      bool
}

func main() {
	appLog.Info("post2cal starting", "version", "0.1.0")

	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"model", conf.Model,
		"timezone", conf.Timezone,
		"calendar_host", conf.CalendarHost,
		"api_key_set", conf.APIKey != "",
		"serve", flags.serve,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	analyzer := analyze.New(conf)
	resolver := calendar.NewResolver(conf)

	if flags.serve {
		capturer := func(ctx context.Context, url string) (model.RawPost, error) {
			return capture.CapturePost(ctx, capture.Options{URL: url})
		}
		srv := web.NewServer(conf, analyzer, resolver, capturer)
		if err := web.StartServer(ctx, srv); err != nil {
			appLog.Error("HTTP server failed", err)
			os.Exit(1)
		}
		appLog.Info("post2cal exiting")
		return
	}

	post, err := resolvePost(ctx, flags)
	if err != nil {
		appLog.Error("no post to analyze", err)
		flag.Usage()
		os.Exit(2)
	}

	if err := runOnce(ctx, analyzer, resolver, post, flags.printICS); err != nil {
		appLog.Error("analysis failed", err)
		os.Exit(1)
	}
}

// resolvePost builds the RawPost for one-shot mode, either from the -text /
// -url / -posted-at flags or by scraping -capture.
func resolvePost(ctx context.Context, flags flagConfig) (model.RawPost, error) {
	if flags.captureURL != "" {
		return capture.CapturePost(ctx, capture.Options{URL: flags.captureURL})
	}
	if flags.text == "" {
		return model.RawPost{}, fmt.Errorf("either -text or -capture is required")
	}
	return model.RawPost{
		Text:     flags.text,
		URL:      flags.postURL,
		PostedAt: flags.postedAt,
	}, nil
}

// runOnce analyzes a single post and prints the calendar link (or the ICS
// document) to stdout.
func runOnce(ctx context.Context, analyzer *analyze.Analyzer, resolver *calendar.Resolver, post model.RawPost, printICS bool) error {
	result, err := analyzer.Analyze(ctx, post.Text)
	if err != nil {
		return err
	}

	appLog.Info("analysis completed",
		"date_count", len(result.Dates),
		"has_until", result.HasUntilExpression,
	)

	if printICS {
		interval, ok := resolver.Resolve(result.Dates, post.PostedAt, result.HasUntilExpression)
		if !ok {
			return fmt.Errorf("no resolvable dates for ICS export")
		}
		fmt.Print(resolver.BuildICS(result.Summary, post.Text, post.URL, interval))
		return nil
	}

	fmt.Println(resolver.BuildURL(result.Summary, post.Text, post.URL, result.Dates, post.PostedAt, result.HasUntilExpression))
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", defaultConfigPath(), "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.serve, "serve", false, "Run the HTTP API server")
	flag.StringVar(&cfg.text, "text", "", "Post text to analyze (one-shot mode)")
	flag.StringVar(&cfg.postURL, "url", "", "Post source URL (one-shot mode)")
	flag.StringVar(&cfg.postedAt, "posted-at", "", "Post publish time, ISO 8601 (one-shot mode)")
	flag.StringVar(&cfg.captureURL, "capture", "", "Scrape the post from this URL instead of -text")
	flag.BoolVar(&cfg.printICS, "ics", false, "Print an iCalendar document instead of the calendar link")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/post2cal/config.yaml"
	}
	return "./config.yaml"
}
