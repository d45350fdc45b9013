// cmd/xyzscan correlates several sources through the XYZ pattern search.
// Sources are either symbols analyzed from SQLite (order = flag order) or
// explicit candidate offset lists.
//
// Usage:
//
//	go run ./cmd/xyzscan --symbols=EURUSD,GBPUSD,USDJPY,AUDUSD --day=2026-03-10
//	go run ./cmd/xyzscan --sources="1,-3;2;3,1;0"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"candleseq/config"
	"candleseq/internal/analysis"
	"candleseq/internal/logger"
	"candleseq/internal/notification"
	"candleseq/internal/pattern"
	redisstore "candleseq/internal/store/redis"
	sqlitestore "candleseq/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cfg := config.Load()

	flag.StringVar(&cfg.Symbols, "symbols", cfg.Symbols, "Comma-separated symbols, in source order")
	flag.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "Path to SQLite database")
	flag.StringVar(&cfg.Profile, "profile", cfg.Profile, "Timeframe profile")
	flag.StringVar(&cfg.ProfileFile, "profiles", cfg.ProfileFile, "YAML file with profile overrides")
	flag.StringVar(&cfg.Preset, "preset", cfg.Preset, "Step preset")
	flag.StringVar(&cfg.Detectors, "detectors", cfg.Detectors, "Comma-separated detectors: iou, iov")
	flag.StringVar(&cfg.Limit, "limit", cfg.Limit, "Body magnitude limit")
	flag.StringVar(&cfg.Tolerance, "tolerance", cfg.Tolerance, "Tolerance band half-width")
	flag.IntVar(&cfg.MaxBranches, "max-branches", cfg.MaxBranches, "Live branch cap per source")
	sourcesStr := flag.String("sources", "", "Explicit candidate offsets, sources separated by ';' (skips SQLite)")
	dayStr := flag.String("day", "", "Trading day YYYY-MM-DD (default: latest anchor per symbol)")
	asJSON := flag.Bool("json", false, "Print the outcome as JSON")
	save := flag.Bool("save", false, "Store reports and patterns in SQLite")
	publish := flag.Bool("publish", false, "Publish patterns to Redis (REDIS_ADDR)")
	notify := flag.Bool("notify", false, "Send alerts for complete patterns")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, batchID := logger.EnsureRunID(ctx)

	slogger := logger.Init("xyzscan", logger.ParseLevel(cfg.LogLevel))
	an := analysis.New(slogger, analysis.WithSearchOptions(pattern.Options{MaxBranches: cfg.MaxBranches}))

	var (
		out     pattern.Outcome
		reports []*analysis.Report
		err     error
	)
	if *sourcesStr != "" {
		sources, perr := parseSources(*sourcesStr)
		if perr != nil {
			log.Fatalf("[xyzscan] --sources: %v", perr)
		}
		out, err = an.Search(ctx, sources)
	} else {
		reports = analyzeSymbols(ctx, cfg, an, *dayStr)
		out, err = an.Correlate(ctx, reports)
	}
	if err != nil {
		log.Fatalf("[xyzscan] search: %v", err)
	}

	if *save {
		persist(ctx, cfg.SQLitePath, batchID, reports, out)
	}
	if *publish && cfg.RedisAddr != "" {
		pub, err := redisstore.New(redisstore.WriterConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[xyzscan] redis: %v", err)
		} else {
			if err := pub.PublishPatterns(ctx, batchID, out); err != nil {
				log.Printf("[xyzscan] publish: %v", err)
			}
			pub.Close()
		}
	}
	if *notify {
		sendAlerts(ctx, cfg, batchID, out)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)
		return
	}
	printOutcome(batchID, out)
}

// parseSources parses "1,-3;2;3,1;0" into unnamed sources S1..Sn.
func parseSources(s string) ([]pattern.Source, error) {
	var sources []pattern.Source
	for i, part := range strings.Split(s, ";") {
		src := pattern.Source{Name: "S" + strconv.Itoa(i+1)}
		for _, f := range strings.Split(part, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			n, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("source %d: invalid offset %q", i+1, f)
			}
			src.Offsets = append(src.Offsets, n)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func analyzeSymbols(ctx context.Context, cfg *config.Config, an *analysis.Analyzer, dayStr string) []*analysis.Report {
	symbols := cfg.ParseSymbols()
	if len(symbols) == 0 {
		log.Fatal("[xyzscan] no symbols")
	}
	profile, err := cfg.ResolveProfile()
	if err != nil {
		log.Fatalf("[xyzscan] %v", err)
	}
	preset, err := cfg.ParsePreset()
	if err != nil {
		log.Fatalf("[xyzscan] %v", err)
	}
	detectors, err := cfg.ParseDetectors()
	if err != nil {
		log.Fatalf("[xyzscan] %v", err)
	}
	var day time.Time
	if dayStr != "" {
		if day, err = time.Parse("2006-01-02", dayStr); err != nil {
			log.Fatalf("[xyzscan] --day: %v", err)
		}
	}

	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[xyzscan] sqlite open failed: %v", err)
	}
	defer reader.Close()

	reports := make([]*analysis.Report, 0, len(symbols))
	for _, sym := range symbols {
		series, err := reader.ReadSeries(ctx, sym, profile.Name, time.Time{}, time.Time{})
		if err != nil {
			log.Fatalf("[xyzscan] load %s: %v", sym, err)
		}
		rep, err := an.Analyze(ctx, analysis.Request{
			Source:    sym,
			Series:    series,
			Profile:   profile,
			Preset:    preset,
			Base:      -1,
			Day:       day,
			Detectors: detectors,
		})
		if err != nil {
			// Every source must contribute; a missing one changes the pattern.
			log.Fatalf("[xyzscan] %s: %v", sym, err)
		}
		fmt.Printf("%-8s candidates %v\n", sym, rep.Candidates)
		reports = append(reports, rep)
	}
	return reports
}

func persist(ctx context.Context, dbPath, batchID string, reports []*analysis.Report, out pattern.Outcome) {
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: dbPath})
	if err != nil {
		log.Printf("[xyzscan] sqlite writer: %v", err)
		return
	}
	defer w.Close()
	if len(reports) > 0 {
		if err := w.SaveReports(ctx, reports); err != nil {
			log.Printf("[xyzscan] save reports: %v", err)
		}
	}
	if err := w.SavePatterns(ctx, batchID, out); err != nil {
		log.Printf("[xyzscan] save patterns: %v", err)
	}
}

func sendAlerts(ctx context.Context, cfg *config.Config, batchID string, out pattern.Outcome) {
	var n notification.Notifier = notification.NewLogNotifier()
	if cfg.WebhookURL != "" {
		n = notification.NewWebhookNotifier(cfg.WebhookURL, 10*time.Second)
	}
	for _, a := range notification.PatternAlerts(batchID, out) {
		if err := n.Send(ctx, a); err != nil {
			log.Printf("[xyzscan] alert: %v", err)
		}
	}
}

func printOutcome(batchID string, out pattern.Outcome) {
	fmt.Printf("\nbatch %s: %d patterns (expanded %d branches)\n", batchID, len(out.Results), out.Expanded)
	if out.Capped {
		fmt.Println("WARNING: branch cap reached, results are partial")
	}
	for _, r := range out.Results {
		mark := " "
		if r.Complete {
			mark = "*"
		}
		fmt.Printf("%s %-24v %-12s next=%v\n", mark, r.Path, r.Direction, r.FinalExpected)
	}
}
