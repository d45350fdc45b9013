// cmd/seqscan analyzes one symbol's series from SQLite around a trading day's
// anchor candle and prints the offset alignments, predictions and signals.
//
// Usage:
//
//	go run ./cmd/seqscan --symbol=EURUSD --profile=H1 --day=2026-03-10
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"candleseq/config"
	"candleseq/internal/analysis"
	"candleseq/internal/logger"
	redisstore "candleseq/internal/store/redis"
	sqlitestore "candleseq/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cfg := config.Load()

	symbol := flag.String("symbol", "", "Symbol to analyze (required)")
	dbPath := flag.String("db", cfg.SQLitePath, "Path to SQLite database")
	flag.StringVar(&cfg.Profile, "profile", cfg.Profile, "Timeframe profile (M5, M15, M30, H1, H2, H4)")
	flag.StringVar(&cfg.ProfileFile, "profiles", cfg.ProfileFile, "YAML file with profile overrides")
	flag.StringVar(&cfg.Preset, "preset", cfg.Preset, "Step preset: primary, secondary or a list like 1,5,9,17")
	flag.StringVar(&cfg.Detectors, "detectors", cfg.Detectors, "Comma-separated detectors: iou, iov")
	flag.StringVar(&cfg.Limit, "limit", cfg.Limit, "Body magnitude limit")
	flag.StringVar(&cfg.Tolerance, "tolerance", cfg.Tolerance, "Tolerance band half-width around the limit")
	dayStr := flag.String("day", "", "Trading day YYYY-MM-DD (default: latest anchor)")
	base := flag.Int("base", -1, "Explicit base candle index (overrides --day)")
	from := flag.String("from", "", "Load candles from YYYY-MM-DD (default: all)")
	asJSON := flag.Bool("json", false, "Print the report as JSON")
	save := flag.Bool("save", false, "Store the report in SQLite")
	publish := flag.Bool("publish", false, "Publish the report to Redis (REDIS_ADDR)")
	flag.Parse()

	if *symbol == "" {
		flag.Usage()
		os.Exit(2)
	}
	sym := strings.ToUpper(*symbol)

	profile, err := cfg.ResolveProfile()
	if err != nil {
		log.Fatalf("[seqscan] %v", err)
	}
	preset, err := cfg.ParsePreset()
	if err != nil {
		log.Fatalf("[seqscan] %v", err)
	}
	detectors, err := cfg.ParseDetectors()
	if err != nil {
		log.Fatalf("[seqscan] %v", err)
	}
	day, err := parseDay(*dayStr)
	if err != nil {
		log.Fatalf("[seqscan] --day: %v", err)
	}
	fromTS, err := parseDay(*from)
	if err != nil {
		log.Fatalf("[seqscan] --from: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[seqscan] sqlite open failed: %v", err)
	}
	defer reader.Close()

	series, err := reader.ReadSeries(ctx, sym, profile.Name, fromTS, time.Time{})
	if err != nil {
		log.Fatalf("[seqscan] load %s: %v", sym, err)
	}

	slogger := logger.Init("seqscan", logger.ParseLevel(cfg.LogLevel))
	rep, err := analysis.New(slogger).Analyze(ctx, analysis.Request{
		Source:    sym,
		Series:    series,
		Profile:   profile,
		Preset:    preset,
		Base:      *base,
		Day:       day,
		Detectors: detectors,
	})
	if err != nil {
		log.Fatalf("[seqscan] %v", err)
	}

	if *save {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: *dbPath})
		if err != nil {
			log.Fatalf("[seqscan] sqlite writer: %v", err)
		}
		if err := w.SaveReport(ctx, rep); err != nil {
			log.Printf("[seqscan] save report: %v", err)
		}
		w.Close()
	}
	if *publish && cfg.RedisAddr != "" {
		pub, err := redisstore.New(redisstore.WriterConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[seqscan] redis: %v", err)
		} else {
			if err := pub.PublishReport(ctx, rep); err != nil {
				log.Printf("[seqscan] publish: %v", err)
			}
			pub.Close()
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(rep)
		return
	}
	printReport(rep)
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func printReport(rep *analysis.Report) {
	fmt.Printf("%s %s preset=%s candles=%d dc=%d base=#%d %s\n\n",
		rep.Source, rep.Profile, rep.Preset, rep.Candles, rep.DCCount, rep.Base, rep.BaseTS.Format("2006-01-02 15:04"))

	for _, or := range rep.Offsets {
		al := or.Alignment
		start := "-"
		if idx, ok := al.Start(); ok {
			ts, _ := al.StartTS()
			start = fmt.Sprintf("#%d %s", idx, ts.Format("01-02 15:04"))
		}
		fb := ""
		if al.Fallback {
			fb = fmt.Sprintf(" fallback missing=%d", al.MissingSteps)
		}
		fmt.Printf("offset %+d  %-14s start %s%s\n", al.Offset, al.Status, start, fb)

		for _, a := range al.Allocations {
			if idx, ok := a.Index(); ok {
				ts, _ := a.TS()
				dc := ""
				if a.UsedDC() {
					dc = " (dc)"
				}
				fmt.Printf("    step %-3d #%-5d %s%s\n", a.Step(), idx, ts.Format("2006-01-02 15:04"), dc)
			}
		}
		for _, p := range or.Predictions {
			fmt.Printf("    step %-3d ~      %s (predicted)\n", p.Step, p.TS.Format("2006-01-02 15:04"))
		}
		for _, s := range or.Signals {
			fmt.Printf("    %s step %d #%d oc=%s prev=%s\n", s.Mode, s.Step, s.Index, s.OC, s.PrevOC)
		}
	}
	fmt.Printf("\ncandidate offsets: %v\n", rep.Candidates)
}
