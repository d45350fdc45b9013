package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"candleseq/internal/analysis"
	"candleseq/internal/pattern"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// ~a month of hourly reports per source
	reportStreamMaxLen  = 1000
	patternStreamMaxLen = 5000
	defaultLatestTTL    = 7 * 24 * time.Hour
)

// PatternStream carries every pattern search outcome.
const PatternStream = "seq:patterns"

// ReportStream is the stream of reports for one profile/source pair.
func ReportStream(profile, source string) string {
	return "seq:report:" + profile + ":" + source
}

// LatestKey holds the newest report for one profile/source pair.
func LatestKey(profile, source string) string {
	return "seq:latest:" + profile + ":" + source
}

// ReportChannel is the pub/sub channel for live report subscribers.
func ReportChannel(profile, source string) string {
	return "pub:seq:" + profile + ":" + source
}

// PatternChannel is the pub/sub channel for pattern outcomes.
const PatternChannel = "pub:seq:patterns"

// WriterConfig configures the Redis publisher.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes analysis reports and pattern outcomes to Redis streams,
// keeps the latest report per source and notifies pub/sub subscribers.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a new Publisher and pings the server.
func New(cfg WriterConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// PublishReport pipelines XADD, SET latest and PUBLISH for one report.
func (p *Publisher) PublishReport(ctx context.Context, rep *analysis.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	jsonData := string(data)

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: ReportStream(rep.Profile, rep.Source),
		MaxLen: reportStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"id": rep.ID, "data": jsonData},
	})
	pipe.Set(ctx, LatestKey(rep.Profile, rep.Source), jsonData, defaultLatestTTL)
	pipe.Publish(ctx, ReportChannel(rep.Profile, rep.Source), jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis report pipeline %s: %w", rep.Source, err)
	}
	return nil
}

// patternBatch is the wire form of one pattern search.
type patternBatch struct {
	BatchID string          `json:"batch_id"`
	Outcome pattern.Outcome `json:"outcome"`
}

// PublishPatterns appends a pattern outcome to PatternStream and notifies
// PatternChannel.
func (p *Publisher) PublishPatterns(ctx context.Context, batchID string, out pattern.Outcome) error {
	data, err := json.Marshal(patternBatch{BatchID: batchID, Outcome: out})
	if err != nil {
		return fmt.Errorf("marshal patterns: %w", err)
	}
	jsonData := string(data)

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: PatternStream,
		MaxLen: patternStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"id": batchID, "data": jsonData},
	})
	pipe.Publish(ctx, PatternChannel, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pattern pipeline %s: %w", batchID, err)
	}
	return nil
}

// LatestReport reads the newest report for profile/source.
// Returns nil, nil when none is cached.
func (p *Publisher) LatestReport(ctx context.Context, profile, source string) (*analysis.Report, error) {
	data, err := p.client.Get(ctx, LatestKey(profile, source)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET latest: %w", err)
	}
	var rep analysis.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("unmarshal latest report: %w", err)
	}
	return &rep, nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
