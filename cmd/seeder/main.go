package main

import (
	"context"
	"flag"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"costguard/internal/adapters/clickhouse"
	"costguard/internal/adapters/config"
	"costguard/internal/domain/usage"
	chrepo "costguard/internal/repository/clickhouse"
	"costguard/pkg/logger"
)

// provider spend profiles for demo data. The spike factor makes the
// last day anomalous so a scan right after seeding finds something.
type providerProfile struct {
	name        string
	models      []string
	dailyCalls  int
	costPerCall float64
	spikeFactor float64
}

var profiles = []providerProfile{
	{"openai", []string{"gpt-4o", "gpt-4o-mini"}, 400, 0.024, 9.0},
	{"anthropic", []string{"claude-sonnet-4", "claude-haiku-3.5"}, 300, 0.031, 1.0},
	{"google", []string{"gemini-2.0-flash"}, 500, 0.008, 1.0},
	{"deepseek", []string{"deepseek-chat"}, 200, 0.004, 2.2},
}

func main() {
	days := flag.Int("days", 8, "Days of usage history to generate (including today)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infow("Starting usage seeder", "days", *days, "providers", len(profiles))

	chClient, err := clickhouse.NewClient(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer chClient.Close()

	ctx := context.Background()
	repo := chrepo.NewUsageRepository(chClient.Conn())
	repo.Start(ctx)

	total := 0
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for dayOffset := *days - 1; dayOffset >= 0; dayOffset-- {
		day := today.AddDate(0, 0, -dayOffset)
		isToday := dayOffset == 0

		for _, p := range profiles {
			count := seedProviderDay(ctx, repo, p, day, isToday, log)
			total += count
		}
	}

	if err := repo.Stop(ctx); err != nil {
		log.Fatalf("Failed to flush usage records: %v", err)
	}

	log.Infow("Seeding complete", "records", total)
}

// seedProviderDay writes one provider's records for one day
func seedProviderDay(ctx context.Context, repo *chrepo.UsageRepository, p providerProfile, day time.Time, isToday bool, log *logger.Logger) int {
	calls := p.dailyCalls
	costPerCall := p.costPerCall
	if isToday {
		costPerCall *= p.spikeFactor
	}

	for i := 0; i < calls; i++ {
		// Spread calls across working hours with some jitter
		ts := day.Add(time.Duration(6+rand.Intn(14)) * time.Hour).
			Add(time.Duration(rand.Intn(3600)) * time.Second)
		if isToday && ts.After(time.Now().UTC()) {
			ts = time.Now().UTC().Add(-time.Duration(rand.Intn(600)) * time.Second)
		}

		inputTokens := uint32(200 + rand.Intn(4000))
		outputTokens := uint32(50 + rand.Intn(1500))

		rec := &usage.Record{
			Timestamp:    ts,
			EventID:      uuid.NewString(),
			Provider:     p.name,
			Model:        p.models[rand.Intn(len(p.models))],
			Service:      "llm",
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			Cost:         costPerCall * (0.7 + rand.Float64()*0.6),
			LatencyMs:    uint32(300 + rand.Intn(2500)),
			QualityScore: 0.75 + rand.Float64()*0.25,
			CreatedAt:    time.Now().UTC(),
		}

		if err := repo.Store(ctx, rec); err != nil {
			log.Fatalf("Failed to store record: %v", err)
		}
	}

	log.Infow("Seeded provider day",
		"provider", p.name,
		"day", day.Format("2006-01-02"),
		"calls", calls,
		"spiked", isToday && p.spikeFactor > 1.5,
	)
	return calls
}
