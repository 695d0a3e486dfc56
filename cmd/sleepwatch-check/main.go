package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hoanvar/LTN/internal/classifier"
	"github.com/hoanvar/LTN/internal/config"
	"github.com/hoanvar/LTN/internal/models"
	"github.com/hoanvar/LTN/internal/platform/database"
	"github.com/hoanvar/LTN/internal/repository"

	"go.uber.org/zap"
)

func main() {
	initSchema := flag.Bool("init-schema", false, "create missing tables before checking")
	limit := flag.Int("limit", 20, "number of recent sessions to list")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	loc, _ := cfg.Location()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// 连接数据库
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if *initSchema {
		if err := repository.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
		fmt.Println("Schema applied")
	}

	// 1. 各表行数
	printSection("1. Tables")
	counts, err := repository.TableCounts(ctx, db)
	if err != nil {
		log.Fatalf("Schema check failed (run with -init-schema): %v", err)
	}
	for _, table := range repository.Tables {
		fmt.Printf("%-22s %d\n", table, counts[table])
	}

	// 2. 阈值设置
	printSection("2. Thresholds")
	settings := repository.NewSettingsRepository(db, zap.NewNop())
	th, err := settings.GetThresholds(ctx, cfg.Thresholds)
	if err != nil {
		log.Fatalf("Failed to read thresholds: %v", err)
	}
	fmt.Printf("heart rate    %.1f - %.1f\n", th.HeartRateMin, th.HeartRateMax)
	fmt.Printf("spo2          %.1f - %.1f\n", th.SpO2Min, th.SpO2Max)
	fmt.Printf("temperature   %.1f - %.1f\n", th.TemperatureMin, th.TemperatureMax)
	fmt.Printf("acceleration  %.2f - %.2f\n", th.AccelerationMin, th.AccelerationMax)

	// 3. 模型文件
	printSection("3. Model")
	model, err := classifier.NewStore(cfg.Sleep.ModelDir).Load()
	if err != nil {
		fmt.Printf("not usable: %v\n", err)
	} else {
		fmt.Printf("fingerprint   %s\n", model.Meta.Fingerprint)
		fmt.Printf("trained at    %s\n", model.Meta.TrainedAt.In(loc).Format(time.RFC3339))
		fmt.Printf("train rows    %d\n", model.Meta.TrainSize)
		fmt.Printf("trees         %d\n", len(model.Forest.Trees))
	}

	// 4. 标签分布与最近会话
	sessions := repository.NewSessionRepository(db, zap.NewNop())
	printSection("4. Label distribution")
	dist, err := sessions.QualityDistribution(ctx)
	if err != nil {
		log.Fatalf("Failed to query distribution: %v", err)
	}
	for _, q := range models.AllQualities {
		fmt.Printf("%-8s %d\n", q, dist[q])
	}

	printSection(fmt.Sprintf("5. Recent sessions (limit %d)", *limit))
	summaries, err := sessions.ListSessionSummaries(ctx, *limit)
	if err != nil {
		log.Fatalf("Failed to list sessions: %v", err)
	}
	fmt.Printf("%-36s  %-19s  %-19s  %-7s  %s\n", "session_id", "start", "end", "quality", "samples")
	for _, s := range summaries {
		end := "(recording)"
		if s.EndTime != nil {
			end = s.EndTime.In(loc).Format("2006-01-02 15:04:05")
		}
		quality := s.Quality
		if quality == "" {
			quality = "-"
		}
		fmt.Printf("%-36s  %-19s  %-19s  %-7s  %d\n",
			s.SessionID, s.StartTime.In(loc).Format("2006-01-02 15:04:05"), end, quality, s.Samples)
	}
}

func printSection(title string) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", 80))
}
