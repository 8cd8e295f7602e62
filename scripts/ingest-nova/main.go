// Package main provides a CLI tool to replay a scanner export into the Nova API.
// The export is JSONL: one scan record per line with ring label, slot index, and
// the extracted features (embeddings, type, area). Replaying the same file is
// safe: occupied slots come back as 409 and are counted as replays, and feature
// rows are upserts.
//
// Usage:
//
//	go run ./scripts/ingest-nova -file export.jsonl -job-name "tray session" -api-key YOUR_API_KEY
//	go run ./scripts/ingest-nova -file export.jsonl -job 018f...-uuid -api-key YOUR_API_KEY -run -min-confidence 0.8
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Nastaran-Nourbakhsh/nova/pkg/nova"
)

// Config holds the CLI configuration
type Config struct {
	FilePath      string
	APIBaseURL    string
	APIKey        string
	JobID         string
	JobName       string
	ModelVersion  string
	RatePerSec    float64
	Burst         int
	DryRun        bool
	Run           bool
	MinConfidence float64
	CarryLocked   bool
}

// ScanRecord is one line of the scanner export.
type ScanRecord struct {
	RingLabel       string          `json:"ring_label"`
	SlotIndex       int             `json:"slot_index"`
	DiamondType     *string         `json:"diamond_type,omitempty"`
	AreaPx          float64         `json:"area_px"`
	TableSizePx     *float64        `json:"table_size_px,omitempty"`
	FaceUpColor     *string         `json:"face_up_color,omitempty"`
	Boundary        json.RawMessage `json:"boundary,omitempty"`
	AsetEmbedding   []float32       `json:"aset_embedding,omitempty"`
	UVFreeEmbedding []float32       `json:"uv_free_embedding,omitempty"`
}

// Stats tracks ingestion statistics
type Stats struct {
	TotalLines   int
	SkippedBad   int
	Ingested     int
	Replayed     int
	FeatureFails int
	Failed       int
}

func main() {
	cfg := parseFlags()

	if cfg.FilePath == "" {
		fmt.Println("Error: -file is required")
		flag.Usage()
		os.Exit(1)
	}

	if cfg.APIKey == "" {
		fmt.Println("Error: -api-key is required")
		flag.Usage()
		os.Exit(1)
	}

	if cfg.JobID == "" && cfg.JobName == "" {
		fmt.Println("Error: one of -job or -job-name is required")
		flag.Usage()
		os.Exit(1)
	}

	fmt.Printf("🚀 Nova Scan Export Replay Tool\n")
	fmt.Printf("   API URL: %s\n", cfg.APIBaseURL)
	fmt.Printf("   Export:  %s\n", cfg.FilePath)
	fmt.Printf("   Rate:    %.1f req/s (burst %d)\n", cfg.RatePerSec, cfg.Burst)
	if cfg.DryRun {
		fmt.Printf("   ⚠️  DRY RUN MODE - No actual API calls will be made\n")
	}
	fmt.Println()

	ctx := context.Background()
	client := nova.NewClient(cfg.APIBaseURL, cfg.APIKey)

	jobID, err := resolveJob(ctx, client, cfg)
	if err != nil {
		fmt.Printf("Error resolving job: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("📥 Ingesting scans into job %s...\n\n", jobID)

	stats := processFile(ctx, client, cfg, jobID)

	fmt.Println()
	fmt.Println("📊 Ingestion Summary")
	fmt.Println("   ─────────────────────")
	fmt.Printf("   Total lines processed: %d\n", stats.TotalLines)
	fmt.Printf("   Skipped (bad record):  %d\n", stats.SkippedBad)
	fmt.Printf("   Diamonds ingested:     %d\n", stats.Ingested)
	fmt.Printf("   Replays (slot taken):  %d\n", stats.Replayed)
	fmt.Printf("   Feature write errors:  %d\n", stats.FeatureFails)
	fmt.Printf("   Failed:                %d\n", stats.Failed)
	fmt.Println()

	if stats.Failed > 0 || stats.FeatureFails > 0 {
		os.Exit(1)
	}

	if cfg.Run && !cfg.DryRun {
		if err := triggerRun(ctx, client, cfg, jobID); err != nil {
			fmt.Printf("Error running matching: %v\n", err)
			os.Exit(1)
		}
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.FilePath, "file", "", "Path to JSONL scan export (required)")
	flag.StringVar(&cfg.APIBaseURL, "api-url", "http://localhost:8080", "Nova API base URL")
	flag.StringVar(&cfg.APIKey, "api-key", "", "API key for authentication (required)")
	flag.StringVar(&cfg.JobID, "job", "", "Existing job ID to ingest into")
	flag.StringVar(&cfg.JobName, "job-name", "", "Create a new job with this name and start it")
	flag.StringVar(&cfg.ModelVersion, "model-version", "", "Feature model version (server default when empty)")
	flag.Float64Var(&cfg.RatePerSec, "rate", 25, "Max API requests per second")
	flag.IntVar(&cfg.Burst, "burst", 10, "Rate limiter burst size")
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "Parse the export but don't make API calls")
	flag.BoolVar(&cfg.Run, "run", false, "Trigger a matching run after ingest and wait for it")
	flag.Float64Var(&cfg.MinConfidence, "min-confidence", 0.8, "Matching run confidence threshold (with -run)")
	flag.BoolVar(&cfg.CarryLocked, "carry-locked", true, "Carry locked pairs forward (with -run)")

	flag.Parse()
	return cfg
}

// resolveJob returns the target job ID, creating and starting a fresh job when
// -job-name was given. A new job is moved to SCANNING so ingest is accepted.
func resolveJob(ctx context.Context, client *nova.Client, cfg Config) (uuid.UUID, error) {
	if cfg.JobID != "" {
		id, err := uuid.Parse(cfg.JobID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid -job: %w", err)
		}

		return id, nil
	}

	if cfg.DryRun {
		// No API calls in dry-run; a placeholder ID keeps the output readable.
		return uuid.Nil, nil
	}

	job, err := client.CreateJob(ctx, &nova.CreateJobRequest{Name: cfg.JobName})
	if err != nil {
		return uuid.Nil, fmt.Errorf("create job: %w", err)
	}

	if _, err := client.StartJob(ctx, job.ID); err != nil {
		return uuid.Nil, fmt.Errorf("start job: %w", err)
	}

	fmt.Printf("   Created job %q (%s)\n", cfg.JobName, job.ID)

	return job.ID, nil
}

func processFile(ctx context.Context, client *nova.Client, cfg Config, jobID uuid.UUID) Stats {
	stats := Stats{}

	file, err := os.Open(cfg.FilePath)
	if err != nil {
		fmt.Printf("Error opening file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = file.Close() }()

	// Each scan is two API calls (diamond + features); the limiter paces both
	// so replays do not hammer the ingest endpoints.
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024) // embeddings make long lines

	lineNum := 0
	for scanner.Scan() {
		lineNum++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		stats.TotalLines++

		var record ScanRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			fmt.Printf("   ⚠ Line %d: invalid JSON: %v\n", lineNum, err)
			stats.SkippedBad++
			continue
		}

		if record.RingLabel == "" || record.AreaPx <= 0 {
			fmt.Printf("   ⚠ Line %d: missing ring_label or area_px\n", lineNum)
			stats.SkippedBad++
			continue
		}

		if cfg.DryRun {
			fmt.Printf("   [DRY] Line %d: %s slot %d (area %.1f)\n",
				lineNum, record.RingLabel, record.SlotIndex, record.AreaPx)
			stats.Ingested++
			continue
		}

		ingestScan(ctx, client, cfg, jobID, lineNum, &record, limiter, &stats)
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}

	return stats
}

func ingestScan(
	ctx context.Context,
	client *nova.Client,
	cfg Config,
	jobID uuid.UUID,
	lineNum int,
	record *ScanRecord,
	limiter *rate.Limiter,
	stats *Stats,
) {
	if err := limiter.Wait(ctx); err != nil {
		fmt.Printf("   ✗ Line %d: %v\n", lineNum, err)
		stats.Failed++

		return
	}

	diamond, err := client.IngestDiamond(ctx, jobID, &nova.CreateDiamondRequest{
		RingLabel: &record.RingLabel,
		SlotIndex: record.SlotIndex,
	})

	switch {
	case nova.IsConflict(err):
		// Slot already occupied from an earlier replay of this export.
		fmt.Printf("   ↻ Line %d: %s slot %d already ingested\n", lineNum, record.RingLabel, record.SlotIndex)
		stats.Replayed++

		return
	case err != nil:
		fmt.Printf("   ✗ Line %d: %v\n", lineNum, err)
		stats.Failed++

		return
	}

	if err := limiter.Wait(ctx); err != nil {
		fmt.Printf("   ✗ Line %d: %v\n", lineNum, err)
		stats.Failed++

		return
	}

	featureReq := &nova.UpsertFeatureRequest{
		AsetEmbedding:   record.AsetEmbedding,
		UVFreeEmbedding: record.UVFreeEmbedding,
		DiamondType:     record.DiamondType,
		Boundary:        record.Boundary,
		AreaPx:          record.AreaPx,
		TableSizePx:     record.TableSizePx,
		FaceUpColor:     record.FaceUpColor,
	}
	if cfg.ModelVersion != "" {
		featureReq.ModelVersion = &cfg.ModelVersion
	}

	if _, err := client.UpsertFeature(ctx, diamond.ID, featureReq); err != nil {
		fmt.Printf("   ✗ Line %d: diamond %s created but features failed: %v\n", lineNum, diamond.ID, err)
		stats.FeatureFails++

		return
	}

	fmt.Printf("   ✓ Line %d: %s slot %d → %s\n", lineNum, record.RingLabel, record.SlotIndex, diamond.ID)
	stats.Ingested++
}

// triggerRun enqueues a matching run over the ingested job and waits for it.
func triggerRun(ctx context.Context, client *nova.Client, cfg Config, jobID uuid.UUID) error {
	createdBy := "ingest-nova"

	req := &nova.CreateMatchingRunRequest{
		MinConfidence: cfg.MinConfidence,
		CarryLocked:   cfg.CarryLocked,
		CreatedBy:     &createdBy,
	}
	if cfg.ModelVersion != "" {
		req.ModelVersion = &cfg.ModelVersion
	}

	run, err := client.RunMatching(ctx, jobID, req)
	if err != nil {
		return fmt.Errorf("enqueue run: %w", err)
	}

	fmt.Printf("⏳ Matching run %s enqueued, waiting...\n", run.ID)

	run, err = client.WaitForRun(ctx, run.ID, 2*time.Second)
	if err != nil {
		return fmt.Errorf("wait for run: %w", err)
	}

	if run.Status != "DONE" {
		reason := ""
		if run.FailureReason != nil {
			reason = *run.FailureReason
		}

		return fmt.Errorf("run %s finished %s: %s", run.ID, run.Status, reason)
	}

	pairs, err := client.GetPairs(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("fetch pairs: %w", err)
	}

	fmt.Printf("✅ Run %s DONE: %d pair(s)\n", run.ID, pairs.Total)

	return nil
}
