package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ReportSummary is one archived row: the statistics of a single input type
// from a single report.
type ReportSummary struct {
	ID               int64     `gorm:"column:id;primaryKey"`
	ReportID         string    `gorm:"column:report_id;uniqueIndex:idx_report_type"`
	InputType        string    `gorm:"column:input_type;uniqueIndex:idx_report_type"`
	Project          string    `gorm:"column:project;index"`
	GeneratedAt      time.Time `gorm:"column:generated_at;index"`
	ReportRuns       int       `gorm:"column:report_runs"`
	SkippedRuns      int       `gorm:"column:skipped_runs"`
	Runs             int       `gorm:"column:runs"`
	MeanMS           float64   `gorm:"column:mean_ms"`
	MedianMS         float64   `gorm:"column:median_ms"`
	P95MS            float64   `gorm:"column:p95_ms"`
	P99MS            float64   `gorm:"column:p99_ms"`
	MinMS            float64   `gorm:"column:min_ms"`
	MaxMS            float64   `gorm:"column:max_ms"`
	TotalAnnotations int       `gorm:"column:total_annotations"`
	YesAnnotations   int       `gorm:"column:yes_annotations"`
	YesPercentage    float64   `gorm:"column:yes_percentage"`
	StatisticsDigest string    `gorm:"column:statistics_digest"`
	OutputDigest     string    `gorm:"column:output_digest"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

func (ReportSummary) TableName() string { return "report_summaries" }

// Archive keeps report summaries in a SQLite database.
type Archive struct {
	db *gorm.DB
}

func OpenArchive(path string) (*Archive, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("archive path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	if err := db.AutoMigrate(&ReportSummary{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save records one row per input type of r. Saving the same report twice
// is a no-op. It returns the number of rows in r, inserted or not.
func (a *Archive) Save(ctx context.Context, r types.Report, outputDigest string) (int, error) {
	if r.Metadata.ReportID == "" {
		return 0, errors.New("report has no report_id")
	}
	generated, err := time.Parse(time.RFC3339Nano, r.Metadata.GeneratedAt)
	if err != nil {
		return 0, fmt.Errorf("parse generated_at: %w", err)
	}
	rows := make([]ReportSummary, 0, len(r.Statistics))
	for _, label := range r.SortedInputTypes() {
		s := r.Statistics[label]
		l, an := s.LatencyStats, s.AnnotationStats
		rows = append(rows, ReportSummary{
			ReportID:         r.Metadata.ReportID,
			InputType:        string(label),
			Project:          r.Metadata.Project,
			GeneratedAt:      generated.UTC(),
			ReportRuns:       r.Metadata.TotalRuns,
			SkippedRuns:      r.Metadata.SkippedRuns,
			Runs:             l.TotalRuns,
			MeanMS:           l.MeanMS,
			MedianMS:         l.MedianMS,
			P95MS:            l.P95MS,
			P99MS:            l.P99MS,
			MinMS:            l.MinMS,
			MaxMS:            l.MaxMS,
			TotalAnnotations: an.TotalAnnotations,
			YesAnnotations:   an.YesAnnotations,
			YesPercentage:    an.YesPercentage,
			StatisticsDigest: r.Metadata.StatisticsDigest,
			OutputDigest:     outputDigest,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
	if err != nil {
		return 0, fmt.Errorf("archive report %s: %w", r.Metadata.ReportID, err)
	}
	return len(rows), nil
}

// List returns the project's rows, newest report first. limit <= 0 means
// no limit.
func (a *Archive) List(ctx context.Context, project string, limit int) ([]ReportSummary, error) {
	q := a.db.WithContext(ctx).
		Where("project = ?", project).
		Order("generated_at DESC").
		Order("input_type ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []ReportSummary
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	return out, nil
}
