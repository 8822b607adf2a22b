package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/id-verify/internal/logging"
)

// ScanRecord is the persisted outcome of one scan session. Only scores and
// diagnostics are stored; captured images and MRZ field values never reach
// the database.
type ScanRecord struct {
	ID                uint      `gorm:"primaryKey"`
	SessionID         string    `gorm:"column:session_id;uniqueIndex;size:64"`
	UserID            string    `gorm:"column:user_id;index;size:64"`
	AuthenticityScore float64   `gorm:"column:authenticity_score"`
	StructuralScore   int       `gorm:"column:structural_score"`
	ChecksumScore     int       `gorm:"column:checksum_score"`
	ChecksumValid     bool      `gorm:"column:checksum_valid"`
	DurationMs        int64     `gorm:"column:duration_ms"`
	ErrorCount        int       `gorm:"column:error_count"`
	Details           string    `gorm:"column:details;type:text"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (ScanRecord) TableName() string {
	return "scan_records"
}

// MetricsAggregation holds the raw aggregates computed over scan records.
type MetricsAggregation struct {
	TotalCount        int64
	ValidCount        int64
	AverageScore      float64
	AverageDurationMs float64
}

// ScanRepository provides persistence APIs for scan records.
type ScanRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewScanRepository creates a new repository instance.
func NewScanRepository(db *gorm.DB, logger *zap.Logger) *ScanRepository {
	return &ScanRepository{
		db:             db,
		logger:         logger.Named("scan_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ScanRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ScanRecord{})
}

// Save persists a scan record.
func (r *ScanRepository) Save(ctx context.Context, record *ScanRecord) error {
	return r.executeWithRetry(ctx, "repository.save_record", record.SessionID, func() error {
		return r.db.WithContext(ctx).Create(record).Error
	})
}

// FindBySessionAndUser retrieves a scan record matching the session and
// owner.
func (r *ScanRepository) FindBySessionAndUser(ctx context.Context, sessionID, userID string) (*ScanRecord, error) {
	var record ScanRecord
	err := r.executeWithRetry(ctx, "repository.find_record", sessionID, func() error {
		return r.db.WithContext(ctx).First(&record, "session_id = ? AND user_id = ?", sessionID, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// AggregateMetrics computes the summary aggregates over all scan records.
func (r *ScanRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&ScanRecord{}).
			Select("COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN checksum_valid THEN 1 ELSE 0 END), 0) AS valid_count, " +
				"COALESCE(AVG(authenticity_score), 0) AS average_score, " +
				"COALESCE(AVG(duration_ms), 0) AS average_duration_ms").
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *ScanRepository) executeWithRetry(ctx context.Context, operation, sessionID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, sessionID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, sessionID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isRetryable(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, sessionID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, sessionID, err)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
