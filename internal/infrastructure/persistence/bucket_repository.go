package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/salesboard/backend/internal/domain/rollup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DailyBucketModel is the GORM model for one day's rollup document. The
// bucket itself is stored as a single JSON payload keyed by calendar date;
// ComputedAt is row metadata and never part of the payload, so rebuilding
// an unchanged day leaves the payload byte-identical.
type DailyBucketModel struct {
	DateKey    string         `gorm:"primaryKey;size:10"`
	Payload    datatypes.JSON `gorm:"not null"`
	ComputedAt time.Time      `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (DailyBucketModel) TableName() string {
	return "rollup_daily_buckets"
}

// GormBucketRepository implements rollup.BucketRepository on GORM.
type GormBucketRepository struct {
	db *gorm.DB
}

// NewGormBucketRepository creates a new bucket repository
func NewGormBucketRepository(db *gorm.DB) *GormBucketRepository {
	return &GormBucketRepository{db: db}
}

// Get returns the bucket stored for key, or rollup.ErrBucketNotFound.
func (r *GormBucketRepository) Get(ctx context.Context, key rollup.DateKey) (*rollup.DailyBucket, error) {
	var model DailyBucketModel
	err := r.db.WithContext(ctx).First(&model, "date_key = ?", string(key)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, rollup.ErrBucketNotFound
		}
		return nil, fmt.Errorf("load bucket %s: %w", key, err)
	}

	var bucket rollup.DailyBucket
	if err := json.Unmarshal(model.Payload, &bucket); err != nil {
		return nil, fmt.Errorf("decode bucket %s: %w", key, err)
	}
	return &bucket, nil
}

// Put stores the bucket under its date key, replacing any existing row's
// payload in full.
func (r *GormBucketRepository) Put(ctx context.Context, bucket *rollup.DailyBucket) error {
	payload, err := json.Marshal(bucket)
	if err != nil {
		return fmt.Errorf("encode bucket %s: %w", bucket.DateKey, err)
	}

	model := DailyBucketModel{
		DateKey:    string(bucket.DateKey),
		Payload:    payload,
		ComputedAt: time.Now().UTC(),
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "computed_at", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("store bucket %s: %w", bucket.DateKey, err)
	}
	return nil
}

// ListKeysInRange returns the set of date keys in [start, end] that have a
// stored bucket. One query regardless of the range width.
func (r *GormBucketRepository) ListKeysInRange(ctx context.Context, start, end rollup.DateKey) (map[rollup.DateKey]struct{}, error) {
	var keys []string
	err := r.db.WithContext(ctx).
		Model(&DailyBucketModel{}).
		Where("date_key >= ? AND date_key <= ?", string(start), string(end)).
		Pluck("date_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("list bucket keys [%s, %s]: %w", start, end, err)
	}

	present := make(map[rollup.DateKey]struct{}, len(keys))
	for _, k := range keys {
		present[rollup.DateKey(k)] = struct{}{}
	}
	return present, nil
}

var _ rollup.BucketRepository = (*GormBucketRepository)(nil)
