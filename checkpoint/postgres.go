package checkpoint

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// StreamCheckpoint is the cursor row for one consumer key.
type StreamCheckpoint struct {
	ConsumerKey string `gorm:"primaryKey;type:text"`
	Cursor      string `gorm:"type:text"`
	UpdatedAt   time.Time
}

// GormStore keeps cursors in a relational database, for consumers that
// checkpoint transactionally alongside their own processing state.
type GormStore struct {
	db *gorm.DB
}

func NewPostgres(dsn string) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             300 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger,
	})
	return db, err
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&StreamCheckpoint{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Load(ctx context.Context, consumerKey string) (string, error) {
	var cp StreamCheckpoint
	err := s.db.WithContext(ctx).First(&cp, "consumer_key = ?", consumerKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNoCheckpoint
	}
	if err != nil {
		return "", err
	}
	return cp.Cursor, nil
}

func (s *GormStore) Save(ctx context.Context, consumerKey string, cursor string) error {
	cp := StreamCheckpoint{ConsumerKey: consumerKey, Cursor: cursor, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "consumer_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"cursor", "updated_at"}),
	}).Create(&cp).Error
}
