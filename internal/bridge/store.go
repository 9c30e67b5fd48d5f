package bridge

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InflightMessage is a durable record of a QoS>=1 bridge forward that has
// not yet been acknowledged by the target broker. Survives process
// restarts when Store is backed by a persistent driver.
type InflightMessage struct {
	ID          uint   `gorm:"primaryKey"`
	BridgeName  string `gorm:"index:idx_inflight_lookup"`
	Direction   string `gorm:"index:idx_inflight_lookup"`
	SourceTopic string
	TargetTopic string
	Payload     []byte
	QoS         byte
	Retain      bool
	Metadata    datatypes.JSON
	SubmittedAt time.Time
	AckedAt     *time.Time
}

func (InflightMessage) TableName() string {
	return "bridge_inflight_messages"
}

// StoreConfig selects the backing SQL driver by name plus its connection
// string; the default is an embedded sqlite file.
type StoreConfig struct {
	Driver           string // "sqlite", "postgres", "mysql"
	ConnectionString string
}

// Store is the durable inflight queue for QoS>=1 bridge messages.
type Store struct {
	db *gorm.DB
}

// OpenStore opens (and migrates) the inflight queue database.
func OpenStore(cfg StoreConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.ConnectionString
		if dsn == "" {
			dsn = "bridge-inflight.db"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(cfg.ConnectionString)
	case "mysql":
		dialector = mysql.Open(cfg.ConnectionString)
	default:
		return nil, fmt.Errorf("bridge: unsupported store driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("bridge: opening inflight store: %w", err)
	}
	if err := db.AutoMigrate(&InflightMessage{}); err != nil {
		return nil, fmt.Errorf("bridge: migrating inflight store: %w", err)
	}
	return &Store{db: db}, nil
}

// Record persists a new inflight forward, returning its ID.
func (s *Store) Record(bridgeName string, direction Direction, msg InflightMessage) (uint, error) {
	msg.BridgeName = bridgeName
	msg.Direction = direction.String()
	msg.SubmittedAt = time.Now()
	if err := s.db.Create(&msg).Error; err != nil {
		return 0, fmt.Errorf("bridge: recording inflight message: %w", err)
	}
	return msg.ID, nil
}

// Ack marks an inflight record as acknowledged.
func (s *Store) Ack(id uint) error {
	now := time.Now()
	return s.db.Model(&InflightMessage{}).Where("id = ?", id).Update("acked_at", &now).Error
}

// Pending returns unacknowledged inflight records for bridgeName/direction,
// oldest first, for replay after a restart.
func (s *Store) Pending(bridgeName string, direction Direction) ([]InflightMessage, error) {
	var rows []InflightMessage
	err := s.db.Where("bridge_name = ? AND direction = ? AND acked_at IS NULL", bridgeName, direction.String()).
		Order("submitted_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("bridge: listing pending inflight messages: %w", err)
	}
	return rows, nil
}

// Close releases the underlying SQL connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
