package store

import (
	"context"
	"strings"

	core "github.com/DomeLiquid/leverage"
	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store keeps the operation journal and pool checkpoints in one gorm
// database.
type Store struct {
	db *gorm.DB
}

var (
	_ core.OperateStore = (*Store)(nil)
	_ core.StateStore   = (*Store)(nil)
)

// Open connects to the sqlite database at dsn and migrates it.
func Open(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.Wrap(core.InvalidConfig, "database dsn required")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	// sqlite serializes writers anyway
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	s := New(db)
	if err := s.AutoMigrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&operate{},
		&lendingPool{},
		&leveragePool{},
		&position{},
		&withdrawRequest{},
	)
	return errors.Wrap(err, "migrate")
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.ErrRecordNotFound
	}
	return err
}
