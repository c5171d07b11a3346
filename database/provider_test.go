package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/passcode/config"
	"github.com/tech-arch1tect/passcode/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func createTestConfig(driver, dsn string, autoMigrate bool) config.Config {
	return config.Config{
		Database: config.DatabaseConfig{
			Driver:      driver,
			DSN:         dsn,
			AutoMigrate: autoMigrate,
		},
	}
}

func newTestLogger() *logging.Service {
	logger, _ := logging.NewService(logging.Config{
		Level:      logging.Error,
		Format:     "console",
		OutputPath: "stdout",
	})
	return logger
}

type TestModel struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:255"`
}

func TestWithModels(t *testing.T) {
	assert.Len(t, WithModels().models, 0)
	assert.Len(t, WithModels(TestModel{}, &TestModel{}).models, 2)
}

func TestProvideDatabase_SQLite(t *testing.T) {
	t.Run("in-memory connection", func(t *testing.T) {
		db, err := ProvideDatabase(createTestConfig("sqlite", ":memory:", false), nil, newTestLogger())

		require.NoError(t, err)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		defer sqlDB.Close()
		assert.NoError(t, sqlDB.Ping())
		assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	})

	t.Run("file-based connection", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "otp.db")

		db, err := ProvideDatabase(createTestConfig("sqlite", dbPath, false), nil, nil)

		require.NoError(t, err)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		defer sqlDB.Close()
		require.NoError(t, sqlDB.Ping())

		_, err = os.Stat(dbPath)
		assert.NoError(t, err)
	})

	t.Run("auto-migration creates tables", func(t *testing.T) {
		db, err := ProvideDatabase(createTestConfig("sqlite", ":memory:", true), WithModels(&TestModel{}), newTestLogger())

		require.NoError(t, err)
		assert.True(t, db.Migrator().HasTable(&TestModel{}))
	})

	t.Run("auto-migration disabled leaves schema alone", func(t *testing.T) {
		db, err := ProvideDatabase(createTestConfig("sqlite", ":memory:", false), WithModels(&TestModel{}), newTestLogger())

		require.NoError(t, err)
		assert.False(t, db.Migrator().HasTable(&TestModel{}))
	})

	t.Run("invalid path", func(t *testing.T) {
		db, err := ProvideDatabase(createTestConfig("sqlite", "/nonexistent/directory/otp.db", false), nil, newTestLogger())

		require.Error(t, err)
		assert.Nil(t, db)
		assert.Contains(t, err.Error(), "failed to connect to database")
	})
}

func TestProvideDatabase_UnsupportedDriver(t *testing.T) {
	db, err := ProvideDatabase(createTestConfig("oracle", "x", false), nil, nil)

	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "unsupported database driver: oracle")
	assert.Contains(t, err.Error(), "supported: sqlite, postgres, mysql")
}

func TestProvideDatabase_AutoMigrationFailure(t *testing.T) {
	type InvalidChannelModel struct {
		ID      uint `gorm:"primaryKey"`
		Channel chan string
	}

	db, err := ProvideDatabase(createTestConfig("sqlite", ":memory:", true), WithModels(InvalidChannelModel{}), nil)

	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to auto-migrate models")
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Info, gormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, gormLogLevel("warn"))
	assert.Equal(t, gormlogger.Error, gormLogLevel("error"))
	assert.Equal(t, gormlogger.Silent, gormLogLevel("info"))
}

func TestModule(t *testing.T) {
	cfg := createTestConfig("sqlite", ":memory:", true)

	var db *gorm.DB
	app := fx.New(
		Module,
		fx.Supply(&cfg),
		fx.Supply(newTestLogger()),
		fx.Supply(WithModels(&TestModel{})),
		fx.NopLogger,
		fx.Populate(&db),
	)

	require.NoError(t, app.Err())
	require.NotNil(t, db)
	assert.True(t, db.Migrator().HasTable(&TestModel{}))
}
