package db

import (
	"fmt"

	"github.com/fitroom/fitroom-client/config"
	dbmysql "github.com/fitroom/fitroom-client/db/mysql"
	dbsqlite "github.com/fitroom/fitroom-client/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeMemory = "memory"
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

// Open returns a *gorm.DB for the configured database mode. The client
// store uses sqlite (memory in tests); the reference backend may also
// run against MySQL.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeMemory:
		gdb, err := dbsqlite.Open(":memory:")
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		// Every pooled :memory: connection would get its own empty
		// database, so keep the pool at a single connection.
		sqlDB.SetMaxOpenConns(1)
		return gdb, nil
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MySQLMaxOpen, cfg.MySQLMaxIdle, cfg.MySQLMaxLife)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
