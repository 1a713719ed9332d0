// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package connectors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
	"github.com/rapidaai/pitch-rehearsal/pkg/configs"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// SQLConnector hands out a context-bound gorm handle to stores.
type SQLConnector interface {
	Connect(ctx context.Context) error
	Name() string
	IsConnected(ctx context.Context) bool
	Disconnect(ctx context.Context) error
	DB(ctx context.Context) *gorm.DB
}

type sqlConnector struct {
	cfg    configs.DatabaseConfig
	logger commons.Logger
	db     *gorm.DB
}

// NewSQLConnector returns a connector for the configured driver (postgres or sqlite).
func NewSQLConnector(cfg configs.DatabaseConfig, logger commons.Logger) SQLConnector {
	return &sqlConnector{cfg: cfg, logger: logger}
}

func (c *sqlConnector) Name() string {
	return fmt.Sprintf("SQL %s", c.cfg.Driver)
}

func (c *sqlConnector) Connect(ctx context.Context) error {
	var dialector gorm.Dialector
	switch c.cfg.Driver {
	case "postgres":
		dialector = postgres.Open(c.cfg.Postgres.DSN())
	case "sqlite":
		path := c.cfg.SQLite.Path
		if path == "" {
			path = "file::memory:?cache=shared"
		} else if !strings.HasPrefix(path, "file:") {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("failed to create sqlite directory for %s: %w", path, err)
			}
		}
		dialector = sqlite.Open(path)
	default:
		return fmt.Errorf("unsupported database driver %q", c.cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql handle for %s: %w", c.Name(), err)
	}
	if c.cfg.Driver == "postgres" {
		if c.cfg.Postgres.MaxOpenConnection > 0 {
			sqlDB.SetMaxOpenConns(c.cfg.Postgres.MaxOpenConnection)
		}
		if c.cfg.Postgres.MaxIdealConnection > 0 {
			sqlDB.SetMaxIdleConns(c.cfg.Postgres.MaxIdealConnection)
		}
	} else {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping %s: %w", c.Name(), err)
	}

	c.db = db
	c.logger.Infof("connected to %s", c.Name())
	return nil
}

func (c *sqlConnector) IsConnected(ctx context.Context) bool {
	if c.db == nil {
		return false
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}

func (c *sqlConnector) Disconnect(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	c.logger.Debugf("disconnecting %s", c.Name())
	return sqlDB.Close()
}

func (c *sqlConnector) DB(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx)
}
