// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package configs

import "fmt"

type PostgresAuth struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type PostgresConfig struct {
	Host               string       `mapstructure:"host"`
	Port               int          `mapstructure:"port"`
	DBName             string       `mapstructure:"db_name"`
	Auth               PostgresAuth `mapstructure:"auth"`
	MaxOpenConnection  int          `mapstructure:"max_open_connection"`
	MaxIdealConnection int          `mapstructure:"max_ideal_connection"`
	SslMode            string       `mapstructure:"ssl_mode"`
}

// DSN renders the libpq keyword/value connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Auth.User, c.Auth.Password, c.DBName, c.SslMode)
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// DatabaseConfig selects the SQL backend for persistent stores.
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type RedisConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	MaxConnection int    `mapstructure:"max_connection"`
}

// Enabled reports whether a redis host has been configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
