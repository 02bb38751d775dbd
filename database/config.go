/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables overriding them.
var envBindings = map[string]string{
	"connection.type":                   "DB_TYPE",
	"connection.host":                   "DB_HOST",
	"connection.port":                   "DB_PORT",
	"connection.username":               "DB_USERNAME",
	"connection.password":               "DB_PASSWORD",
	"connection.dbname":                 "DB_NAME",
	"connection.sslmode":                "DB_SSLMODE",
	"connection.charset":                "DB_CHARSET",
	"connection.max_idle_conns":         "DB_MAX_IDLE_CONNS",
	"connection.max_open_conns":         "DB_MAX_OPEN_CONNS",
	"connection.conn_max_lifetime":      "DB_CONN_MAX_LIFETIME",
	"connection.enable_reconnect":       "DB_ENABLE_RECONNECT",
	"connection.enable_query_log":       "DB_ENABLE_QUERY_LOG",
	"connection.slow_query_time":        "DB_SLOW_QUERY_TIME",
	"migrate.enable_migrate_on_startup": "DB_MIGRATE_ON_STARTUP",
	"discovery.namespace":               "COMMONAPI_NAMESPACE",
	"discovery.manifest_file":           "COMMONAPI_MANIFEST_FILE",
	"log.level":                         "LOG_LEVEL",
	"log.format":                        "CONSOLE_LOG_FORMAT",
}

// LoadConfig reads the YAML (or any viper-supported) file at path, applies
// environment overrides and returns the resulting Config. Missing dotenv
// files are ignored; an empty path loads defaults and environment only.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	v := viper.New()
	setConfigDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func setConfigDefaults(v *viper.Viper) {
	d := DefaultConnectionConfig()
	v.SetDefault("connection.type", "sqlite")
	v.SetDefault("connection.dbname", ":memory:")
	v.SetDefault("connection.max_idle_conns", d.MaxIdleConns)
	v.SetDefault("connection.max_open_conns", d.MaxOpenConns)
	v.SetDefault("connection.conn_max_lifetime", d.ConnMaxLifetime)
	v.SetDefault("connection.conn_max_idle_time", d.ConnMaxIdleTime)
	v.SetDefault("connection.connect_timeout", d.ConnectTimeout)
	v.SetDefault("connection.read_timeout", d.ReadTimeout)
	v.SetDefault("connection.write_timeout", d.WriteTimeout)
	v.SetDefault("connection.enable_reconnect", d.EnableReconnect)
	v.SetDefault("connection.reconnect_interval", d.ReconnectInterval)
	v.SetDefault("connection.max_reconnect_tries", d.MaxReconnectTries)
	v.SetDefault("connection.health_check_interval", d.HealthCheckInterval)
	v.SetDefault("connection.enable_query_log", d.EnableQueryLog)
	v.SetDefault("connection.slow_query_time", d.SlowQueryTime)
	v.SetDefault("migrate.enable_migrate_on_startup", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// ConfigLoader implements AbstractDatabaseConfigProvider.
func (c *Config) ConfigLoader() *Config {
	return c
}
