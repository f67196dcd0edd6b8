// Package config
// Created by RTT.
// Author: teocci@yandex.com on 2021-Oct-27
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/teocci/go-mp4clip/utils/logger"
)

const envPrefix = "MP4CLIP_"

const (
	DefaultReadBuffer = 4096
	DefaultTimeScale  = 1000
)

// Config stores the settings shared by the command line tools.
// Flags given on the command line take precedence over these values.
type Config struct {
	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int

	ReadBuffer   int    // upper bound of each read fed to the AAC parser
	AACSentinel  bool   // write the 8-byte marker after each AAC payload
	TimeScale    uint32 // default timescale of --start/--end
	EnvFileFound bool
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(envPrefix + key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(envPrefix + key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(envPrefix + key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// Load reads a .env file from the working directory when present, then the
// environment. godotenv never overrides variables that are already set.
func Load() *Config {
	err := godotenv.Load()

	cfg := &Config{
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE_DAYS", 28),
		ReadBuffer:    getEnvInt("READ_BUFFER", DefaultReadBuffer),
		AACSentinel:   getEnvBool("AAC_SENTINEL", true),
		EnvFileFound:  err == nil,
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = DefaultReadBuffer
	}
	ts := getEnvInt("DEFAULT_TIMESCALE", DefaultTimeScale)
	if ts <= 0 {
		ts = DefaultTimeScale
	}
	cfg.TimeScale = uint32(ts)

	return cfg
}

// Logger converts the log settings into a logger configuration.
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:      logger.LogLevel(c.LogLevel),
		OutputPath: c.LogFile,
		MaxSize:    c.LogMaxSize,
		MaxBackups: c.LogMaxBackups,
		MaxAge:     c.LogMaxAge,
	}
}
