package main

import (
	"fmt"
	"os"
	"time"

	"judgeworker/internal/judge/compiler"
	"judgeworker/internal/judge/sandbox/runner"
	"judgeworker/internal/judge/session"
	"judgeworker/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultSleepSeconds      = 5
	defaultCheckAliveSeconds = 30
	defaultCacheTTL          = 24 * time.Hour
)

// HostConfig addresses the grading master this worker authenticates to.
type HostConfig struct {
	Master     string `yaml:"master"`
	MasterPass string `yaml:"master_pass"`
}

// LanguagesConfig locates the TOML language descriptors this worker serves.
type LanguagesConfig struct {
	Dir string `yaml:"dir"`
}

// SandboxConfig configures how the worker drives the isolate CLI.
type SandboxConfig struct {
	IsolatePath string `yaml:"isolatePath"`
	BoxID       int    `yaml:"boxID"`
	WorkDir     string `yaml:"workDir"`
}

// CacheConfig configures the optional Redis-backed grader compile cache.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
	TTL           time.Duration `yaml:"ttl"`
}

// TimersConfig configures the session's backoff and keepalive cadence.
type TimersConfig struct {
	SleepSeconds      int `yaml:"sleepSeconds"`
	CheckAliveSeconds int `yaml:"checkAliveSeconds"`
}

// AppConfig holds judge-worker config.
type AppConfig struct {
	Host      HostConfig      `yaml:"host"`
	Logging   logger.Config   `yaml:"logging"`
	Languages LanguagesConfig `yaml:"languages"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Cache     CacheConfig     `yaml:"cache"`
	Timers    TimersConfig    `yaml:"timers"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Host.Master == "" {
		return nil, fmt.Errorf("host.master is required")
	}
	if cfg.Languages.Dir == "" {
		return nil, fmt.Errorf("languages.dir is required")
	}
	if cfg.Timers.SleepSeconds <= 0 {
		cfg.Timers.SleepSeconds = defaultSleepSeconds
	}
	if cfg.Timers.CheckAliveSeconds <= 0 {
		cfg.Timers.CheckAliveSeconds = defaultCheckAliveSeconds
	}
	if cfg.Sandbox.IsolatePath == "" {
		cfg.Sandbox.IsolatePath = "isolate"
	}
	if cfg.Sandbox.WorkDir == "" {
		cfg.Sandbox.WorkDir = os.TempDir()
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = defaultCacheTTL
	}
	return &cfg, nil
}

func (s SandboxConfig) toRunnerConfig() runner.Config {
	return runner.Config{
		IsolatePath: s.IsolatePath,
		BoxID:       s.BoxID,
		ScratchDir:  s.WorkDir,
	}
}

func (c CacheConfig) toCompilerCacheConfig() compiler.CacheConfig {
	return compiler.CacheConfig{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		TTL:      c.TTL,
	}
}

func (t TimersConfig) toSessionTimers() (sleep, checkAlive time.Duration) {
	return time.Duration(t.SleepSeconds) * time.Second, time.Duration(t.CheckAliveSeconds) * time.Second
}

func (cfg *AppConfig) toSessionConfig() session.Config {
	sleep, checkAlive := cfg.Timers.toSessionTimers()
	return session.Config{
		MasterAddr:     cfg.Host.Master,
		MasterPassword: cfg.Host.MasterPass,
		SleepTime:      sleep,
		CheckAliveTime: checkAlive,
		ScratchRoot:    cfg.Sandbox.WorkDir,
	}
}
