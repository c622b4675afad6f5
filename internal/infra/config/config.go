// Пакет config отвечает за сбор и предоставление конфигурации демона
// синхронизации. Он:
//  1. читает переменные окружения из .env (через godotenv) — учетные данные
//     MTProto и операционные параметры запуска;
//  2. загружает config.json — тонкую настройку staleness-порогов кеша и
//     параметров реконнекта/шедулера;
//  3. нормализует и валидирует входные значения, накапливая предупреждения
//     вместо падения на несущественных настройках;
//  4. предоставляет потокобезопасный доступ к результату через singleton.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// EnvConfig описывает параметры, приходящие из окружения (.env): учетные
// данные MTProto и путь к каталогу данных демона.
type EnvConfig struct {
	APIID       int
	APIHash     string
	PhoneNumber string
	DataDir     string
	LogLevel    string
	TestDC      bool
}

// FileConfig описывает параметры, приходящие из config.json, перечисленные
// в внешнем интерфейсе. Значения длительности хранятся уже распарсенными в
// time.Duration.
type FileConfig struct {
	ActiveAccount         int
	CacheStalenessPeers   time.Duration
	CacheStalenessDialogs time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectMaxAttempts  int
	ReconnectMultiplier   float64
	ShutdownTimeout       time.Duration
	InterJobDelay         time.Duration
}

// Config хранит объединённую конфигурацию демона. Потокобезопасность:
// публичные геттеры берут RLock.
type Config struct {
	Env      EnvConfig
	File     FileConfig
	warnings []string
	mu       sync.RWMutex
}

const (
	defaultLogLevel = "info"
	defaultDataDir  = "data"

	defaultCacheStalenessPeers   = 7 * 24 * time.Hour
	defaultCacheStalenessDialogs = 7 * 24 * time.Hour
	defaultReconnectInitialDelay = time.Second
	defaultReconnectMaxDelay     = 60 * time.Second
	defaultReconnectMaxAttempts  = 10
	defaultReconnectMultiplier   = 2.0
	defaultShutdownTimeout       = 30 * time.Second
	defaultInterJobDelay         = 100 * time.Millisecond
)

var (
	cfgInstance *Config
	cfgDone     bool
	cfgMu       sync.Mutex
)

// Load — точка входа для инициализации глобальной конфигурации демона.
// Повторный вызов запрещён, чтобы избежать гонок конфигурации на старте, в
// соответствии с design-note о процессно-глобальном состоянии.
func Load(envPath, jsonPath string) error {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	if cfgDone {
		return errors.New("config already loaded")
	}
	cfg, err := loadConfig(envPath, jsonPath)
	if err != nil {
		return err
	}
	cfgInstance = cfg
	cfgDone = true
	return nil
}

// loadConfig выполняет фактическую загрузку/валидацию без установки
// глобального состояния — удобно для тестов.
func loadConfig(envPath, jsonPath string) (*Config, error) {
	// godotenv.Load не считается фатальным при отсутствии файла: переменные
	// могли быть заданы напрямую окружением процесса.
	_ = godotenv.Load(envPath)

	apiID, err := parseRequiredInt("API_ID")
	if err != nil {
		return nil, err
	}
	apiHash := strings.TrimSpace(os.Getenv("API_HASH"))
	if apiHash == "" {
		return nil, errors.New("env API_HASH must be set")
	}
	phone := strings.TrimSpace(os.Getenv("PHONE_NUMBER"))
	if phone == "" {
		return nil, errors.New("env PHONE_NUMBER must be set")
	}

	var warnings []string
	logLevel := sanitizeLogLevel(os.Getenv("LOG_LEVEL"), &warnings)
	dataDir := sanitizeFile("TELEGRAM_SYNC_CLI_DATA_DIR", os.Getenv("TELEGRAM_SYNC_CLI_DATA_DIR"), defaultDataDir, &warnings)
	testDC := strings.EqualFold(strings.TrimSpace(os.Getenv("TEST_DC")), "true")

	env := EnvConfig{
		APIID:       apiID,
		APIHash:     apiHash,
		PhoneNumber: phone,
		DataDir:     dataDir,
		LogLevel:    logLevel,
		TestDC:      testDC,
	}

	file, err := loadFileConfig(jsonPath, &warnings)
	if err != nil {
		return nil, err
	}

	return &Config{Env: env, File: file, warnings: warnings}, nil
}

// fileConfigRaw is the on-disk JSON shape of config.json, matching the
// option names enumerated in the external interfaces section exactly.
type fileConfigRaw struct {
	ActiveAccount int `json:"activeAccount"`
	Cache         struct {
		Staleness struct {
			Peers   string `json:"peers"`
			Dialogs string `json:"dialogs"`
		} `json:"staleness"`
	} `json:"cache"`
	Reconnect struct {
		InitialDelayMs    int     `json:"initialDelayMs"`
		MaxDelayMs        int     `json:"maxDelayMs"`
		MaxAttempts       int     `json:"maxAttempts"`
		BackoffMultiplier float64 `json:"backoffMultiplier"`
	} `json:"reconnect"`
	ShutdownTimeoutMs int `json:"shutdownTimeoutMs"`
	InterJobDelayMs   int `json:"interJobDelayMs"`
}

func loadFileConfig(path string, warnings *[]string) (FileConfig, error) {
	fc := FileConfig{
		ActiveAccount:         0,
		CacheStalenessPeers:   defaultCacheStalenessPeers,
		CacheStalenessDialogs: defaultCacheStalenessDialogs,
		ReconnectInitialDelay: defaultReconnectInitialDelay,
		ReconnectMaxDelay:     defaultReconnectMaxDelay,
		ReconnectMaxAttempts:  defaultReconnectMaxAttempts,
		ReconnectMultiplier:   defaultReconnectMultiplier,
		ShutdownTimeout:       defaultShutdownTimeout,
		InterJobDelay:         defaultInterJobDelay,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			appendWarningf(warnings, "config file %s not found; using defaults", path)
			return fc, nil
		}
		return fc, fmt.Errorf("read config %s: %w", path, err)
	}

	var raw fileConfigRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}

	if raw.ActiveAccount > 0 {
		fc.ActiveAccount = raw.ActiveAccount
	}
	if d, ok := parseDurationString(raw.Cache.Staleness.Peers, warnings, "cache.staleness.peers"); ok {
		fc.CacheStalenessPeers = d
	}
	if d, ok := parseDurationString(raw.Cache.Staleness.Dialogs, warnings, "cache.staleness.dialogs"); ok {
		fc.CacheStalenessDialogs = d
	}
	if raw.Reconnect.InitialDelayMs > 0 {
		fc.ReconnectInitialDelay = time.Duration(raw.Reconnect.InitialDelayMs) * time.Millisecond
	}
	if raw.Reconnect.MaxDelayMs > 0 {
		fc.ReconnectMaxDelay = time.Duration(raw.Reconnect.MaxDelayMs) * time.Millisecond
	}
	if raw.Reconnect.MaxAttempts > 0 {
		fc.ReconnectMaxAttempts = raw.Reconnect.MaxAttempts
	}
	if raw.Reconnect.BackoffMultiplier > 0 {
		fc.ReconnectMultiplier = raw.Reconnect.BackoffMultiplier
	}
	if raw.ShutdownTimeoutMs > 0 {
		fc.ShutdownTimeout = time.Duration(raw.ShutdownTimeoutMs) * time.Millisecond
	}
	if raw.InterJobDelayMs > 0 {
		fc.InterJobDelay = time.Duration(raw.InterJobDelayMs) * time.Millisecond
	}

	return fc, nil
}

// parseDurationString parses the "<n>(s|m|h|d|w)" grammar named in the
// external interfaces section. time.ParseDuration rejects 'd' and 'w'
// suffixes, so this is hand-rolled rather than borrowed from the standard
// library or any pack dependency.
func parseDurationString(s string, warnings *[]string, field string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if len(s) < 2 {
		appendWarningf(warnings, "%s value %q is not a valid duration; keeping default", field, s)
		return 0, false
	}
	unit := s[len(s)-1]
	numPart := s[:len(s)-1]
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil || n < 0 {
		appendWarningf(warnings, "%s value %q is not a valid duration; keeping default", field, s)
		return 0, false
	}
	var unitDur time.Duration
	switch unit {
	case 's':
		unitDur = time.Second
	case 'm':
		unitDur = time.Minute
	case 'h':
		unitDur = time.Hour
	case 'd':
		unitDur = 24 * time.Hour
	case 'w':
		unitDur = 7 * 24 * time.Hour
	default:
		appendWarningf(warnings, "%s value %q has unknown unit %q; keeping default", field, s, string(unit))
		return 0, false
	}
	return time.Duration(n) * unitDur, true
}

// Warnings возвращает накопленные предупреждения, возникшие при загрузке.
func Warnings() []string {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	out := make([]string, len(cfgInstance.warnings))
	copy(out, cfgInstance.warnings)
	return out
}

// Env возвращает EnvConfig из глобального singleton.
func Env() EnvConfig {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	return cfgInstance.Env
}

// File возвращает FileConfig из глобального singleton.
func File() FileConfig {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	return cfgInstance.File
}

func parseRequiredInt(name string) (int, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return 0, fmt.Errorf("env %s must be set", name)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("env %s must be a valid integer: %w", name, err)
	}
	return v, nil
}

func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

func sanitizeLogLevel(level string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		appendWarningf(warnings, "env LOG_LEVEL is not set; using default %q", defaultLogLevel)
		return defaultLogLevel
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env LOG_LEVEL value %q is invalid; using default %q", level, defaultLogLevel)
		return defaultLogLevel
	}
}

func sanitizeFile(name, value, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}
