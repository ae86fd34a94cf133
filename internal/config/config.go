package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "HABILL"

	DriverTOML   = "toml"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

const (
	KeyStoreDriver     = "store.driver"
	KeyStorePath       = "store.path"
	KeyRedisAddr       = "store.redis.addr"
	KeyRedisPrefix     = "store.redis.prefix"
	KeyVerifyTimeout   = "verify.timeout"
	KeyVerifyInterval  = "verify.interval"
	KeyVerifyRPC       = "verify.rpc"
	KeyExplorer        = "explorer"
	KeyPriceURL        = "price.url"
	KeyPriceStatic     = "price.static"
	KeyCheckoutListen  = "checkout.listen"
	KeyCheckoutTimeout = "checkout.timeout"
	KeyCheckoutBrowser = "checkout.browser"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
)

type Settings struct {
	Store    StoreSettings
	Verify   VerifySettings
	Price    PriceSettings
	Checkout CheckoutSettings
	Log      LogSettings
}

type StoreSettings struct {
	Driver      string
	Path        string
	RedisAddr   string
	RedisPrefix string
}

// VerifySettings.RPC maps chain ids to JSON-RPC node URLs. Chains without one
// are looked up through their explorer only.
type VerifySettings struct {
	Timeout   time.Duration
	Interval  time.Duration
	RPC       map[int64]string
	Explorers map[int64]string
}

type PriceSettings struct {
	URL    string
	Static string
}

// CheckoutSettings.Browser false prints checkout URLs instead of launching a browser.
type CheckoutSettings struct {
	Listen  string
	Timeout time.Duration
	Browser bool
}

type LogSettings struct {
	Level  string
	Format string
}

func DefaultPath(homeDir string) string {
	return filepath.Join(homeDir, ".config", "habill", "config.toml")
}

// Load layers defaults, the optional config file, an optional .env file in
// workDir and HABILL_* environment variables, in increasing precedence.
func Load(v *viper.Viper, homeDir, workDir string) (Settings, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	v.SetConfigFile(DefaultPath(homeDir))
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
		return Settings{}, fmt.Errorf("read config file: %w", err)
	}

	v.SetEnvPrefix(strings.ToLower(EnvPrefix))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	overlay, err := envOverlay(workDir)
	if err != nil {
		return Settings{}, err
	}
	for key, value := range overlay {
		v.Set(key, value)
	}

	settings := Settings{
		Store: StoreSettings{
			Driver:      strings.ToLower(strings.TrimSpace(v.GetString(KeyStoreDriver))),
			Path:        strings.TrimSpace(v.GetString(KeyStorePath)),
			RedisAddr:   strings.TrimSpace(v.GetString(KeyRedisAddr)),
			RedisPrefix: v.GetString(KeyRedisPrefix),
		},
		Verify: VerifySettings{
			Timeout:  v.GetDuration(KeyVerifyTimeout),
			Interval: v.GetDuration(KeyVerifyInterval),
		},
		Price: PriceSettings{
			URL:    strings.TrimSpace(v.GetString(KeyPriceURL)),
			Static: strings.TrimSpace(v.GetString(KeyPriceStatic)),
		},
		Checkout: CheckoutSettings{
			Listen:  strings.TrimSpace(v.GetString(KeyCheckoutListen)),
			Timeout: v.GetDuration(KeyCheckoutTimeout),
			Browser: v.GetBool(KeyCheckoutBrowser),
		},
		Log: LogSettings{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}

	if settings.Verify.RPC, err = chainURLs(v, KeyVerifyRPC); err != nil {
		return Settings{}, err
	}
	if settings.Verify.Explorers, err = chainURLs(v, KeyExplorer); err != nil {
		return Settings{}, err
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (s Settings) Validate() error {
	switch s.Store.Driver {
	case DriverTOML, DriverSQLite:
	case DriverRedis:
		if s.Store.RedisAddr == "" {
			return fmt.Errorf("%s is required for the redis driver", KeyRedisAddr)
		}
	default:
		return fmt.Errorf("unsupported %s %q", KeyStoreDriver, s.Store.Driver)
	}
	if s.Verify.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", KeyVerifyTimeout)
	}
	if s.Verify.Interval <= 0 {
		return fmt.Errorf("%s must be positive", KeyVerifyInterval)
	}
	if s.Checkout.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", KeyCheckoutTimeout)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyStoreDriver, DriverTOML)
	v.SetDefault(KeyRedisAddr, "127.0.0.1:6379")
	v.SetDefault(KeyRedisPrefix, "habill:")
	v.SetDefault(KeyVerifyTimeout, 5*time.Second)
	v.SetDefault(KeyVerifyInterval, 24*time.Hour)
	v.SetDefault(KeyPriceURL, "https://api.coingecko.com/api/v3")
	v.SetDefault(KeyPriceStatic, "")
	v.SetDefault(KeyCheckoutListen, "127.0.0.1:4243")
	v.SetDefault(KeyCheckoutTimeout, 10*time.Minute)
	v.SetDefault(KeyCheckoutBrowser, true)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFormat, "auto")
}

// envOverlay collects HABILL_* variables from workDir/.env and the process
// environment, the latter winning. Keys come back in viper form.
func envOverlay(workDir string) (map[string]string, error) {
	merged := map[string]string{}

	if workDir != "" {
		dotenv, err := godotenv.Read(filepath.Join(workDir, ".env"))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read .env file: %w", err)
		}
		for name, value := range dotenv {
			merged[name] = value
		}
	}

	for _, entry := range os.Environ() {
		name, value, ok := strings.Cut(entry, "=")
		if ok {
			merged[name] = value
		}
	}

	overlay := make(map[string]string)
	for name, value := range merged {
		key, ok := envNameToKey(name)
		if !ok {
			continue
		}
		overlay[key] = value
	}
	return overlay, nil
}

func envNameToKey(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, EnvPrefix+"_")
	if !ok || rest == "" {
		return "", false
	}
	return strings.ToLower(strings.ReplaceAll(rest, "_", ".")), true
}

func chainURLs(v *viper.Viper, key string) (map[int64]string, error) {
	raw := v.GetStringMapString(key)
	urls := make(map[int64]string, len(raw))
	for rawID, value := range raw {
		chainID, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
		if err != nil || chainID <= 0 {
			return nil, fmt.Errorf("%s.%s: chain id must be a positive integer", key, rawID)
		}
		if value = strings.TrimSpace(value); value != "" {
			urls[chainID] = value
		}
	}
	return urls, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}
