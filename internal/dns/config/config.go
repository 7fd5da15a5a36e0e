package config

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/nullroute/nr-dns/internal/dns/domain"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log LoggingConfig `koanf:"log" validate:"required"`

	Store StoreConfig `koanf:"store" validate:"required"`

	Cache CacheConfig `koanf:"cache"`

	Routes RouteConfig `koanf:"routes" validate:"required"`
}

type LoggingConfig struct {
	// Level defines the logging level: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

type StoreConfig struct {
	// Path of the rule database. Populated and swapped by external tooling;
	// the engine opens it read-only.
	Path string `koanf:"path" validate:"required"`

	// Pool is the number of read handles over the rule database.
	Pool int `koanf:"pool" validate:"required,gte=1,lte=256"`
}

type CacheConfig struct {
	// Decision LRU cache size, 0 to disable.
	Size int `koanf:"size" validate:"gte=0"`
}

// RouteConfig carries the four address sets as strings; AddressSets converts
// and validates them into value types at startup.
type RouteConfig struct {
	// TerminateV4/TerminateV6 are sinkhole addresses, no port.
	TerminateV4 []string `koanf:"sinkhole4" validate:"required,dive,ip"`
	TerminateV6 []string `koanf:"sinkhole6" validate:"required,dive,ip"`

	// DNSBlock/DNSAllow are upstream endpoints with an optional port.
	DNSBlock []string `koanf:"block" validate:"omitempty,dive,endpoint"`
	DNSAllow []string `koanf:"allow" validate:"omitempty,dive,endpoint"`
}

// DEFAULT_APP_CONFIG defines the default settings: a prod JSON logger, the
// reference pool size, a 10k decision cache, and the standard sinkholes.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LoggingConfig{
		Level: "info",
	},
	Store: StoreConfig{
		Path: "/var/lib/nr-dns/rules.db",
		Pool: 32,
	},
	Cache: CacheConfig{
		Size: 10000,
	},
	Routes: RouteConfig{
		TerminateV4: []string{"0.0.0.0"},
		TerminateV6: []string{"::"},
		DNSBlock:    []string{},
		DNSAllow:    []string{},
	},
}

// validEndpoint validates an upstream address with an optional port.
func validEndpoint(fl validator.FieldLevel) bool {
	_, err := domain.ParseEndpoint(fl.Field().String())
	return err == nil
}

// envLoader loads environment variables with the prefix "NRDNS_",
// lowercasing keys, mapping "_" to "." and splitting list values.
// Can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "NRDNS_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, "NRDNS_")), "_", ".")
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads the default configuration via the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "endpoint" validation.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("endpoint", validEndpoint)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

// AddressSets converts the validated route strings into the engine's value
// types. Keys in the four sets keep their configured order; the first element
// of each set answers single-address replies.
func (c *AppConfig) AddressSets() (domain.AddressSets, error) {
	var out domain.AddressSets
	for _, s := range c.Routes.TerminateV4 {
		addr, err := netip.ParseAddr(strings.TrimSpace(s))
		if err != nil {
			return domain.AddressSets{}, fmt.Errorf("terminate_v4 entry %q: %w", s, err)
		}
		out.TerminateV4 = append(out.TerminateV4, addr)
	}
	for _, s := range c.Routes.TerminateV6 {
		addr, err := netip.ParseAddr(strings.TrimSpace(s))
		if err != nil {
			return domain.AddressSets{}, fmt.Errorf("terminate_v6 entry %q: %w", s, err)
		}
		out.TerminateV6 = append(out.TerminateV6, addr)
	}
	for _, s := range c.Routes.DNSBlock {
		ep, err := domain.ParseEndpoint(s)
		if err != nil {
			return domain.AddressSets{}, fmt.Errorf("dns_block entry: %w", err)
		}
		out.DNSBlock = append(out.DNSBlock, ep)
	}
	for _, s := range c.Routes.DNSAllow {
		ep, err := domain.ParseEndpoint(s)
		if err != nil {
			return domain.AddressSets{}, fmt.Errorf("dns_allow entry: %w", err)
		}
		out.DNSAllow = append(out.DNSAllow, ep)
	}
	if err := out.Validate(); err != nil {
		return domain.AddressSets{}, err
	}
	return out, nil
}
