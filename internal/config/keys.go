package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "TENDERSYNC_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "TENDERSYNC_SERVER_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "api.base_url", typ: kString, env: "TENDERSYNC_API_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
	},
	{
		key: "api.organisation_id", typ: kString, env: "TENDERSYNC_API_ORGANISATION_ID",
		apply:   func(cfg *Config, v any) { cfg.API.OrganisationID = v.(string) },
		extract: func(cfg Config) any { return cfg.API.OrganisationID },
	},
	{
		key: "api.page_limit", typ: kInt, env: "TENDERSYNC_API_PAGE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.API.PageLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.API.PageLimit },
	},
	{
		key: "api.page_delay", typ: kString, env: "TENDERSYNC_API_PAGE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.API.PageDelay = v.(string) },
		extract: func(cfg Config) any { return cfg.API.PageDelay },
	},
	{
		key: "api.timeout", typ: kString, env: "TENDERSYNC_API_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.API.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Timeout },
	},
	{
		key: "sink.workbook_path", typ: kString, env: "TENDERSYNC_SINK_WORKBOOK_PATH",
		apply:   func(cfg *Config, v any) { cfg.Sink.WorkbookPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Sink.WorkbookPath },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TENDERSYNC_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "fetch.default_from", typ: kString, env: "TENDERSYNC_FETCH_DEFAULT_FROM",
		apply:   func(cfg *Config, v any) { cfg.Fetch.DefaultFrom = v.(string) },
		extract: func(cfg Config) any { return cfg.Fetch.DefaultFrom },
	},
	{
		key: "fetch.to_override", typ: kString, env: "TENDERSYNC_FETCH_TO_OVERRIDE",
		apply:   func(cfg *Config, v any) { cfg.Fetch.ToOverride = v.(string) },
		extract: func(cfg Config) any { return cfg.Fetch.ToOverride },
	},
	{
		key: "fetch.value_epsilon", typ: kFloat, env: "TENDERSYNC_FETCH_VALUE_EPSILON",
		apply:   func(cfg *Config, v any) { cfg.Fetch.ValueEpsilon = v.(float64) },
		extract: func(cfg Config) any { return cfg.Fetch.ValueEpsilon },
	},
	{
		key: "schedule.enabled", typ: kBool, env: "TENDERSYNC_SCHEDULE_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Schedule.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Schedule.Enabled },
	},
	{
		key: "schedule.interval", typ: kString, env: "TENDERSYNC_SCHEDULE_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Schedule.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.Interval },
	},
	{
		key: "log.level", typ: kString, env: "TENDERSYNC_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
