package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// sourceKinds names the known content source implementations.
var sourceKinds = map[string]bool{
	"feed": true,
}

// Validate checks the structural validity of a Config. All problems are
// reported at once via errors.Join so a broken file can be fixed in one
// pass.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if cfg.Database.Path == "" {
		errs = append(errs, errors.New("config: database.path is required"))
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log.level %q", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log.format %q", cfg.Log.Format))
	}

	if cfg.Gateway.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Gateway.Listen); err != nil {
			errs = append(errs, fmt.Errorf("config: gateway.listen: %w", err))
		}
	}

	if cfg.Scheduler.Workers < 0 {
		errs = append(errs, errors.New("config: scheduler.workers must not be negative"))
	}
	if cfg.Policy.Jitter < 0 || cfg.Policy.Jitter > 1 {
		errs = append(errs, errors.New("config: policy.jitter must be within [0, 1]"))
	}

	errs = append(errs, validateSource(cfg.Source)...)
	errs = append(errs, validateSinks(cfg.Sinks)...)

	return errors.Join(errs...)
}

func validateSource(src SourceConfig) []error {
	var errs []error

	if src.Kind == "" {
		errs = append(errs, errors.New("config: source.kind is required"))
		return errs
	}
	if !sourceKinds[src.Kind] {
		errs = append(errs, fmt.Errorf("config: unknown source.kind %q", src.Kind))
		return errs
	}

	if src.URL == "" {
		errs = append(errs, errors.New("config: source.url is required for the feed source"))
	} else if u, err := url.Parse(src.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("config: source.url %q is not an absolute URL", src.URL))
	}
	return errs
}

func validateSinks(sinks SinksConfig) []error {
	var errs []error

	if sinks.File != nil && sinks.File.Dir == "" {
		errs = append(errs, errors.New("config: sinks.file.dir is required"))
	}
	if sinks.SMTP != nil {
		if sinks.SMTP.Addr == "" {
			errs = append(errs, errors.New("config: sinks.smtp.addr is required"))
		} else if _, _, err := net.SplitHostPort(sinks.SMTP.Addr); err != nil {
			errs = append(errs, fmt.Errorf("config: sinks.smtp.addr: %w", err))
		}
		if sinks.SMTP.From == "" {
			errs = append(errs, errors.New("config: sinks.smtp.from is required"))
		}
	}
	return errs
}
