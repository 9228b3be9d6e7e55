package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"mediastore/internal/config"
)

const (
	logLevelEnvKey = "MEDIASTORE_LOG_LEVEL"
	componentKey   = "component"
)

// logComponents are the values packages attach under the "component" key.
var logComponents = map[string]struct{}{
	"dirtree":   {},
	"blobstore": {},
	"media":     {},
}

// logSpec is a parsed level setting such as "info" or
// "warn,dirtree=debug,media=info". Bare entries set the base level.
type logSpec struct {
	level      slog.Level
	components map[string]slog.Level
}

func (s logSpec) threshold(component string) slog.Level {
	if level, ok := s.components[component]; ok {
		return level
	}
	return s.level
}

// lowest is the most verbose level any component asks for.
func (s logSpec) lowest() slog.Level {
	low := s.level
	for _, level := range s.components {
		low = min(low, level)
	}
	return low
}

func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	envLevel := os.Getenv(logLevelEnvKey)
	rawLevel, source := selectedLogLevel(flagLevel, envLevel, configLevel)
	spec, err := parseLogSpec(rawLevel)
	if err != nil {
		if source == "flag" {
			return "", fmt.Errorf("invalid --log-level %q: %w", flagLevel, err)
		}
		slog.SetDefault(newLogger(os.Stderr, logSpec{level: slog.LevelInfo}))
		switch source {
		case "env":
			return fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel), nil
		case "config":
			return fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", configLevel, config.DefaultLogLevel), nil
		default:
			return "", nil
		}
	}
	slog.SetDefault(newLogger(os.Stderr, spec))
	return "", nil
}

func selectedLogLevel(flagLevel, envLevel, configLevel string) (string, string) {
	if strings.TrimSpace(flagLevel) != "" {
		return flagLevel, "flag"
	}
	if strings.TrimSpace(envLevel) != "" {
		return envLevel, "env"
	}
	if strings.TrimSpace(configLevel) != "" {
		return configLevel, "config"
	}
	return "", "default"
}

func parseLogSpec(raw string) (logSpec, error) {
	spec := logSpec{level: slog.LevelInfo}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, scoped := strings.Cut(part, "=")
		if !scoped {
			level, err := parseLogLevel(part)
			if err != nil {
				return logSpec{}, err
			}
			spec.level = level
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := logComponents[name]; !ok {
			return logSpec{}, fmt.Errorf("unknown log component %q", name)
		}
		level, err := parseLogLevel(value)
		if err != nil {
			return logSpec{}, err
		}
		if spec.components == nil {
			spec.components = map[string]slog.Level{}
		}
		spec.components[name] = level
	}
	return spec, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return slog.LevelInfo, nil
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}

	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func newLogger(w io.Writer, spec logSpec) *slog.Logger {
	text := slog.NewTextHandler(w, &slog.HandlerOptions{Level: spec.lowest()})
	return slog.New(&componentHandler{next: text, spec: spec})
}

// componentHandler filters records by the level of the component named in
// the logger's attributes.
type componentHandler struct {
	next      slog.Handler
	spec      logSpec
	component string
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.spec.threshold(h.component) && h.next.Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	component := h.component
	for _, a := range attrs {
		if a.Key == componentKey {
			component = a.Value.String()
		}
	}
	return &componentHandler{next: h.next.WithAttrs(attrs), spec: h.spec, component: component}
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{next: h.next.WithGroup(name), spec: h.spec, component: h.component}
}
