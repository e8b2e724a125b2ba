package logging

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	SinkConsole = "console"
	SinkJSON    = "json"
)

type Config struct {
	EnabledSinks     []string
	BufferSize       int
	MinimumSeverity  Severity
	Fields           map[string]any
	JSON             JSONConfig
	DropWarnInterval time.Duration
}

type JSONConfig struct {
	FilePath      string
	FlushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{SinkConsole},
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			FlushInterval: 2 * time.Second,
		},
	}
}

func (c Config) HasSink(name string) bool {
	return slices.Contains(c.EnabledSinks, name)
}

// EnableSink adds name to the enabled sinks once.
func (c *Config) EnableSink(name string) {
	if !c.HasSink(name) {
		c.EnabledSinks = append(c.EnabledSinks, name)
	}
}

// Validate reports unknown sinks and a JSON sink without a file.
func (c Config) Validate() error {
	var errs []error
	for _, name := range c.EnabledSinks {
		if name != SinkConsole && name != SinkJSON {
			errs = append(errs, fmt.Errorf("unknown sink %q", name))
		}
	}
	if c.HasSink(SinkJSON) && c.JSON.FilePath == "" {
		errs = append(errs, errors.New("json sink needs a file path"))
	}
	if c.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("buffer size %d is negative", c.BufferSize))
	}
	return errors.Join(errs...)
}

func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		cloned[k] = v
	}
	return cloned
}
