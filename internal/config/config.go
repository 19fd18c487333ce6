// Package config loads the YAML configuration that declares databases,
// scripts, agents, queues, alerts and api calls.
//
// A document is checked twice: structurally against an embedded CUE schema
// and then field by field while decoding with unknown fields rejected.
// Build compiles every script so malformed placeholders and empty scripts
// are reported before anything runs.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sqlscript/internal/script"
	"github.com/roach88/sqlscript/internal/sqlerr"
)

// Defaults applied when the document leaves a field out.
const (
	DefaultEngine        = "embedded"
	DefaultValueFrom     = "value"
	DefaultAgentInterval = time.Minute
	DefaultSendInterval  = 60 * time.Second
	DefaultSendDelay     = 2 * time.Second
	DefaultListen        = ":8080"
)

// Lines is a script body: one string or a list of strings.
type Lines []string

// UnmarshalYAML accepts a scalar or a sequence.
func (l *Lines) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = Lines{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*l = list
	return nil
}

// Config is the whole document.
type Config struct {
	Database   Database `yaml:"database"`
	AllowEmpty bool     `yaml:"allow_empty"`
	Init       []Script `yaml:"init"`
	Agents     []Agent  `yaml:"agents"`
	Queues     []Queue  `yaml:"queues"`
	Alerts     []Script `yaml:"alerts"`
	API        API      `yaml:"api"`
}

// Database holds the defaults every script falls back to.
type Database struct {
	Connection string `yaml:"connection"`
	Engine     string `yaml:"engine"`
	Strict     bool   `yaml:"strict"`
}

// Script is a named script body.
type Script struct {
	Name       string `yaml:"name"`
	Connection string `yaml:"connection"`
	Script     Lines  `yaml:"script"`
	AllowEmpty *bool  `yaml:"allow_empty"`
}

// Agent refreshes a value from the database on an interval.
type Agent struct {
	Name       string `yaml:"name"`
	Connection string `yaml:"connection"`
	Interval   string `yaml:"interval"`
	Schedule   string `yaml:"schedule"` // cron expression, replaces Interval
	ValueFrom  string `yaml:"value_from"`
	Refresh    Lines  `yaml:"refresh"`
	Properties Lines  `yaml:"properties"`

	// Alerts names the alerts fired, with the agent as a parameter
	// source, whenever a refresh changes the value.
	Alerts []string `yaml:"alerts"`
}

// Queue is a database backed retry queue of HTTP requests.
type Queue struct {
	Name         string `yaml:"name"`
	Connection   string `yaml:"connection"`
	SendInterval string `yaml:"send_interval"`
	SendDelay    string `yaml:"send_delay"`
	Count        Lines  `yaml:"count"`
	Insert       Lines  `yaml:"insert"`
	Get          Lines  `yaml:"get"`
	AfterSend    Lines  `yaml:"after_send"`
}

// API is the HTTP surface.
type API struct {
	Listen string `yaml:"listen"`
	Calls  []Call `yaml:"calls"`
}

// Call maps an HTTP path to a script.
type Call struct {
	Path         string `yaml:"path"`
	Method       string `yaml:"method"`
	ResponseType string `yaml:"response_type"`
	ChildName    string `yaml:"child_name"`
	Connection   string `yaml:"connection"`
	Script       Lines  `yaml:"script"`
	AllowEmpty   *bool  `yaml:"allow_empty"`
}

// Load reads, validates and decodes the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates data against the schema and decodes it.
func Parse(data []byte) (*Config, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&cfg); err != nil {
		return nil, sqlerr.Wrap(sqlerr.KindConfig, err, "decode configuration")
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Engine == "" {
		c.Database.Engine = DefaultEngine
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultListen
	}
	for i := range c.Agents {
		if c.Agents[i].ValueFrom == "" {
			c.Agents[i].ValueFrom = DefaultValueFrom
		}
	}
	for i := range c.API.Calls {
		call := &c.API.Calls[i]
		if call.Method == "" {
			call.Method = "GET"
		}
		if call.ResponseType == "" {
			call.ResponseType = "value"
		}
	}
}

// Connection returns connection, or the database default when empty.
func (c *Config) Connection(connection string) string {
	if strings.TrimSpace(connection) != "" {
		return connection
	}
	return c.Database.Connection
}

// NewScript compiles lines with the document's fallbacks applied.
func (c *Config) NewScript(connection string, lines Lines, allowEmpty *bool, opts ...script.Option) (*script.Script, error) {
	allow := c.AllowEmpty
	if allowEmpty != nil {
		allow = *allowEmpty
	}
	opts = append([]script.Option{script.WithAllowEmpty(allow)}, opts...)
	return script.New(c.Connection(connection), lines, opts...)
}

// Duration parses s, returning fallback for an empty string.
func Duration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, sqlerr.Wrap(sqlerr.KindConfig, err, "invalid duration %q", s)
	}
	if d < 0 {
		return 0, sqlerr.New(sqlerr.KindConfig, "negative duration %q", s)
	}
	return d, nil
}

// Check compiles every script and parses every duration, returning all
// problems joined.
func (c *Config) Check() error {
	var errs []error
	add := func(where string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		}
	}

	for i, s := range c.Init {
		_, err := c.NewScript(s.Connection, s.Script, s.AllowEmpty)
		add(fmt.Sprintf("init[%d]", i), err)
	}
	alerts := make(map[string]bool, len(c.Alerts))
	for _, a := range c.Alerts {
		alerts[a.Name] = true
	}

	for _, a := range c.Agents {
		where := "agent " + a.Name
		for _, name := range a.Alerts {
			if !alerts[name] {
				add(where, sqlerr.New(sqlerr.KindConfig, "unknown alert %q", name))
			}
		}
		_, err := c.NewScript(a.Connection, a.Refresh, nil)
		add(where+" refresh", err)
		if len(a.Properties) > 0 {
			_, err = c.NewScript(a.Connection, a.Properties, nil)
			add(where+" properties", err)
		}
		_, err = Duration(a.Interval, DefaultAgentInterval)
		add(where+" interval", err)
		if a.Schedule != "" {
			_, err = cron.ParseStandard(a.Schedule)
			if err != nil {
				err = sqlerr.Wrap(sqlerr.KindConfig, err, "invalid schedule %q", a.Schedule)
			}
			add(where+" schedule", err)
		}
	}
	for _, q := range c.Queues {
		where := "queue " + q.Name
		for _, part := range []struct {
			name  string
			lines Lines
		}{{"insert", q.Insert}, {"get", q.Get}, {"after_send", q.AfterSend}} {
			_, err := c.NewScript(q.Connection, part.lines, nil)
			add(where+" "+part.name, err)
		}
		if len(q.Count) > 0 {
			_, err := c.NewScript(q.Connection, q.Count, nil)
			add(where+" count", err)
		}
		_, err := Duration(q.SendInterval, DefaultSendInterval)
		add(where+" send_interval", err)
		_, err = Duration(q.SendDelay, DefaultSendDelay)
		add(where+" send_delay", err)
	}
	for _, a := range c.Alerts {
		_, err := c.NewScript(a.Connection, a.Script, a.AllowEmpty)
		add("alert "+a.Name, err)
	}
	for _, call := range c.API.Calls {
		_, err := c.NewScript(call.Connection, call.Script, call.AllowEmpty)
		add("call "+call.Method+" "+call.Path, err)
	}

	return errors.Join(errs...)
}
