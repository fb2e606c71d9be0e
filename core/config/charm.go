// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config

import (
	_ "embed"
	"fmt"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/juju/environschema.v1"
	"gopkg.in/yaml.v2"
)

const (
	ChannelKey        = "channel"
	AddressKey        = "address"
	ScrapePortKey     = "scrape-port"
	LogLevelKey       = "log-level"
	ScrapeIntervalKey = "scrape-interval"
	ScrapeTimeoutKey  = "scrape-timeout"
)

//go:embed config.yaml
var charmConfigYAML []byte

// option is a single entry of the options map in config.yaml.
type option struct {
	Type        string      `yaml:"type"`
	Default     interface{} `yaml:"default"`
	Description string      `yaml:"description"`
}

var optionTypes = map[string]environschema.FieldType{
	"string":  environschema.Tstring,
	"int":     environschema.Tint,
	"boolean": environschema.Tbool,
}

// CharmOptions returns the schema and defaults of the options
// declared in config.yaml.
func CharmOptions() (environschema.Fields, schema.Defaults, error) {
	return parseOptions(charmConfigYAML)
}

func parseOptions(data []byte) (environschema.Fields, schema.Defaults, error) {
	var doc struct {
		Options map[string]option `yaml:"options"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, errors.Annotate(err, "parsing config.yaml")
	}
	fields := make(environschema.Fields, len(doc.Options))
	defaults := make(schema.Defaults)
	for name, opt := range doc.Options {
		fieldType, ok := optionTypes[opt.Type]
		if !ok {
			return nil, nil, errors.NotValidf("option %q type %q", name, opt.Type)
		}
		fields[name] = environschema.Attr{
			Description: opt.Description,
			Type:        fieldType,
		}
		if opt.Default != nil {
			defaults[name] = opt.Default
		}
	}
	return fields, defaults, nil
}

// Desired is the configuration the operator asked for. Optional settings
// are nil when the operator has not supplied them.
type Desired struct {
	Channel        string
	Address        *string
	ScrapePort     *int
	LogLevel       *string
	ScrapeInterval int
	ScrapeTimeout  int
}

// String is used when logging the desired configuration.
func (d Desired) String() string {
	str := func(s *string) string {
		if s == nil {
			return "<unset>"
		}
		return fmt.Sprintf("%q", *s)
	}
	port := "<unset>"
	if d.ScrapePort != nil {
		port = fmt.Sprint(*d.ScrapePort)
	}
	return fmt.Sprintf("channel=%q address=%s scrape-port=%s log-level=%s scrape-interval=%d scrape-timeout=%d",
		d.Channel, str(d.Address), port, str(d.LogLevel), d.ScrapeInterval, d.ScrapeTimeout)
}

// ParseDesired checks attrs against the charm options and returns the
// typed configuration. Unknown keys and values of the wrong type are
// reported as not valid errors; the values themselves are checked by the
// reconciler.
func ParseDesired(attrs map[string]interface{}) (Desired, error) {
	fields, defaults, err := CharmOptions()
	if err != nil {
		return Desired{}, errors.Trace(err)
	}
	cfg, err := NewConfig(attrs, fields, defaults)
	if err != nil {
		return Desired{}, errors.Trace(err)
	}
	a := cfg.Attributes()
	desired := Desired{
		Channel:        a.GetString(ChannelKey, ""),
		ScrapeInterval: a.GetInt(ScrapeIntervalKey, 0),
		ScrapeTimeout:  a.GetInt(ScrapeTimeoutKey, 0),
	}
	if address := a.GetString(AddressKey, ""); address != "" {
		desired.Address = &address
	}
	if _, ok := a[ScrapePortKey]; ok {
		port := a.GetInt(ScrapePortKey, 0)
		desired.ScrapePort = &port
	}
	if level, ok := a[LogLevelKey].(string); ok && level != "" {
		desired.LogLevel = &level
	}
	return desired, nil
}
