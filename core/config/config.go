// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/juju/environschema.v1"
)

// ConfigAttributes is the coerced form of a set of configuration values.
type ConfigAttributes map[string]interface{}

// GetString gets the specified string attribute.
func (c ConfigAttributes) GetString(attrName string, defaultValue string) string {
	if val, ok := c[attrName].(string); ok {
		return val
	}
	return defaultValue
}

// GetInt gets the specified int attribute.
func (c ConfigAttributes) GetInt(attrName string, defaultValue int) int {
	switch val := c[attrName].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	}
	return defaultValue
}

// Config holds configuration values that have been checked against a
// schema, with defaults applied.
type Config struct {
	attributes ConfigAttributes
}

// NewConfig returns a new config instance with the given attributes and
// allowing for the extra provider attributes.
func NewConfig(attrs map[string]interface{}, fields environschema.Fields, defaults schema.Defaults) (*Config, error) {
	for k, v := range attrs {
		if _, ok := fields[k]; !ok {
			return nil, errors.NewNotValid(nil, fmt.Sprintf("unknown key %q (value %#v)", k, v))
		}
	}
	checkers, _, err := fields.ValidationSchema()
	if err != nil {
		return nil, errors.Trace(err)
	}
	allDefaults := make(schema.Defaults, len(checkers))
	for name := range checkers {
		allDefaults[name] = schema.Omit
	}
	for name, value := range defaults {
		allDefaults[name] = value
	}
	coerced, err := schema.FieldMap(checkers, allDefaults).Coerce(attrs, nil)
	if err != nil {
		return nil, errors.NewNotValid(err, "invalid config")
	}
	return &Config{attributes: coerced.(map[string]interface{})}, nil
}

// Attributes returns the configuration attributes.
func (c *Config) Attributes() ConfigAttributes {
	if c == nil {
		return nil
	}
	attrs := make(ConfigAttributes, len(c.attributes))
	for k, v := range c.attributes {
		attrs[k] = v
	}
	return attrs
}
