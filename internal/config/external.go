package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// ExternalConfig describes the read-only connection to the legacy master
// data database.  An empty DSN leaves the gateway unconfigured; its routes
// then answer 503.
type ExternalConfig struct {
	Driver         string        `env:"EXTERNAL_DB_DRIVER,default=sqlserver"`
	DSN            string        `env:"EXTERNAL_DB_DSN"`
	CommandTimeout time.Duration `env:"EXTERNAL_DB_COMMAND_TIMEOUT,default=30s"`
	ExcludeDeleted bool          `env:"EXTERNAL_DB_EXCLUDE_DELETED,default=true"`
	MappingFile    string        `env:"EXTERNAL_DB_MAPPING_FILE"`
	MaxOpenConns   int           `env:"EXTERNAL_DB_MAX_OPEN_CONNS,default=10"`

	Mapping Mapping
}

// Entity names used as keys of the mapping file.
const (
	EntityCompany         = "company"
	EntityCustomer        = "customer"
	EntityCustomerContact = "customer_contact"
	EntityStaff           = "staff"
	EntityEstimate        = "estimate"
	EntityOrder           = "order"
	EntityOrderDetail     = "order_detail"
)

// TableMapping names the physical table of one entity and overrides
// individual physical column names.  Logical columns without an override
// map to their upper-cased name.
type TableMapping struct {
	Table   string            `yaml:"table"`
	Columns map[string]string `yaml:"columns"`
}

// Column returns the physical column for a logical name.
func (t TableMapping) Column(logical string) string {
	if c, ok := t.Columns[logical]; ok && c != "" {
		return c
	}
	return strings.ToUpper(logical)
}

// Mapping is the full entity -> table mapping.
type Mapping map[string]TableMapping

// DefaultMapping matches the legacy schema names.
func DefaultMapping() Mapping {
	return Mapping{
		EntityCompany:         {Table: "MST_COMPANY"},
		EntityCustomer:        {Table: "MST_CUSTOMER"},
		EntityCustomerContact: {Table: "MST_CUSTOMER_CONTACT"},
		EntityStaff:           {Table: "MST_STAFF"},
		EntityEstimate:        {Table: "DAT_ESTIMATE"},
		EntityOrder:           {Table: "DAT_ORDER"},
		EntityOrderDetail:     {Table: "DAT_ORDER_DETAIL"},
	}
}

// Table returns the mapping of one entity, falling back to the default.
func (m Mapping) Table(entity string) TableMapping {
	if t, ok := m[entity]; ok {
		return t
	}
	return DefaultMapping()[entity]
}

// ParseMapping overlays YAML overrides on the defaults.  Unknown entity
// keys are rejected so that a typo does not silently fall back.
func ParseMapping(data []byte) (Mapping, error) {
	var overrides map[string]TableMapping
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	m := DefaultMapping()
	for entity, o := range overrides {
		base, ok := m[entity]
		if !ok {
			return nil, fmt.Errorf("parse mapping: unknown entity %q", entity)
		}
		if o.Table != "" {
			base.Table = o.Table
		}
		if len(o.Columns) > 0 {
			base.Columns = make(map[string]string, len(o.Columns))
			for k, v := range o.Columns {
				base.Columns[strings.ToLower(k)] = v
			}
		}
		m[entity] = base
	}
	return m, nil
}

// LoadExternalConfig decodes EXTERNAL_DB_* variables and, when a mapping
// file is named, applies its overrides.
func LoadExternalConfig() (ExternalConfig, error) {
	var cfg ExternalConfig
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("external db config: %w", err)
	}
	cfg.Mapping = DefaultMapping()
	if cfg.MappingFile == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(cfg.MappingFile)
	if err != nil {
		return cfg, fmt.Errorf("external db config: %w", err)
	}
	m, err := ParseMapping(data)
	if err != nil {
		return cfg, err
	}
	cfg.Mapping = m
	return cfg, nil
}
