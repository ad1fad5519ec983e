package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

// Section and option names with fixed meaning in every configuration file.
const (
	GlobalSection  = "global"
	DatabaseOption = "database"
)

// Supported storage backend kinds. The value of the global database option
// must be one of these; each kind has a matching section and field table.
const (
	BackendInfluxDB = "influxdb"
	BackendMQTT     = "mqtt"
	BackendSQLite   = "sqlite"
)

// fieldSpec declares one typed field in a backend or entry field table.
type fieldSpec struct {
	name     string
	hint     Kind
	required bool
}

// backendFields maps each supported backend kind to its typed field table.
// Built once at process start, read-only thereafter. Fields absent from the
// file are omitted, not defaulted; presence of required connection values is
// enforced by the backend itself.
var backendFields = map[string][]fieldSpec{
	BackendInfluxDB: {
		{name: "database", hint: KindString},
		{name: "port", hint: KindInt},
		{name: "protocol", hint: KindString},
		{name: "server", hint: KindString},
		{name: "ssl", hint: KindBool},
		{name: "verify", hint: KindBool},
		{name: "org", hint: KindString},
		{name: "token", hint: KindString},
		{name: "bucket", hint: KindString},
	},
	BackendMQTT: {
		{name: "server", hint: KindString},
		{name: "port", hint: KindInt},
		{name: "topic", hint: KindString},
		{name: "client_id", hint: KindString},
		{name: "username", hint: KindString},
		{name: "password", hint: KindString},
		{name: "qos", hint: KindInt},
		{name: "ssl", hint: KindBool},
	},
	BackendSQLite: {
		{name: "path", hint: KindString},
		{name: "table", hint: KindString},
		{name: "busy_timeout", hint: KindInt},
	},
}

// entryFields is the typed field table applied to every entry section.
var entryFields = []fieldSpec{
	{name: "measurements", hint: KindArray, required: true},
	{name: "tags", hint: KindHash, required: false},
}

// FieldTable maps measurement field names to their declared type hints.
type FieldTable map[string]Kind

// Entry is one named record from the root entry list, with its resolved
// measurements, tags, and free-form typed options.
type Entry struct {
	// Device is the entry's own section name, carried as its identifier.
	Device string

	// Measurements maps each measurement referenced by this entry to that
	// measurement's field-hint table.
	Measurements map[string]FieldTable

	// Tags holds the entry's static tag pairs; empty when none are declared.
	Tags map[string]string

	// Options holds the remaining section options, coerced without a hint.
	Options map[string]any
}

// Schema is the validated, typed view of a configuration file.
//
// A Schema has exactly two states, unloaded and loaded. It is constructed
// unloaded and loads lazily on the first accessor call; Reload forces a full
// reset and re-parse. A failed Load leaves the schema unloaded.
type Schema struct {
	path string
	root string

	loaded       bool
	backendKind  string
	backendCfg   map[string]any
	entries      map[string]*Entry
	measurements map[string]FieldTable
}

// NewSchema creates an unloaded schema for the configuration file at path.
// root names the global option holding the whitespace-separated entry list.
func NewSchema(path, root string) *Schema {
	return &Schema{path: path, root: root}
}

// IsLoaded reports whether the schema has been loaded.
func (s *Schema) IsLoaded() bool {
	return s.loaded
}

// Load parses and validates the configuration file. Load is idempotent once
// it has succeeded. On any failure the schema stays unloaded and no partial
// state is retained.
func (s *Schema) Load() error {
	if s.loaded {
		return nil
	}

	f, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, s.path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, s.path, err)
	}

	global, err := f.GetSection(GlobalSection)
	if err != nil {
		return fmt.Errorf("%w: no %s section", ErrInvalidConfig, GlobalSection)
	}
	if err := requireOptions(global, DatabaseOption, s.root); err != nil {
		return err
	}

	kind := global.Key(DatabaseOption).String()
	fields, supported := backendFields[kind]
	if !supported {
		return fmt.Errorf("%w: invalid or unsupported database value %q",
			ErrInvalidConfig, kind)
	}

	backendCfg, err := parseBackendConfig(f.Section(kind), fields)
	if err != nil {
		return err
	}

	names := strings.Fields(global.Key(s.root).String())
	if len(names) == 0 {
		return fmt.Errorf("%w: root element %q has no entries", ErrInvalidConfig, s.root)
	}

	entries := make(map[string]*Entry, len(names))
	referenced := make(map[string]struct{})
	for _, name := range names {
		section, err := f.GetSection(name)
		if err != nil {
			return fmt.Errorf("%w: missing device configuration %q",
				ErrInvalidConfig, name)
		}
		entry, err := parseEntry(section)
		if err != nil {
			return err
		}
		entries[name] = entry
		for m := range entry.Measurements {
			referenced[m] = struct{}{}
		}
	}

	measurements := make(map[string]FieldTable, len(referenced))
	for name := range referenced {
		section, err := f.GetSection(name)
		if err != nil {
			return fmt.Errorf("%w: unknown measurement %q in config",
				ErrInvalidConfig, name)
		}
		table, err := parseMeasurement(section)
		if err != nil {
			return err
		}
		measurements[name] = table
	}

	// Resolve each entry's flat measurement list into the hint tables
	// collected above.
	for name, entry := range entries {
		for m := range entry.Measurements {
			table, ok := measurements[m]
			if !ok {
				return fmt.Errorf("%w: unknown measurement %q in entry %q",
					ErrInvalidConfig, m, name)
			}
			entry.Measurements[m] = table
		}
	}

	s.backendKind = kind
	s.backendCfg = backendCfg
	s.entries = entries
	s.measurements = measurements
	s.loaded = true
	return nil
}

// Reload clears all loaded state and re-parses the configuration from disk.
func (s *Schema) Reload() error {
	s.loaded = false
	s.backendKind = ""
	s.backendCfg = nil
	s.entries = nil
	s.measurements = nil
	return s.Load()
}

// GetDatabase returns the selected backend kind and its typed configuration,
// loading the schema first if needed.
func (s *Schema) GetDatabase() (string, map[string]any, error) {
	if err := s.Load(); err != nil {
		return "", nil, err
	}
	return s.backendKind, s.backendCfg, nil
}

// GetField returns the declared type hint for a field on a measurement.
func (s *Schema) GetField(measurement, field string) (Kind, error) {
	if measurement == "" || field == "" {
		return 0, fmt.Errorf("%w: empty measurement or field name", ErrUnknownMeasurement)
	}
	if err := s.Load(); err != nil {
		return 0, err
	}
	table, ok := s.measurements[measurement]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMeasurement, measurement)
	}
	hint, ok := table[field]
	if !ok {
		return 0, fmt.Errorf("%w: %q on measurement %q", ErrUnknownField, field, measurement)
	}
	return hint, nil
}

// GetRoot returns the full entry map parsed from the root entry list.
func (s *Schema) GetRoot() (map[string]*Entry, error) {
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s.entries, nil
}

// GetTags returns the tags for a known entity. An entity without declared
// tags yields an empty map; an unknown entity is an error.
func (s *Schema) GetTags(entity string) (map[string]string, error) {
	if entity == "" {
		return nil, fmt.Errorf("%w: empty entity name", ErrUnknownEntity)
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	entry, ok := s.entries[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	return entry.Tags, nil
}

// requireOptions checks that a section declares every named option.
func requireOptions(section *ini.Section, options ...string) error {
	for _, option := range options {
		if !section.HasKey(option) {
			return fmt.Errorf("%w: section %q missing required field %q",
				ErrInvalidConfig, section.Name(), option)
		}
	}
	return nil
}

// parseBackendConfig coerces the backend section's declared fields. Fields
// absent from the file are omitted from the result.
func parseBackendConfig(section *ini.Section, fields []fieldSpec) (map[string]any, error) {
	cfg := make(map[string]any)
	for _, spec := range fields {
		if !section.HasKey(spec.name) {
			continue
		}
		value, err := CoerceHinted(section.Key(spec.name).String(), spec.hint)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid field %q expected type %q",
				ErrInvalidConfig, spec.name, spec.hint)
		}
		cfg[spec.name] = value
	}
	return cfg, nil
}

// parseEntry builds an Entry from its section: required and optional declared
// fields first, then every remaining option coerced without a hint. An extra
// option that collides with a declared field name is skipped, not overwritten.
func parseEntry(section *ini.Section) (*Entry, error) {
	name := section.Name()
	entry := &Entry{
		Device:       name,
		Measurements: make(map[string]FieldTable),
		Options:      make(map[string]any),
	}

	declared := map[string]struct{}{"device": {}}
	for _, spec := range entryFields {
		declared[spec.name] = struct{}{}
		if !section.HasKey(spec.name) {
			if spec.required {
				return nil, fmt.Errorf("%w: section %q missing required field %q",
					ErrInvalidConfig, name, spec.name)
			}
			value, err := DefaultValue(spec.hint)
			if err != nil {
				return nil, err
			}
			if err := entry.setDeclared(spec.name, value); err != nil {
				return nil, err
			}
			continue
		}
		value, err := CoerceHinted(section.Key(spec.name).String(), spec.hint)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid field %q expected type %q",
				ErrInvalidConfig, spec.name, spec.hint)
		}
		if err := entry.setDeclared(spec.name, value); err != nil {
			return nil, err
		}
	}

	for _, option := range section.KeyStrings() {
		if _, ok := declared[option]; ok {
			continue
		}
		entry.Options[option] = CoerceInferred(section.Key(option).String())
	}
	return entry, nil
}

// setDeclared stores a coerced declared-field value on the entry.
func (e *Entry) setDeclared(field string, value any) error {
	switch field {
	case "measurements":
		names, ok := value.([]string)
		if !ok {
			return fmt.Errorf("%w: field %q on %q", ErrConversion, field, e.Device)
		}
		for _, m := range names {
			e.Measurements[m] = nil
		}
	case "tags":
		tags, ok := value.(map[string]string)
		if !ok {
			return fmt.Errorf("%w: field %q on %q", ErrConversion, field, e.Device)
		}
		e.Tags = tags
	default:
		e.Options[field] = value
	}
	return nil
}

// parseMeasurement reads a measurement section, where each option's value is
// itself a primitive type-hint string naming that field's type. A field name
// repeated within one section is a hard error.
func parseMeasurement(section *ini.Section) (FieldTable, error) {
	table := make(FieldTable)
	for _, option := range section.KeyStrings() {
		key := section.Key(option)
		if len(key.ValueWithShadows()) > 1 {
			return nil, fmt.Errorf("%w: duplicate measurement definition for %q in section %q",
				ErrInvalidConfig, option, section.Name())
		}
		hint, err := ParsePrimitiveKind(key.String())
		if err != nil {
			return nil, fmt.Errorf("%w: invalid type %q for option %q in section %q",
				ErrInvalidConfig, key.String(), option, section.Name())
		}
		table[option] = hint
	}
	return table, nil
}
