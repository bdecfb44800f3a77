package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"keyoverlay/internal/input"
)

var (
	// ErrSchema is returned when a document does not match the config schema.
	ErrSchema = errors.New("config: document does not match schema")
)

// Format identifies a config file encoding.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "YAML"
	case FormatJSON:
		return "JSON"
	default:
		return "TOML"
	}
}

// FormatFromPath picks the format from the file extension. Anything that is
// not YAML or JSON is read as TOML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatTOML
	}
}

// document mirrors the file layout. Pointers distinguish absent fields,
// which fall back to defaults, from explicit zero values.
type document struct {
	General generalSection `toml:"general" json:"general" yaml:"general"`
	Key     []keySection   `toml:"key" json:"key" yaml:"key"`
}

type generalSection struct {
	Height              *float64 `toml:"height" json:"height" yaml:"height"`
	KeySize             *float64 `toml:"keySize" json:"keySize" yaml:"keySize"`
	BarSpeed            *float64 `toml:"barSpeed" json:"barSpeed" yaml:"barSpeed"`
	BackgroundColor     *string  `toml:"backgroundColor" json:"backgroundColor" yaml:"backgroundColor"`
	Margin              *float64 `toml:"margin" json:"margin" yaml:"margin"`
	OutlineThickness    *float64 `toml:"outlineThickness" json:"outlineThickness" yaml:"outlineThickness"`
	Fading              *bool    `toml:"fading" json:"fading" yaml:"fading"`
	Counter             *bool    `toml:"counter" json:"counter" yaml:"counter"`
	FPS                 *int     `toml:"fps" json:"fps" yaml:"fps"`
	TickRate            *int     `toml:"tickRate" json:"tickRate" yaml:"tickRate"`
	PressedAlphaDivisor *float64 `toml:"pressedAlphaDivisor" json:"pressedAlphaDivisor" yaml:"pressedAlphaDivisor"`
	MinBarLength        *float64 `toml:"minBarLength" json:"minBarLength" yaml:"minBarLength"`
	LogLevel            *string  `toml:"logLevel" json:"logLevel" yaml:"logLevel"`
	LogToFile           *bool    `toml:"logToFile" json:"logToFile" yaml:"logToFile"`
}

type keySection struct {
	Name  *string  `toml:"name" json:"name" yaml:"name"`
	Color *string  `toml:"color" json:"color" yaml:"color"`
	Size  *float64 `toml:"size" json:"size" yaml:"size"`
}

// Load reads, validates and resolves the configuration at path.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Parse decodes and validates a document in the given format.
func Parse(data []byte, format Format) (*Config, error) {
	generic, err := decodeGeneric(data, format)
	if err != nil {
		return nil, err
	}

	normalized, err := validateSchema(generic)
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return resolve(&doc)
}

func decodeGeneric(data []byte, format Format) (any, error) {
	switch format {
	case FormatYAML:
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
		return v, nil
	case FormatJSON:
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
		return v, nil
	default:
		v := map[string]any{}
		if err := toml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
		return v, nil
	}
}

// resolve fills defaults and runs semantic validation.
func resolve(doc *document) (*Config, error) {
	cfg := Default()
	g := doc.General
	var errs ValidationErrors

	setFloat(&cfg.Height, g.Height)
	setFloat(&cfg.KeySize, g.KeySize)
	setFloat(&cfg.Margin, g.Margin)
	setFloat(&cfg.OutlineThickness, g.OutlineThickness)
	setFloat(&cfg.PressedAlphaDivisor, g.PressedAlphaDivisor)
	setFloat(&cfg.MinBarLength, g.MinBarLength)

	if g.BarSpeed != nil {
		if *g.BarSpeed > 0 {
			cfg.BarSpeed = float32(*g.BarSpeed)
		} else {
			cfg.Warnings = append(cfg.Warnings,
				fmt.Sprintf("barSpeed must be positive; using default %d", DefaultBarSpeed))
		}
	}
	if g.BackgroundColor != nil {
		c, err := ParseColor(*g.BackgroundColor)
		if err != nil {
			errs = append(errs, ValidationError{Field: "general.backgroundColor", Message: err.Error()})
		} else {
			cfg.Background = c
		}
	}
	if g.Fading != nil {
		cfg.Fading = *g.Fading
	}
	if g.Counter != nil {
		cfg.Counter = *g.Counter
	}
	if g.FPS != nil {
		cfg.FPS = *g.FPS
	}
	if g.TickRate != nil {
		cfg.TickRate = *g.TickRate
	}
	if g.LogLevel != nil {
		cfg.LogLevel = *g.LogLevel
	}
	if g.LogToFile != nil {
		cfg.LogToFile = *g.LogToFile
	}

	if len(doc.Key) > 0 {
		keys, keyErrs, warnings := resolveKeys(doc.Key)
		errs = append(errs, keyErrs...)
		cfg.Warnings = append(cfg.Warnings, warnings...)
		if len(keys) > 0 {
			cfg.Keys = keys
		}
	}

	if err := ValidateConfig(cfg); err != nil {
		var more ValidationErrors
		if errors.As(err, &more) {
			errs = append(errs, more...)
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return cfg, nil
}

func resolveKeys(entries []keySection) ([]KeyConfig, ValidationErrors, []string) {
	var (
		keys     []KeyConfig
		errs     ValidationErrors
		warnings []string
	)
	seen := make(map[string]bool, len(entries))

	for i, entry := range entries {
		field := fmt.Sprintf("key[%d]", i)

		name := ""
		if entry.Name != nil {
			name = strings.TrimSpace(*entry.Name)
		}
		if name == "" {
			errs = append(errs, *RequiredFieldError(field + ".name"))
			continue
		}
		id, err := input.ParseKeyID(name)
		if err != nil {
			errs = append(errs, ValidationError{Field: field + ".name", Message: err.Error()})
			continue
		}

		kc := KeyConfig{Key: id, Name: name, Color: Color{255, 255, 255, 255}, Size: 1}
		if entry.Color != nil {
			c, err := ParseColor(*entry.Color)
			if err != nil {
				errs = append(errs, ValidationError{Field: field + ".color", Message: err.Error()})
				continue
			}
			kc.Color = c
		}
		if entry.Size != nil {
			kc.Size = float32(*entry.Size)
		}

		if seen[string(id)] {
			warnings = append(warnings, fmt.Sprintf("duplicate key %s ignored", id))
			continue
		}
		seen[string(id)] = true
		keys = append(keys, kc)
	}
	return keys, errs, warnings
}

func setFloat(dst *float32, v *float64) {
	if v != nil {
		*dst = float32(*v)
	}
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with KEYOVERLAY_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("KEYOVERLAY_BAR_SPEED"); v != "" {
		speed, err := strconv.ParseFloat(v, 32)
		if err != nil || speed <= 0 {
			c.Warnings = append(c.Warnings,
				fmt.Sprintf("ignoring KEYOVERLAY_BAR_SPEED=%q: must be a positive number", v))
		} else {
			c.BarSpeed = float32(speed)
		}
	}
	if v := os.Getenv("KEYOVERLAY_LOG_LEVEL"); v != "" {
		level := strings.ToLower(v)
		if validLogLevels[level] {
			c.LogLevel = level
		} else {
			c.Warnings = append(c.Warnings,
				fmt.Sprintf("ignoring KEYOVERLAY_LOG_LEVEL=%q: use debug, info, warn, error", v))
		}
	}
}

// EnsureExists loads the config at path, first writing the default
// configuration there if no file exists. The second result reports whether
// the file was created.
func EnsureExists(path string) (*Config, bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	}
	if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("stat config file: %w", err)
	}

	if err := Save(Default(), path); err != nil {
		return nil, false, fmt.Errorf("create default config: %w", err)
	}
	cfg, err := Load(path)
	return cfg, true, err
}

// Save writes cfg to path in the format implied by its extension, creating
// parent directories as needed.
func Save(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	data, err := Encode(cfg, FormatFromPath(path))
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Encode renders cfg as a config document.
func Encode(cfg *Config, format Format) ([]byte, error) {
	doc := toDocument(cfg)

	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode YAML: %w", err)
		}
		return data, nil
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode JSON: %w", err)
		}
		return append(data, '\n'), nil
	default:
		var buf bytes.Buffer
		buf.WriteString("# keyoverlay configuration\n\n")
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, fmt.Errorf("encode TOML: %w", err)
		}
		return buf.Bytes(), nil
	}
}

func toDocument(cfg *Config) document {
	f := func(v float32) *float64 {
		x := float64(v)
		return &x
	}
	s := func(v string) *string { return &v }
	b := func(v bool) *bool { return &v }
	n := func(v int) *int { return &v }

	doc := document{
		General: generalSection{
			Height:              f(cfg.Height),
			KeySize:             f(cfg.KeySize),
			BarSpeed:            f(cfg.BarSpeed),
			BackgroundColor:     s(cfg.Background.String()),
			Margin:              f(cfg.Margin),
			OutlineThickness:    f(cfg.OutlineThickness),
			Fading:              b(cfg.Fading),
			Counter:             b(cfg.Counter),
			FPS:                 n(cfg.FPS),
			TickRate:            n(cfg.TickRate),
			PressedAlphaDivisor: f(cfg.PressedAlphaDivisor),
			MinBarLength:        f(cfg.MinBarLength),
			LogLevel:            s(cfg.LogLevel),
			LogToFile:           b(cfg.LogToFile),
		},
	}
	for _, k := range cfg.Keys {
		doc.Key = append(doc.Key, keySection{
			Name:  s(k.Name),
			Color: s(k.Color.String()),
			Size:  f(k.Size),
		})
	}
	return doc
}
