package configstore

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/docextract/internal/core/domain"
	"github.com/kirillkom/docextract/internal/core/extraction"
	"github.com/kirillkom/docextract/internal/core/rules"
)

//go:embed configs/*.yaml
var embedded embed.FS

// Store holds every document-type config, loaded and validated once at startup.
type Store struct {
	configs map[string]domain.DocumentConfig
}

// New loads the embedded configs and then every *.yaml in dir, which may add types or
// replace embedded ones. An empty dir means embedded configs only.
func New(dir string) (*Store, error) {
	s := &Store{configs: make(map[string]domain.DocumentConfig)}

	sub, err := fs.Sub(embedded, "configs")
	if err != nil {
		return nil, fmt.Errorf("open embedded configs: %w", err)
	}
	if err := s.loadFS(sub, "embedded"); err != nil {
		return nil, err
	}

	if strings.TrimSpace(dir) != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("config dir %s: %w", dir, err)
		}
		if err := s.loadFS(os.DirFS(dir), dir); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) loadFS(fsys fs.FS, origin string) error {
	paths, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return fmt.Errorf("list configs in %s: %w", origin, err)
	}
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		cfg, err := Parse(data, strings.TrimSuffix(filepath.Base(path), ".yaml"))
		if err != nil {
			return fmt.Errorf("load config %s from %s: %w", path, origin, err)
		}
		if _, exists := s.configs[cfg.DocumentType]; exists {
			slog.Info("document_config_overridden", "document_type", cfg.DocumentType, "origin", origin)
		}
		s.configs[cfg.DocumentType] = cfg
	}
	return nil
}

func (s *Store) Get(documentType string) (domain.DocumentConfig, error) {
	cfg, ok := s.configs[documentType]
	if !ok {
		return domain.DocumentConfig{}, domain.WrapError(domain.ErrConfigNotFound, "get config",
			fmt.Errorf("no config for document_type=%s", documentType))
	}
	return cfg, nil
}

func (s *Store) List() []string {
	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type fileConfig struct {
	DocumentType          string       `yaml:"document_type"`
	Fields                yaml.Node    `yaml:"fields"`
	CrossFieldValidations []ruleConfig `yaml:"cross_field_validations"`
}

type fieldConfig struct {
	Type            string   `yaml:"type"`
	Required        bool     `yaml:"required"`
	Anchors         []string `yaml:"anchors"`
	Patterns        []string `yaml:"patterns"`
	SearchWindow    string   `yaml:"search_window"`
	Normalizers     []string `yaml:"normalizers"`
	Validators      []any    `yaml:"validators"`
	FallbackAllowed *bool    `yaml:"fallback_allowed"`
}

type ruleConfig struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Fields      []string `yaml:"fields"`
	Rule        string   `yaml:"rule"`
}

var structValidator = validator.New()

// Parse decodes one YAML config, keeping fields in declaration order. defaultType names the
// document type when the file does not.
func Parse(data []byte, defaultType string) (domain.DocumentConfig, error) {
	var file fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return domain.DocumentConfig{}, domain.WrapError(domain.ErrInvalidInput, "parse config", err)
	}

	cfg := domain.DocumentConfig{DocumentType: file.DocumentType}
	if cfg.DocumentType == "" {
		cfg.DocumentType = defaultType
	}

	fields, err := decodeFields(&file.Fields)
	if err != nil {
		return domain.DocumentConfig{}, domain.WrapError(domain.ErrInvalidInput, "parse config", err)
	}
	cfg.Fields = fields

	for _, rc := range file.CrossFieldValidations {
		cfg.CrossFieldValidations = append(cfg.CrossFieldValidations, domain.CrossFieldRule{
			Name:        rc.Name,
			Description: rc.Description,
			Fields:      rc.Fields,
			Rule:        rc.Rule,
		})
	}

	if err := check(cfg); err != nil {
		return domain.DocumentConfig{}, domain.WrapError(domain.ErrInvalidInput, "validate config "+cfg.DocumentType, err)
	}
	return cfg, nil
}

func decodeFields(node *yaml.Node) ([]domain.FieldConfig, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("fields must be a mapping of field name to settings (line %d)", node.Line)
	}

	fields := make([]domain.FieldConfig, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value

		var fc fieldConfig
		if err := node.Content[i+1].Decode(&fc); err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		validators, err := validatorSpecs(fc.Validators)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}

		field := domain.FieldConfig{
			Name:            name,
			Type:            fc.Type,
			Required:        fc.Required,
			Anchors:         fc.Anchors,
			Patterns:        fc.Patterns,
			SearchWindow:    domain.SearchWindow(fc.SearchWindow),
			Normalizers:     fc.Normalizers,
			Validators:      validators,
			FallbackAllowed: true,
		}
		if field.Type == "" {
			field.Type = "string"
		}
		if field.SearchWindow == "" {
			field.SearchWindow = domain.WindowSameLineOrNext
		}
		if fc.FallbackAllowed != nil {
			field.FallbackAllowed = *fc.FallbackAllowed
		}
		fields = append(fields, field)
	}
	return fields, nil
}

// validatorSpecs accepts "name", "name:arg" and single-key {name: arg} entries.
func validatorSpecs(raw []any) ([]domain.ValidatorSpec, error) {
	specs := make([]domain.ValidatorSpec, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			name, arg, _ := strings.Cut(v, ":")
			specs = append(specs, domain.ValidatorSpec{Name: strings.TrimSpace(name), Arg: strings.TrimSpace(arg)})
		case map[string]any:
			if len(v) != 1 {
				return nil, fmt.Errorf("validator mapping must have exactly one key, got %d", len(v))
			}
			for name, arg := range v {
				spec := domain.ValidatorSpec{Name: name}
				if arg != nil {
					spec.Arg = fmt.Sprint(arg)
				}
				specs = append(specs, spec)
			}
		default:
			return nil, fmt.Errorf("unsupported validator entry %v", item)
		}
	}
	return specs, nil
}

func check(cfg domain.DocumentConfig) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}

	var errs []error
	seen := make(map[string]struct{}, len(cfg.Fields))
	for _, field := range cfg.Fields {
		if _, dup := seen[field.Name]; dup {
			errs = append(errs, fmt.Errorf("field %s declared twice", field.Name))
		}
		seen[field.Name] = struct{}{}

		for _, pattern := range field.Patterns {
			if _, err := extraction.CompilePattern(pattern); err != nil {
				errs = append(errs, fmt.Errorf("field %s: pattern %q: %w", field.Name, pattern, err))
			}
		}
		for _, name := range field.Normalizers {
			if !rules.KnownNormalizer(name) {
				slog.Warn("unknown_normalizer", "document_type", cfg.DocumentType, "field", field.Name, "normalizer", name)
			}
		}
		for _, spec := range field.Validators {
			if !rules.KnownValidator(spec.Name) {
				slog.Warn("unknown_validator", "document_type", cfg.DocumentType, "field", field.Name, "validator", spec.Name)
				continue
			}
			if err := rules.CheckValidatorArg(spec); err != nil {
				errs = append(errs, fmt.Errorf("field %s: validator %s: %w", field.Name, spec, err))
			}
		}
	}
	for _, rule := range cfg.CrossFieldValidations {
		if err := rules.CheckRuleSyntax(rule.Rule); err != nil {
			errs = append(errs, fmt.Errorf("cross-field rule %s: %w", rule.Name, err))
		}
	}
	return errors.Join(errs...)
}
