package domain

// SearchWindow selects where value tokens are collected relative to a matched anchor.
type SearchWindow string

const (
	WindowSameLineOrNext SearchWindow = "same_line_or_next"
	WindowSameLineRight  SearchWindow = "same_line_right"
	WindowNext3Lines     SearchWindow = "next_3_lines"
)

// ValidatorSpec is the canonical form of a configured validator, e.g. {Name: "min_length", Arg: "3"}.
type ValidatorSpec struct {
	Name string `json:"name"`
	Arg  string `json:"arg,omitempty"`
}

func (v ValidatorSpec) String() string {
	if v.Arg == "" {
		return v.Name
	}
	return v.Name + ":" + v.Arg
}

type FieldConfig struct {
	Name            string          `json:"name" validate:"required"`
	Type            string          `json:"type" validate:"oneof=string date money number"`
	Required        bool            `json:"required"`
	Anchors         []string        `json:"anchors"`
	Patterns        []string        `json:"patterns"`
	SearchWindow    SearchWindow    `json:"search_window" validate:"oneof=same_line_or_next same_line_right next_3_lines"`
	Normalizers     []string        `json:"normalizers"`
	Validators      []ValidatorSpec `json:"validators" validate:"dive"`
	FallbackAllowed bool            `json:"fallback_allowed"`
}

// CrossFieldRule is a document-level consistency check such as "total_amount >= subtotal".
type CrossFieldRule struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Fields      []string `json:"fields"`
	Rule        string   `json:"rule" validate:"required"`
}

type DocumentConfig struct {
	DocumentType          string           `json:"document_type" validate:"required"`
	Fields                []FieldConfig    `json:"fields" validate:"required,min=1,dive"`
	CrossFieldValidations []CrossFieldRule `json:"cross_field_validations" validate:"dive"`
}

// Field returns the field config by name.
func (c DocumentConfig) Field(name string) (FieldConfig, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldConfig{}, false
}

// FieldNames lists field names in declaration order.
func (c DocumentConfig) FieldNames() []string {
	names := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		names = append(names, f.Name)
	}
	return names
}
