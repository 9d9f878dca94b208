// File: internal/mapper/mapper.go
// The mapper resolves profile values against detected fields. It is pure:
// the same profile and field list always produce the same mapping and the
// same unmapped list.
package mapper

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// Mapper binds profile data to detected form fields via the prioritized
// category dictionary plus special-case handlers.
type Mapper struct {
	cfg        config.MapperConfig
	categories []category
	logger     *zap.Logger
}

var _ schemas.FieldMapper = (*Mapper)(nil)

// New creates a Mapper; extra patterns from configuration extend the
// built-in dictionary.
func New(cfg config.MapperConfig, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DateLayout == "" {
		cfg.DateLayout = "2006-01-02"
	}
	return &Mapper{
		cfg:        cfg,
		categories: defaultCategories(cfg.ExtraPatterns),
		logger:     logger.Named("mapper"),
	}
}

// Map resolves each field against the dictionary, then the special-case
// handlers. Empty profile values are never bound: a matched-but-empty field
// keeps scanning lower-priority categories and ends up unmapped if nothing
// non-empty binds. Returns the mapping keyed by field name plus the names of
// fields that could not be mapped.
func (m *Mapper) Map(profile schemas.Profile, fields []schemas.DetectedField) (map[string]schemas.FieldMapping, []string) {
	mapping := make(map[string]schemas.FieldMapping, len(fields))
	seen := make(map[string]struct{}, len(fields))
	var unmapped []string

	for _, field := range fields {
		key := fieldKey(field)
		if key == "" {
			continue
		}
		// First occurrence wins; later duplicates are skipped whether or
		// not the first one mapped.
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if fm, ok := m.resolve(profile, field); ok {
			fm.FieldName = key
			fm.Selector = field.Selector
			mapping[key] = fm
			continue
		}
		unmapped = append(unmapped, key)
	}

	return mapping, unmapped
}

// resolve runs the dictionary and special cases for a single field.
func (m *Mapper) resolve(profile schemas.Profile, field schemas.DetectedField) (schemas.FieldMapping, bool) {
	// Password and choice controls have no profile counterpart.
	switch field.Type {
	case schemas.FieldPassword, schemas.FieldCheckbox, schemas.FieldRadio:
		return schemas.FieldMapping{}, false
	}

	for _, cat := range m.categories {
		confidence, matched := matchCategory(cat, field)
		if !matched || confidence < m.cfg.MinConfidence {
			continue
		}
		value := cat.value(profile)
		if value == "" {
			// Matched but the profile has nothing to offer; keep scanning.
			continue
		}
		return schemas.FieldMapping{Value: value, Category: cat.name, Confidence: confidence}, true
	}

	return m.specialCase(profile, field)
}

// matchCategory reports whether the field belongs to the category and the
// provenance confidence of the match.
func matchCategory(cat category, field schemas.DetectedField) (int, bool) {
	if cat.impliedType != "" && field.Type == cat.impliedType {
		return confidenceType, true
	}
	for _, p := range cat.patterns {
		if p.MatchString(field.Name) {
			return confidenceName, true
		}
		if field.Label != "" && p.MatchString(field.Label) {
			return confidenceLabel, true
		}
	}
	return 0, false
}

// specialCase handles the fields the dictionary cannot: full-name
// concatenation, date-of-birth formatting, and profile custom-field lookup.
func (m *Mapper) specialCase(profile schemas.Profile, field schemas.DetectedField) (schemas.FieldMapping, bool) {
	if fullNamePattern.MatchString(field.Name) || fullNamePattern.MatchString(field.Label) {
		if name := profile.FullName(); name != "" {
			return schemas.FieldMapping{Value: name, Category: "full-name", Confidence: confidenceSpecial}, true
		}
	}

	if birthDatePattern.MatchString(field.Name) || birthDatePattern.MatchString(field.Label) || field.Type == schemas.FieldDate {
		if formatted := m.formatBirthDate(profile.BirthDate); formatted != "" {
			return schemas.FieldMapping{Value: formatted, Category: "birth-date", Confidence: confidenceSpecial}, true
		}
	}

	if value, ok := customLookup(profile, field); ok {
		return schemas.FieldMapping{Value: value, Category: "custom", Confidence: confidenceCustom}, true
	}

	return schemas.FieldMapping{}, false
}

// formatBirthDate re-renders the profile's ISO birth date in the configured
// layout. A date that does not parse is passed through untouched rather than
// silently dropped.
func (m *Mapper) formatBirthDate(iso string) string {
	if iso == "" {
		return ""
	}
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return iso
	}
	return t.Format(m.cfg.DateLayout)
}

// customLookup matches the field's normalized name or label against the
// profile's custom-field keys.
func customLookup(profile schemas.Profile, field schemas.DetectedField) (string, bool) {
	if len(profile.Custom) == 0 {
		return "", false
	}
	fieldName := normalizeKey(field.Name)
	fieldLabel := normalizeKey(field.Label)
	for key, value := range profile.Custom {
		if value == "" {
			continue
		}
		norm := normalizeKey(key)
		if norm != "" && (norm == fieldName || norm == fieldLabel) {
			return value, true
		}
	}
	return "", false
}

// normalizeKey lowercases and strips non-alphanumerics so "First Name",
// "first_name" and "firstName" compare equal.
func normalizeKey(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// fieldKey picks the map key for a field: its name, falling back to the
// selector for anonymous controls.
func fieldKey(field schemas.DetectedField) string {
	if field.Name != "" {
		return field.Name
	}
	return field.Selector
}
