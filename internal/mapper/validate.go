// File: internal/mapper/validate.go
package mapper

import (
	"fmt"
	"regexp"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

var (
	emailFormat = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneFormat = regexp.MustCompile(`^[+\d][\d\s().-]{5,}$`)
)

// Validate runs the downstream validation pass over a computed mapping:
// one warning per required-field violation (unmapped-and-required, or
// mapped-but-empty-and-required) plus format warnings for email and phone
// values that fail their regex check. Warnings never block a fill; they ride
// along on the ExecutionResult.
func Validate(fields []schemas.DetectedField, mapping map[string]schemas.FieldMapping) []string {
	var warnings []string

	for _, field := range fields {
		key := fieldKey(field)
		if key == "" {
			continue
		}
		fm, mapped := mapping[key]

		if field.Required {
			switch {
			case !mapped:
				warnings = append(warnings, fmt.Sprintf("required field %q is unmapped", key))
			case fm.Value == "":
				warnings = append(warnings, fmt.Sprintf("required field %q is mapped to an empty value", key))
			}
		}

		if !mapped || fm.Value == "" {
			continue
		}
		switch field.Type {
		case schemas.FieldEmail:
			if !emailFormat.MatchString(fm.Value) {
				warnings = append(warnings, fmt.Sprintf("field %q: value is not a valid email address", key))
			}
		case schemas.FieldPhone:
			if !phoneFormat.MatchString(fm.Value) {
				warnings = append(warnings, fmt.Sprintf("field %q: value is not a plausible phone number", key))
			}
		}
	}

	return warnings
}
