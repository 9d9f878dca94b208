// File: internal/mapper/patterns.go
package mapper

import (
	"regexp"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// category is one entry of the prioritized matching dictionary. A field
// matches the category when its name or label satisfies any pattern, or when
// its declared type implies it directly. Order matters: email precedes the
// address categories so "email_address" never lands in street.
type category struct {
	name        string
	patterns    []*regexp.Regexp
	impliedType schemas.FieldType
	value       func(schemas.Profile) string
}

// Provenance confidence per match source. Declared-type implication is the
// strongest signal, then a name match, then a label match.
const (
	confidenceType    = 95
	confidenceName    = 85
	confidenceLabel   = 70
	confidenceSpecial = 60
	confidenceCustom  = 50
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// defaultCategories builds the built-in dictionary. Extra per-deployment
// patterns from configuration are appended to the matching category.
func defaultCategories(extra map[string][]string) []category {
	cats := []category{
		{
			name:        "email",
			patterns:    compile(`e.?mail`),
			impliedType: schemas.FieldEmail,
			value:       func(p schemas.Profile) string { return p.Email },
		},
		{
			name:     "first-name",
			patterns: compile(`first.?name`, `^f.?name$`, `given.?name`, `forename`),
			value:    func(p schemas.Profile) string { return p.FirstName },
		},
		{
			name:     "last-name",
			patterns: compile(`last.?name`, `^l.?name$`, `surname`, `family.?name`),
			value:    func(p schemas.Profile) string { return p.LastName },
		},
		{
			name:        "phone",
			patterns:    compile(`phone`, `mobile`, `^tel`, `cell`),
			impliedType: schemas.FieldPhone,
			value:       func(p schemas.Profile) string { return p.Phone },
		},
		{
			name:     "company",
			patterns: compile(`company`, `organi[sz]ation`, `employer`, `business.?name`),
			value:    func(p schemas.Profile) string { return p.Company },
		},
		{
			name:     "street",
			patterns: compile(`street`, `^address`, `addr.?(line)?.?1`, `address.?1`),
			value:    func(p schemas.Profile) string { return p.Street },
		},
		{
			name:     "city",
			patterns: compile(`city`, `town`, `locality`),
			value:    func(p schemas.Profile) string { return p.City },
		},
		{
			name:     "state",
			patterns: compile(`state`, `province`, `region`, `county`),
			value:    func(p schemas.Profile) string { return p.State },
		},
		{
			name:     "postal",
			patterns: compile(`zip`, `postal`, `post.?code`),
			value:    func(p schemas.Profile) string { return p.PostalID },
		},
		{
			name:     "country",
			patterns: compile(`country`, `nation`),
			value:    func(p schemas.Profile) string { return p.Country },
		},
	}

	for i := range cats {
		if patterns, ok := extra[cats[i].name]; ok {
			cats[i].patterns = append(cats[i].patterns, compile(patterns...)...)
		}
	}
	return cats
}

// Special-case patterns applied after the dictionary misses.
var (
	fullNamePattern  = regexp.MustCompile(`(?i)^(full.?|your.?)?name$|full.?name`)
	birthDatePattern = regexp.MustCompile(`(?i)birth|^dob$|b.?day`)
)
