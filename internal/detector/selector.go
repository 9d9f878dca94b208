// File: internal/detector/selector.go
package detector

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// safeToken accepts identifiers that can appear in a CSS selector without
// escaping. Anything else falls through to the next selector strategy.
var safeToken = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// containerSelector generates a stable selector for a form container using
// the same priority order as fields: id, then name, then position.
func containerSelector(s *goquery.Selection) string {
	tag := goquery.NodeName(s)
	if tag == "body" {
		return "body"
	}
	if id, ok := s.Attr("id"); ok && safeToken.MatchString(id) {
		return "#" + id
	}
	if name, ok := s.Attr("name"); ok && safeToken.MatchString(name) {
		return fmt.Sprintf(`%s[name="%s"]`, tag, name)
	}
	return fmt.Sprintf("%s:nth-of-type(%d)", tag, siblingOrdinal(s, tag))
}

// elementSelector generates a stable selector for a control, preferring in
// order: identifier, name attribute, data attributes, class list, and
// finally a positional path. The priority order guarantees the same logical
// field resolves to the same selector across repeated analyses of an
// unchanged page.
func elementSelector(s *goquery.Selection, formSel string) string {
	tag := goquery.NodeName(s)

	if id, ok := s.Attr("id"); ok && safeToken.MatchString(id) {
		return "#" + id
	}

	if name, ok := s.Attr("name"); ok && safeToken.MatchString(name) {
		return scopedSelector(formSel, fmt.Sprintf(`%s[name="%s"]`, tag, name))
	}

	if dataSel := dataAttrSelector(s, tag); dataSel != "" {
		return scopedSelector(formSel, dataSel)
	}

	if classSel := classSelector(s, tag); classSel != "" {
		return scopedSelector(formSel, classSel)
	}

	return scopedSelector(formSel, fmt.Sprintf("%s:nth-of-type(%d)", tag, siblingOrdinal(s, tag)))
}

// siblingOrdinal returns the control's 1-based position among its parent's
// children of the same tag, which is what CSS nth-of-type counts.
func siblingOrdinal(s *goquery.Selection, tag string) int {
	n := 1
	for prev := s.Prev(); prev.Length() > 0; prev = prev.Prev() {
		if goquery.NodeName(prev) == tag {
			n++
		}
	}
	return n
}

// dataAttrSelector builds a selector from the first (alphabetically) usable
// data attribute. Sorting keeps selector generation deterministic even
// though attribute maps are unordered.
func dataAttrSelector(s *goquery.Selection, tag string) string {
	if len(s.Nodes) == 0 {
		return ""
	}
	var keys []string
	vals := map[string]string{}
	for _, a := range s.Nodes[0].Attr {
		if strings.HasPrefix(a.Key, "data-") && safeToken.MatchString(strings.TrimPrefix(a.Key, "data-")) && safeToken.MatchString(a.Val) {
			keys = append(keys, a.Key)
			vals[a.Key] = a.Val
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	k := keys[0]
	return fmt.Sprintf(`%s[%s="%s"]`, tag, k, vals[k])
}

// classSelector builds a selector from the control's safe class names.
func classSelector(s *goquery.Selection, tag string) string {
	raw, ok := s.Attr("class")
	if !ok {
		return ""
	}
	var parts []string
	for _, c := range strings.Fields(raw) {
		if safeToken.MatchString(c) {
			parts = append(parts, "."+c)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return tag + strings.Join(parts, "")
}

// scopedSelector prefixes a control selector with its container selector,
// except for the body pseudo-container where scoping adds nothing.
func scopedSelector(formSel, sel string) string {
	if formSel == "" || formSel == "body" {
		return sel
	}
	return formSel + " " + sel
}
