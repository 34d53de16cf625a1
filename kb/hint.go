package kb

import (
	"regexp"
	"strings"
)

// Hint extraction runs in tiers. A quoted span wins outright; otherwise the
// polite-prefix form is tried before the bare ask so "please tell me about X"
// captures X rather than "tell me about X"; a bare role mention ("employee X")
// anywhere in the query is the last resort.
var (
	doubleQuotedRe = regexp.MustCompile(`"([^"]{2,})"`)
	singleQuotedRe = regexp.MustCompile(`'([^']{2,})'`)

	politeHintRe = regexp.MustCompile(`(?i)(?:^|\b)(?:can you|could you|please)\s+(?:tell me about|about|who is|profile of)\s+(?:employee|employees|person)?\s*([a-zA-Z][a-zA-Z .'-]{2,})`)
	askHintRe    = regexp.MustCompile(`(?i)(?:^|\b)(?:tell me about|about|who is|profile of)\s+(?:employee|employees|person)?\s*([a-zA-Z][a-zA-Z .'-]{2,})`)
	roleHintRe   = regexp.MustCompile(`(?i)\b(?:employee|employees|person)\s+([a-zA-Z][a-zA-Z .'-]{2,})`)

	leadingRoleRe = regexp.MustCompile(`(?i)^(?:employee|employees|person)\s+`)
)

// entityHint extracts the entity a query asks about, or "" when the query
// is not an entity lookup.
func entityHint(query string) string {
	for _, re := range []*regexp.Regexp{doubleQuotedRe, singleQuotedRe} {
		if m := re.FindStringSubmatch(query); m != nil {
			if h := strings.Join(strings.Fields(m[1]), " "); h != "" {
				return h
			}
		}
	}
	for _, re := range []*regexp.Regexp{politeHintRe, askHintRe, roleHintRe} {
		m := re.FindStringSubmatch(query)
		if m == nil {
			continue
		}
		h := strings.Trim(m[1], " .?!,;:\"'")
		h = leadingRoleRe.ReplaceAllString(h, "")
		if h != "" {
			return h
		}
	}
	return ""
}
