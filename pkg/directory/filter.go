package directory

import (
	"fmt"
	"regexp"
	"strings"
)

// Group DNs contain commas, so a plain comma split would shred them. The
// accepted delimiters are a semicolon, a pipe, or a comma followed by
// whitespace; commas inside a DN are never followed by whitespace.
var groupDelimiter = regexp.MustCompile(`;|\||,\s+`)

// BuildFilter composes an RFC 4515 search filter from the configured
// criteria. An objectType of "" or "*" omits the objectClass clause; groups
// is a delimited DN list producing an OR clause over groupAttr; extra is a
// raw filter fragment used verbatim (wrapped in parentheses if missing).
// With no criteria at all the match-all filter "(objectClass=*)" is
// returned; a single clause is returned bare, multiple clauses are ANDed.
func BuildFilter(objectType, groups, extra, groupAttr string) string {
	var parts []string

	if obj := strings.TrimSpace(objectType); obj != "" && obj != "*" {
		parts = append(parts, fmt.Sprintf("(objectClass=%s)", obj))
	}

	if clause := groupClause(groups, groupAttr); clause != "" {
		parts = append(parts, clause)
	}

	if frag := strings.TrimSpace(extra); frag != "" {
		if !strings.HasPrefix(frag, "(") {
			frag = "(" + frag + ")"
		}
		parts = append(parts, frag)
	}

	switch len(parts) {
	case 0:
		return "(objectClass=*)"
	case 1:
		return parts[0]
	}
	return fmt.Sprintf("(&%s)", strings.Join(parts, ""))
}

// groupClause builds the membership sub-filter: one clause per configured
// group DN, ORed together when there is more than one.
func groupClause(groups, groupAttr string) string {
	var clauses []string
	for _, dn := range groupDelimiter.Split(strings.TrimSpace(groups), -1) {
		if dn = strings.TrimSpace(dn); dn != "" {
			clauses = append(clauses, fmt.Sprintf("(%s=%s)", groupAttr, dn))
		}
	}
	switch len(clauses) {
	case 0:
		return ""
	case 1:
		return clauses[0]
	}
	return fmt.Sprintf("(|%s)", strings.Join(clauses, ""))
}
