// Package ident generates and validates the identifiers used for work
// sessions: opaque UUIDv4 session UIDs and short human-readable names.
package ident

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// uidPattern matches a canonical UUIDv4: version nibble 4, variant 8/9/a/b.
var uidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// Word lists for generated session names. Fixed so names stay short and
// pronounceable; the UID suffix disambiguates collisions.
var (
	adjectives = []string{
		"amber", "bold", "calm", "dapper", "eager",
		"fuzzy", "gentle", "happy", "ivory", "jolly",
		"keen", "lively", "mellow", "nimble", "quiet",
	}
	nouns = []string{
		"badger", "comet", "dune", "ember", "falcon",
		"grove", "harbor", "iris", "jasper", "kestrel",
		"lagoon", "meadow", "otter", "pine", "ridge",
	}
)

// NewUID returns a fresh UUIDv4 in canonical lowercase form.
func NewUID() string {
	return uuid.NewString()
}

// ValidUID reports whether s is a canonical lowercase UUIDv4.
func ValidUID(s string) bool {
	return uidPattern.MatchString(s)
}

// NewName derives a human-readable name from a session UID. The result has
// the form adjective-noun-xxxx where xxxx is the first four hex characters of
// the UID. The word choice is derived from the UID so the same UID always
// yields the same name.
func NewName(uid string) string {
	suffix := strings.ReplaceAll(uid, "-", "")
	if len(suffix) < 4 {
		suffix = fmt.Sprintf("%-4s", suffix)
	}
	suffix = suffix[:4]

	var sum int
	for _, c := range uid {
		sum += int(c)
	}
	adj := adjectives[sum%len(adjectives)]
	noun := nouns[(sum/len(adjectives))%len(nouns)]
	return fmt.Sprintf("%s-%s-%s", adj, noun, suffix)
}
