package card

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chezu/antler/internal/errors"
	"github.com/chezu/antler/internal/ident"
)

// ToJSON serializes a card. All fields are written, nullable ones as JSON
// null.
func ToJSON(c Card) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, errors.E(errors.Op("card.ToJSON"), errors.CodeInvalidCard, err)
	}
	return data, nil
}

// FromJSON deserializes and validates a single card. No field is trusted
// before the whole shape has been checked; the first violated constraint
// aborts with a descriptive error and no partial recovery is attempted.
// Unknown extra fields are ignored.
func FromJSON(data []byte) (Card, error) {
	const op = errors.Op("card.FromJSON")

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Card{}, errors.E(op, errors.CodeInvalidCard, "not a JSON object", err)
	}
	return fromRaw(op, raw)
}

// FromJSONArray deserializes a list of cards. Validation failure of any
// element fails the whole array, reporting the index and reason of the first
// offender; elements are never silently dropped.
func FromJSONArray(data []byte) ([]Card, error) {
	const op = errors.Op("card.FromJSONArray")

	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, errors.E(op, errors.CodeInvalidCard, "not a JSON array", err)
	}

	cards := make([]Card, 0, len(elems))
	for i, elem := range elems {
		c, err := FromJSON(elem)
		if err != nil {
			return nil, errors.E(op, errors.CodeInvalidCard,
				fmt.Sprintf("card at index %d: %v", i, err))
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// fromRaw checks the shape of a decoded object and constructs the card.
func fromRaw(op errors.Op, raw map[string]json.RawMessage) (Card, error) {
	fail := func(format string, args ...interface{}) (Card, error) {
		return Card{}, errors.E(op, errors.CodeInvalidCard, fmt.Sprintf(format, args...))
	}

	var c Card
	var err error

	if c.Name, err = requireString(raw, "name"); err != nil {
		return fail("%v", err)
	}
	if c.SessionUID, err = requireString(raw, "sessionUid"); err != nil {
		return fail("%v", err)
	}
	if !ident.ValidUID(c.SessionUID) {
		return fail("sessionUid %q is not a UUIDv4", c.SessionUID)
	}

	status, err := requireString(raw, "status")
	if err != nil {
		return fail("%v", err)
	}
	c.Status = Status(status)
	if !ValidStatus(c.Status) {
		return fail("status %q is not one of idle, in_progress, waiting, done", status)
	}

	operation, err := requireString(raw, "worktreeOperation")
	if err != nil {
		return fail("%v", err)
	}
	c.WorktreeOperation = WorktreeOp(operation)
	if !ValidWorktreeOp(c.WorktreeOperation) {
		return fail("worktreeOperation %q is not one of idle, creating, removing, error", operation)
	}

	if c.WorktreeCreated, err = requireBool(raw, "worktreeCreated"); err != nil {
		return fail("%v", err)
	}
	if c.HasError, err = requireBool(raw, "hasError"); err != nil {
		return fail("%v", err)
	}

	if c.WorktreePath, err = optionalString(raw, "worktreePath"); err != nil {
		return fail("%v", err)
	}
	if c.WorktreeError, err = optionalString(raw, "worktreeError"); err != nil {
		return fail("%v", err)
	}
	if c.Port, err = optionalInt(raw, "port"); err != nil {
		return fail("%v", err)
	}

	if c.CreatedAt, err = requireTime(raw, "createdAt"); err != nil {
		return fail("%v", err)
	}
	if c.UpdatedAt, err = requireTime(raw, "updatedAt"); err != nil {
		return fail("%v", err)
	}

	if gh, ok := raw["github"]; ok {
		if err := json.Unmarshal(gh, &c.GitHub); err != nil {
			return fail("github is not an object: %v", err)
		}
	}

	// Cross-field invariants hold for every reachable card, so a serialized
	// card violating them is corrupt.
	if (c.WorktreeOperation == OpError) != (c.WorktreeError != nil) {
		return fail("worktreeOperation %q inconsistent with worktreeError", c.WorktreeOperation)
	}
	if c.Port != nil && !c.WorktreeCreated {
		return fail("port set without worktreeCreated")
	}

	return c, nil
}

func requireString(raw map[string]json.RawMessage, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", fmt.Errorf("missing required field %q", key)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("field %q must be a string", key)
	}
	return s, nil
}

func requireBool(raw map[string]json.RawMessage, key string) (bool, error) {
	v, ok := raw[key]
	if !ok {
		return false, fmt.Errorf("missing required field %q", key)
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return false, fmt.Errorf("field %q must be a boolean", key)
	}
	return b, nil
}

func requireTime(raw map[string]json.RawMessage, key string) (time.Time, error) {
	v, ok := raw[key]
	if !ok {
		return time.Time{}, fmt.Errorf("missing required field %q", key)
	}
	var t time.Time
	if err := json.Unmarshal(v, &t); err != nil {
		return time.Time{}, fmt.Errorf("field %q must be an RFC 3339 timestamp", key)
	}
	return t, nil
}

// optionalString accepts a missing key, JSON null, or a string.
func optionalString(raw map[string]json.RawMessage, key string) (*string, error) {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, fmt.Errorf("field %q must be a string or null", key)
	}
	return &s, nil
}

// optionalInt accepts a missing key, JSON null, or an integer.
func optionalInt(raw map[string]json.RawMessage, key string) (*int, error) {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return nil, nil
	}
	var n int
	if err := json.Unmarshal(v, &n); err != nil {
		return nil, fmt.Errorf("field %q must be an integer or null", key)
	}
	return &n, nil
}
