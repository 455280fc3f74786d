package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Permission is a set of capabilities. The bit values match the stored
// encoding: read=1, write=2, delete=4, admin=8.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermWrite
	PermDelete
	PermAdmin

	PermNone Permission = 0
	PermAll             = PermRead | PermWrite | PermDelete | PermAdmin
)

var permissionNames = []struct {
	perm Permission
	name string
}{
	{PermRead, "read"},
	{PermWrite, "write"},
	{PermDelete, "delete"},
	{PermAdmin, "admin"},
}

// Valid reports whether p only uses defined bits.
func (p Permission) Valid() bool {
	return p <= PermAll
}

// Has reports whether p shares at least one capability with required.
func (p Permission) Has(required Permission) bool {
	return p&required != 0
}

func (p Permission) Names() []string {
	names := make([]string, 0, len(permissionNames))
	for _, pn := range permissionNames {
		if p&pn.perm != 0 {
			names = append(names, pn.name)
		}
	}
	return names
}

func (p Permission) String() string {
	if p == PermNone {
		return "none"
	}
	if p == PermAll {
		return "all"
	}
	return strings.Join(p.Names(), "|")
}

// ParsePermission accepts "all", "none", or a comma or pipe separated list of
// capability names.
func ParsePermission(s string) (Permission, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "none":
		return PermNone, nil
	case "all":
		return PermAll, nil
	}

	var p Permission
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		part = strings.TrimSpace(part)
		found := false
		for _, pn := range permissionNames {
			if pn.name == part {
				p |= pn.perm
				found = true
				break
			}
		}
		if !found {
			return 0, newError(KindInvalidPermission, "unknown permission %q", part)
		}
	}
	return p, nil
}

// UnmarshalJSON accepts either the numeric encoding or a list of names.
func (p *Permission) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n < 0 || n > 255 {
			return newError(KindInvalidPermission, "permission %d out of range", n)
		}
		*p = Permission(n)
		return nil
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("permission must be a number or a list of names: %w", err)
	}
	parsed, err := ParsePermission(strings.Join(names, ","))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
