package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// AccessTokenKind enumerates the supported grant kinds.
type AccessTokenKind string

const (
	TokenPublic   AccessTokenKind = "public"
	TokenLoggedIn AccessTokenKind = "logged_in"
	TokenUser     AccessTokenKind = "user"
	TokenGroup    AccessTokenKind = "group"
	TokenSubgroup AccessTokenKind = "subgroup"
)

// AccessToken is an atomic grant. Equality is by (kind, id); the id is
// empty for the public and logged_in kinds.
type AccessToken struct {
	Kind AccessTokenKind
	ID   string
}

// UserToken builds a user grant.
func UserToken(userID string) AccessToken { return AccessToken{Kind: TokenUser, ID: userID} }

// GroupToken builds a group grant.
func GroupToken(groupID string) AccessToken { return AccessToken{Kind: TokenGroup, ID: groupID} }

// SubgroupToken builds a subgroup grant.
func SubgroupToken(subgroupID string) AccessToken {
	return AccessToken{Kind: TokenSubgroup, ID: subgroupID}
}

// PublicToken is the anonymous-read grant.
var PublicToken = AccessToken{Kind: TokenPublic}

// LoggedInToken grants any authenticated user.
var LoggedInToken = AccessToken{Kind: TokenLoggedIn}

// String renders the canonical wire form ("public", "user:42", ...).
func (t AccessToken) String() string {
	switch t.Kind {
	case TokenPublic, TokenLoggedIn:
		return string(t.Kind)
	default:
		return fmt.Sprintf("%s:%s", t.Kind, t.ID)
	}
}

// ParseAccessToken parses the canonical wire form. Unknown kinds and
// malformed tokens are rejected rather than ignored.
func ParseAccessToken(raw string) (AccessToken, error) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case string(TokenPublic):
		return PublicToken, nil
	case string(TokenLoggedIn):
		return LoggedInToken, nil
	}
	kind, id, found := strings.Cut(raw, ":")
	if !found || id == "" {
		return AccessToken{}, fmt.Errorf("malformed access token %q", raw)
	}
	switch AccessTokenKind(kind) {
	case TokenUser, TokenGroup, TokenSubgroup:
		return AccessToken{Kind: AccessTokenKind(kind), ID: id}, nil
	}
	return AccessToken{}, fmt.Errorf("unknown access token kind %q", kind)
}

// AccessList is an unordered set of access tokens. The zero value is an
// empty list.
type AccessList struct {
	tokens map[AccessToken]struct{}
}

// NewAccessList builds a list from the given tokens.
func NewAccessList(tokens ...AccessToken) AccessList {
	list := AccessList{}
	for _, t := range tokens {
		list.Add(t)
	}
	return list
}

// ParseAccessList parses and deduplicates a slice of wire-form tokens.
func ParseAccessList(raw []string) (AccessList, error) {
	list := AccessList{}
	for _, s := range raw {
		token, err := ParseAccessToken(s)
		if err != nil {
			return AccessList{}, err
		}
		list.Add(token)
	}
	return list, nil
}

// Add inserts a token into the set.
func (l *AccessList) Add(t AccessToken) {
	if l.tokens == nil {
		l.tokens = make(map[AccessToken]struct{})
	}
	l.tokens[t] = struct{}{}
}

// Contains reports set membership.
func (l AccessList) Contains(t AccessToken) bool {
	_, ok := l.tokens[t]
	return ok
}

// Len returns the number of distinct tokens.
func (l AccessList) Len() int { return len(l.tokens) }

// Tokens returns the tokens in canonical (sorted string) order.
func (l AccessList) Tokens() []AccessToken {
	out := make([]AccessToken, 0, len(l.tokens))
	for t := range l.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Strings returns the canonical sorted, deduplicated wire form.
func (l AccessList) Strings() []string {
	tokens := l.Tokens()
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.String()
	}
	return out
}

// Value serializes the list as a JSON string array for storage.
func (l AccessList) Value() (driver.Value, error) {
	return json.Marshal(l.Strings())
}

// Scan loads the list from its stored JSON string array form.
func (l *AccessList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = AccessList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported access list source type %T", src)
	}
	var entries []string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("decode access list: %w", err)
	}
	parsed, err := ParseAccessList(entries)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MarshalJSON renders the canonical wire form.
func (l AccessList) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Strings())
}

// UnmarshalJSON parses the canonical wire form.
func (l *AccessList) UnmarshalJSON(data []byte) error {
	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	parsed, err := ParseAccessList(entries)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// AccessLevelKind discriminates the selector variants exposed to callers.
type AccessLevelKind int

const (
	LevelPrivate  AccessLevelKind = 0
	LevelLoggedIn AccessLevelKind = 1
	LevelPublic   AccessLevelKind = 2
	LevelGroup    AccessLevelKind = 4
	// LevelSubgroup selectors carry the subgroup id instead of a fixed
	// integer.
	LevelSubgroup AccessLevelKind = -1
)

// AccessLevel is the small discrete selector the API exposes in place of a
// raw ACL. It is expanded into an AccessList and never persisted itself.
type AccessLevel struct {
	Kind       AccessLevelKind
	SubgroupID string
}

// ParseAccessLevel accepts "0", "1", "2", "4" or a subgroup id.
func ParseAccessLevel(raw string) (AccessLevel, error) {
	switch strings.TrimSpace(raw) {
	case "0":
		return AccessLevel{Kind: LevelPrivate}, nil
	case "1":
		return AccessLevel{Kind: LevelLoggedIn}, nil
	case "2":
		return AccessLevel{Kind: LevelPublic}, nil
	case "4":
		return AccessLevel{Kind: LevelGroup}, nil
	case "", "3":
		return AccessLevel{}, fmt.Errorf("invalid access level %q", raw)
	}
	return AccessLevel{Kind: LevelSubgroup, SubgroupID: strings.TrimSpace(raw)}, nil
}

// String renders the selector in its external form.
func (a AccessLevel) String() string {
	if a.Kind == LevelSubgroup {
		return a.SubgroupID
	}
	return fmt.Sprintf("%d", int(a.Kind))
}

// AccessOption is one selectable access level with a display description.
type AccessOption struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}
