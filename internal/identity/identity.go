// Package identity canonicalizes contact strings and derives the dedup key
// that unifies records describing the same person.
//
// Normalization is a canonical string form, not phone-number parsing.
// Full-width characters are folded to ASCII before separators are stripped.
package identity

import (
	"strings"

	"golang.org/x/text/width"

	"github.com/roach88/roster/internal/value"
)

// StrategyPhoneThenEmail is the only dedup strategy: phone wins over email.
const StrategyPhoneThenEmail = "phone_then_email"

// Dedup is the identity key stored on every person. Key is empty when the
// record carries neither phone nor email and can never be deduplicated.
type Dedup struct {
	Strategy string `json:"strategy"`
	Key      string `json:"key"`
}

// Field aliases probed by ExtractContact and ExtractName, in priority order.
var (
	PhoneKeys      = []string{"电话", "联系电话", "手机", "phone", "tel", "mobile"}
	EmailKeys      = []string{"邮箱", "联系邮箱", "email", "e-mail"}
	NameKeys       = []string{"姓名", "name", "Name"}
	ContactKeys    = []string{"联系方式", "contact"}
	nestedPhoneKey = []string{"电话", "phone", "tel", "mobile"}
	nestedEmailKey = []string{"邮箱", "email", "e-mail"}
)

// placeholders are the tokens import collaborators write for absent fields.
// Compared case-insensitively after trimming.
var placeholders = newSet(
	"", value.NotProvided, "未知", "无",
	"none", "null", "n/a", "na", "not provided", "unknown",
)

func newSet(items ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// IsPlaceholder reports whether s is empty or a missing-value token.
func IsPlaceholder(s string) bool {
	_, ok := placeholders[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// IsMissing reports whether v should be treated as absent when probing
// profile fields: null, empty, a placeholder token, an empty map, or a list
// whose every element is missing. Numbers and booleans are never missing.
func IsMissing(v value.Value) bool {
	switch val := v.(type) {
	case nil, value.Null:
		return true
	case value.String:
		return IsPlaceholder(string(val))
	case value.List:
		for _, elem := range val {
			if !IsMissing(elem) {
				return false
			}
		}
		return true
	case value.Map:
		return len(val) == 0
	default:
		return false
	}
}

var phoneSeparators = strings.NewReplacer(
	" ", "", "\t", "", "\n", "", "\r", "",
	"-", "", "(", "", ")", "",
)

// NormalizePhone strips whitespace, parentheses, and hyphens.
// Returns "" for empty input and the "not provided" sentinel.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == value.NotProvided {
		return ""
	}
	s = width.Narrow.String(s)
	s = phoneSeparators.Replace(s)
	return strings.Join(strings.Fields(s), "")
}

// NormalizeEmail trims and lower-cases. Returns "" for empty input and the
// "not provided" sentinel.
func NormalizeEmail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == value.NotProvided {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(width.Narrow.String(s)))
}

// ComputeDedupKey derives the identity key: "phone:<n>" when the phone
// normalizes to something, else "email:<n>", else "".
func ComputeDedupKey(phone, email string) Dedup {
	d := Dedup{Strategy: StrategyPhoneThenEmail}
	if p := NormalizePhone(phone); p != "" {
		d.Key = "phone:" + p
	} else if e := NormalizeEmail(email); e != "" {
		d.Key = "email:" + e
	}
	return d
}

// PhoneKey returns the dedup key a phone number maps to, or "" when the
// phone normalizes to nothing.
func PhoneKey(phone string) string {
	if p := NormalizePhone(phone); p != "" {
		return "phone:" + p
	}
	return ""
}

// ExtractContact returns the first non-missing phone and email of a profile.
// Top-level aliases are probed first, then the nested contact object.
func ExtractContact(profile value.Map) (phone, email string) {
	if profile == nil {
		return "", ""
	}

	phone = firstPresent(profile, PhoneKeys)
	email = firstPresent(profile, EmailKeys)

	for _, ck := range ContactKeys {
		contact, ok := profile[ck].(value.Map)
		if !ok {
			continue
		}
		if phone == "" {
			phone = firstPresent(contact, nestedPhoneKey)
		}
		if email == "" {
			email = firstPresent(contact, nestedEmailKey)
		}
	}

	return phone, email
}

// ExtractName returns the first display name of a profile. A name is missing
// only when blank or NotProvided: the placeholder tokens used for contact
// fields, such as "na", are legitimate names.
func ExtractName(profile value.Map) string {
	for _, k := range NameKeys {
		v, ok := profile[k]
		if !ok || value.IsEmpty(v) {
			continue
		}
		if name := strings.TrimSpace(value.Text(v)); name != "" {
			return name
		}
	}
	return ""
}

// PlaceholderName is the synthesized display name for records without one.
func PlaceholderName(suffix string) string {
	return "member_" + suffix
}

func firstPresent(m value.Map, keys []string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || IsMissing(v) {
			continue
		}
		return strings.TrimSpace(value.Text(v))
	}
	return ""
}
