package xsd

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var builtins = map[string]func(string) bool{
	"string":             func(string) bool { return true },
	"normalizedString":   func(v string) bool { return !strings.ContainsAny(v, "\r\n\t") },
	"token":              func(v string) bool { return v == collapse(v) },
	"boolean":            func(v string) bool { return v == "true" || v == "false" || v == "1" || v == "0" },
	"decimal":            isDecimal,
	"integer":            integerPattern.MatchString,
	"nonNegativeInteger": nonNegativeIntegerPattern.MatchString,
	"positiveInteger":    positiveIntegerPattern.MatchString,
	"dateTime":           isDateTime,
	"date":               func(v string) bool { _, err := time.Parse("2006-01-02", v); return err == nil },
}

var (
	decimalPattern            = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	integerPattern            = regexp.MustCompile(`^[+-]?\d+$`)
	nonNegativeIntegerPattern = regexp.MustCompile(`^\+?\d+$`)
	positiveIntegerPattern    = regexp.MustCompile(`^\+?0*[1-9]\d*$`)
)

func isBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

func builtinType(name string) *simpleType {
	return &simpleType{builtin: name, length: -1, minLength: -1, maxLength: -1, fractionDigits: -1}
}

func isDecimal(v string) bool {
	if !decimalPattern.MatchString(v) {
		return false
	}
	_, err := decimal.NewFromString(v)
	return err == nil
}

// isDateTime accepts xs:dateTime values with or without seconds, since the
// market schemas use both "2022-06-17T22:00:00Z" and "2022-06-17T22:00Z".
func isDateTime(v string) bool {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04Z07:00", "2006-01-02T15:04:05"} {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

func collapse(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// check validates a lexical value and returns a description of the first
// violated constraint, or "" when the value is valid.
func (st *simpleType) check(v string) string {
	if st.builtin != "" {
		if st.builtin != "string" && st.builtin != "normalizedString" {
			v = collapse(v)
		}
		if !builtins[st.builtin](v) {
			return "The value '" + v + "' is invalid according to its datatype '" + st.String() + "'"
		}
		return ""
	}
	if st.base != nil {
		if msg := st.base.check(v); msg != "" {
			return msg
		}
	}
	if st.base != nil && st.base.builtin != "string" {
		v = collapse(v)
	}
	n := utf8.RuneCountInString(v)
	switch {
	case st.length >= 0 && n != st.length:
		return "The actual length is not equal to the specified length"
	case st.minLength >= 0 && n < st.minLength:
		return "The actual length is less than the MinLength value"
	case st.maxLength >= 0 && n > st.maxLength:
		return "The actual length is greater than the MaxLength value"
	}
	if st.fractionDigits >= 0 {
		if i := strings.IndexByte(v, '.'); i >= 0 && len(v)-i-1 > st.fractionDigits {
			return "The value '" + v + "' has more fraction digits than allowed"
		}
	}
	if len(st.enumerations) > 0 {
		found := false
		for _, e := range st.enumerations {
			if e == v {
				found = true
				break
			}
		}
		if !found {
			return "The Enumeration constraint failed for value '" + v + "'"
		}
	}
	for _, re := range st.patterns {
		if !re.MatchString(v) {
			return "The Pattern constraint failed for value '" + v + "'"
		}
	}
	return ""
}
