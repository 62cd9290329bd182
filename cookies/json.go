package cookies

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
)

// ParseJSON accepts the cookie export shapes seen in the wild:
//
//	[ {...}, {...} ]                 bare array
//	{ "cookies": [ ... ] }           wrapped array
//	{ "name": ..., "value": ... }    single cookie
//	{ "anything": [ {"name": ...} ] } first list-valued field of named objects
//
// JSON5 syntax (comments, trailing commas, single quotes) is tolerated.
func ParseJSON(data []byte, opts Options) ([]SessionCookie, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, &ParseError{Reason: ReasonEmptyInput, Index: -1}
	}

	var doc any
	if err := json5.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Reason: ReasonUnsupported, Index: -1, Err: err}
	}

	records, ok := locateRecords(doc, data)
	if !ok {
		return nil, &ParseError{Reason: ReasonUnsupported, Index: -1}
	}
	if len(records) == 0 {
		return nil, &ParseError{Reason: ReasonNoCookies, Index: -1}
	}

	opts = opts.withDefaults()
	out := make([]SessionCookie, 0, len(records))
	for i, rec := range records {
		obj, isObj := rec.(map[string]any)
		if !isObj {
			return nil, &ParseError{Reason: ReasonMalformed, Index: i}
		}
		_, hasName := obj["name"]
		_, hasValue := obj["value"]
		switch {
		case !hasName && !hasValue:
			return nil, &ParseError{Reason: ReasonMalformed, Index: i}
		case !hasName || !hasValue:
			continue
		}
		c, valid := fromRecord(obj, opts)
		if !valid {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, &ParseError{Reason: ReasonNoCookies, Index: -1}
	}
	return out, nil
}

func locateRecords(doc any, raw []byte) ([]any, bool) {
	switch v := doc.(type) {
	case []any:
		return v, true
	case map[string]any:
		if list, ok := v["cookies"].([]any); ok {
			return list, true
		}
		_, hasName := v["name"]
		_, hasValue := v["value"]
		if hasName || hasValue {
			return []any{v}, true
		}
		for _, key := range keysInDocumentOrder(v, raw) {
			list, ok := v[key].([]any)
			if !ok || len(list) == 0 {
				continue
			}
			first, ok := list[0].(map[string]any)
			if !ok {
				continue
			}
			if _, named := first["name"]; named {
				return list, true
			}
		}
	}
	return nil, false
}

// keysInDocumentOrder orders top-level keys by where they first appear in the
// source text, since decoding into a map loses ordering.
func keysInDocumentOrder(obj map[string]any, raw []byte) []string {
	keys := make([]string, 0, len(obj))
	offsets := make(map[string]int, len(obj))
	for k := range obj {
		keys = append(keys, k)
		q := regexp.QuoteMeta(k)
		re := regexp.MustCompile(`(?:"` + q + `"|'` + q + `'|\b` + q + `\b)\s*:`)
		if loc := re.FindIndex(raw); loc != nil {
			offsets[k] = loc[0]
		} else {
			offsets[k] = math.MaxInt
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if offsets[keys[i]] != offsets[keys[j]] {
			return offsets[keys[i]] < offsets[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func fromRecord(obj map[string]any, opts Options) (SessionCookie, bool) {
	name := strings.TrimSpace(stringField(obj, "name"))
	if name == "" {
		return SessionCookie{}, false
	}
	c := SessionCookie{
		Name:     name,
		Value:    stringField(obj, "value"),
		Domain:   stringField(obj, "domain"),
		Path:     stringField(obj, "path"),
		HTTPOnly: boolField(obj, "httpOnly"),
		Secure:   boolField(obj, "secure"),
		SameSite: parseSameSite(stringField(obj, "sameSite")),
	}
	if c.Domain == "" {
		c.Domain = opts.DefaultDomain
	}
	if c.Path == "" {
		c.Path = "/"
	}

	now := opts.Now()
	switch {
	case numberField(obj, "expires") > 0:
		c.ExpiresAt = unixSeconds(numberField(obj, "expires"))
	case numberField(obj, "expirationDate") > 0:
		c.ExpiresAt = unixSeconds(numberField(obj, "expirationDate"))
	case numberField(obj, "maxAge") > 0:
		c.ExpiresAt = now.Add(time.Duration(numberField(obj, "maxAge") * float64(time.Second)))
	default:
		c.ExpiresAt = now.Add(opts.DefaultTTL)
	}
	return c, true
}

// parseSameSite maps export spellings (including Chrome's "no_restriction"
// and "unspecified") onto the three CDP values.
func parseSameSite(s string) SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return SameSiteStrict
	case "none", "no_restriction":
		return SameSiteNone
	default:
		return SameSiteLax
	}
}

func unixSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	}
	return ""
}

func boolField(obj map[string]any, key string) bool {
	b, _ := obj[key].(bool)
	return b
}

func numberField(obj map[string]any, key string) float64 {
	f, _ := obj[key].(float64)
	return f
}
