package security

import (
	"fmt"
	"net/url"
	"strings"
)

// injectionPatterns are substrings rejected anywhere inside string
// parameter values: path traversal sequences, shell metacharacters and
// script-injection markers.
var injectionPatterns = []string{
	"..",
	`\\`,
	"//",
	";",
	"|",
	"&",
	"<script",
	"javascript:",
}

// ScanParameters walks a parameter map, including nested objects and
// arrays, and returns a violation message per matched pattern.
func ScanParameters(params map[string]interface{}) []string {
	violations := []string{}
	for key, value := range params {
		violations = append(violations, scanValue(key, value)...)
	}
	return violations
}

// urlInjectionPatterns is the subset still rejected inside URL-typed
// parameters. Every well-formed URL carries "//" and query strings
// legitimately carry "&" and ";", so only the script markers apply.
var urlInjectionPatterns = []string{
	`\\`,
	"<script",
	"javascript:",
}

// ScanURLParameter checks a parameter declared with the URL format: the
// value must parse as an absolute http(s) URL and must not carry script
// markers. Non-string values are left to schema validation.
func ScanURLParameter(name string, value interface{}) []string {
	s, ok := value.(string)
	if !ok {
		return nil
	}

	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []string{fmt.Sprintf("parameter %q is not an absolute http(s) URL", name)}
	}

	violations := []string{}
	lower := strings.ToLower(s)
	for _, pattern := range urlInjectionPatterns {
		if strings.Contains(lower, pattern) {
			violations = append(violations, fmt.Sprintf("parameter %q contains disallowed sequence %q", name, pattern))
		}
	}
	return violations
}

func scanValue(path string, value interface{}) []string {
	switch v := value.(type) {
	case string:
		violations := []string{}
		lower := strings.ToLower(v)
		for _, pattern := range injectionPatterns {
			if strings.Contains(lower, pattern) {
				violations = append(violations, fmt.Sprintf("parameter %q contains disallowed sequence %q", path, pattern))
			}
		}
		return violations
	case map[string]interface{}:
		violations := []string{}
		for key, nested := range v {
			violations = append(violations, scanValue(path+"."+key, nested)...)
		}
		return violations
	case []interface{}:
		violations := []string{}
		for i, item := range v {
			violations = append(violations, scanValue(fmt.Sprintf("%s[%d]", path, i), item)...)
		}
		return violations
	default:
		return nil
	}
}
