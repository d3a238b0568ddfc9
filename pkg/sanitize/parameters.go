package sanitize

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SanitizeParameters validates named query parameters: count, name shape,
// string length, and embedded statement patterns. Nested lists and maps are
// serialized and held to the same length ceiling. Parameters are visited in
// sorted name order so the first reported violation is deterministic.
func (s *Sanitizer) SanitizeParameters(parameters map[string]any) (bool, string) {
	if len(parameters) == 0 {
		return true, ""
	}

	if len(parameters) > s.cfg.MaxParameters {
		return false, fmt.Sprintf("parameter count %d exceeds maximum %d", len(parameters), s.cfg.MaxParameters)
	}

	names := make([]string, 0, len(parameters))
	for name := range parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !paramNameRe.MatchString(name) {
			return false, fmt.Sprintf("invalid parameter name %q", name)
		}
		if ok, reason := s.checkParameterValue(name, parameters[name]); !ok {
			return false, reason
		}
	}

	return true, ""
}

func (s *Sanitizer) checkParameterValue(name string, value any) (bool, string) {
	switch v := value.(type) {
	case nil, bool, int, int32, int64, float32, float64, json.Number:
		return true, ""

	case string:
		if len(v) > s.cfg.MaxParameterLength {
			return false, fmt.Sprintf("parameter %q length %d exceeds maximum %d", name, len(v), s.cfg.MaxParameterLength)
		}
		for _, p := range paramValuePatterns {
			if p.re.MatchString(v) {
				return false, fmt.Sprintf("parameter %q contains %s", name, p.reason)
			}
		}
		return true, ""

	default:
		// Lists and maps: hold the serialized form to the same ceiling.
		serialized, err := json.Marshal(value)
		if err != nil {
			return false, fmt.Sprintf("parameter %q is not serializable", name)
		}
		if len(serialized) > s.cfg.MaxParameterLength {
			return false, fmt.Sprintf("parameter %q serialized length %d exceeds maximum %d", name, len(serialized), s.cfg.MaxParameterLength)
		}
		return true, ""
	}
}
