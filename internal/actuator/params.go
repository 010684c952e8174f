package actuator

import (
	"fmt"
	"strings"
)

// stringParam returns params[key] as a trimmed string. A missing key is
// reported as ok=false; a non-string value is an error.
func stringParam(params map[string]any, key string) (string, bool, error) {
	v, present := params[key]
	if !present || v == nil {
		return "", false, nil
	}
	s, isString := v.(string)
	if !isString {
		return "", false, fmt.Errorf("%w: %s must be a string", ErrInvalidParam, key)
	}
	s = strings.TrimSpace(s)
	return s, s != "", nil
}

func requireString(params map[string]any, key string) (string, error) {
	s, ok, err := stringParam(params, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	return s, nil
}

func boolParam(params map[string]any, key string) (bool, error) {
	v, present := params[key]
	if !present || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidParam, key)
	}
	return b, nil
}

// configString reads a value written by BuildConfiguration.
func configString(cfg map[string]any, key string) string {
	s, _ := cfg[key].(string) //nolint:errcheck // type assertion, zero value on mismatch
	return s
}
