package rules

import "fmt"

// ToString converts a deep-forced value to a Go string, failing with a
// typed diagnostic on any other dynamic type.
func ToString(v Value) (string, error) {
	s, ok := v.(VString)
	if !ok {
		return "", fmt.Errorf("rules: expected string, got %s", typeName(v))
	}

	return string(s), nil
}

// ToBool converts a deep-forced value to a Go bool.
func ToBool(v Value) (bool, error) {
	b, ok := v.(VBool)
	if !ok {
		return false, fmt.Errorf("rules: expected bool, got %s", typeName(v))
	}

	return bool(b), nil
}

// ToStringList converts a deep-forced VList of strings to a Go []string,
// preserving declaration order.
func ToStringList(v Value) ([]string, error) {
	list, ok := v.(*VList)
	if !ok {
		return nil, fmt.Errorf("rules: expected list, got %s", typeName(v))
	}

	out := make([]string, 0, len(list.Elems))

	for _, t := range list.Elems {
		elemVal, err := t.Force()
		if err != nil {
			return nil, err
		}

		s, err := ToString(elemVal)
		if err != nil {
			return nil, err
		}

		out = append(out, s)
	}

	return out, nil
}

// ToOptionalString converts null to (nil, nil) and anything else via ToString.
func ToOptionalString(v Value) (*string, error) {
	if _, ok := v.(VNull); ok {
		return nil, nil
	}

	s, err := ToString(v)
	if err != nil {
		return nil, err
	}

	return &s, nil
}
