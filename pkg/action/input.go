package action

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Input declares one parameter of an action.
type Input struct {
	Required bool
	// Default is applied when the parameter is absent. DefaultFunc wins
	// over Default when both are set.
	Default     any
	DefaultFunc func(data *Data) any
	Format      Format
	// Validator is a go-playground/validator tag, e.g. "email" or "min=3".
	Validator string
	// Check runs alongside Validator; a non-nil error becomes the field message.
	Check func(value any, data *Data) error
}

// DefaultValue returns the default for the input and whether one exists.
func (in Input) DefaultValue(data *Data) (any, bool) {
	if in.DefaultFunc != nil {
		return in.DefaultFunc(data), true
	}
	if in.Default != nil {
		return in.Default, true
	}
	return nil, false
}

// Rule returns the validator tag checked against a present parameter.
// Presence of required inputs is checked by the pipeline, so a supplied
// zero value such as 0, false or "" still satisfies Required.
func (in Input) Rule() string {
	rule := strings.TrimSpace(in.Validator)
	if rule == "" || in.Required {
		return rule
	}
	return "omitempty," + rule
}

// Format coerces a raw parameter value.
type Format func(value any) (any, error)

// Builtin formats.
var (
	FormatInteger Format = toInteger
	FormatFloat   Format = toFloat
	FormatString  Format = toString
)

// FormatByName maps "integer", "float" and "string" to the builtin formats.
func FormatByName(name string) (Format, bool) {
	switch strings.ToLower(name) {
	case "integer", "int":
		return FormatInteger, true
	case "float", "number":
		return FormatFloat, true
	case "string":
		return FormatString, true
	default:
		return nil, false
	}
}

func toInteger(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%v is not a number", v)
		}
		return int(v), nil
	case float32:
		return int(v), nil
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int(f), nil
		}
		return nil, fmt.Errorf("%q is not a number", v)
	default:
		return nil, fmt.Errorf("%v is not a number", value)
	}
}

func toFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%v is not a number", v)
		}
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			return nil, fmt.Errorf("%q is not a number", v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%v is not a number", value)
	}
}

func toString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return fmt.Sprint(value), nil
	}
}
