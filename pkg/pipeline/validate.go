package pipeline

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the validation engine shared by every processor.
var validate = validator.New()

const msgRequired = "is required"

// validate applies defaults and formats, then checks every declared input
// in one pass. It returns the per-field messages; empty means valid.
func (p *Processor) validate() map[string]string {
	errs := map[string]string{}
	rules := map[string]any{}

	for name, in := range p.Definition.Inputs {
		value, present := p.Params[name]
		present = present && value != nil
		if !present {
			if def, ok := in.DefaultValue(p.data); ok {
				p.Params[name] = def
				value, present = def, true
			}
		}
		if present && in.Format != nil {
			coerced, err := in.Format(value)
			if err != nil {
				errs[name] = err.Error()
				continue
			}
			p.Params[name] = coerced
			value = coerced
		}
		if !present {
			if in.Required {
				errs[name] = msgRequired
			}
			continue
		}
		if rule := in.Rule(); rule != "" {
			rules[name] = rule
		}
		if in.Check != nil {
			if err := in.Check(value, p.data); err != nil {
				errs[name] = err.Error()
			}
		}
	}

	for field, err := range validate.ValidateMap(p.Params, rules) {
		if _, seen := errs[field]; seen {
			continue
		}
		errs[field] = describe(err)
	}
	return errs
}

func describe(raw any) string {
	err, ok := raw.(error)
	if !ok {
		return fmt.Sprint(raw)
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return err.Error()
	}
	fe := fields[0]
	switch {
	case fe.Tag() == "required":
		return msgRequired
	case fe.Param() != "":
		return fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param())
	default:
		return "must satisfy " + fe.Tag()
	}
}
