package config

import (
	"fmt"
	"os"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Credential holds a single secret value read either literally from the
// config file or indirectly from an environment variable. Per the
// configuration grammar, a credential value is either a plain string
// (taken literally) or the two-element tuple ('env', VAR) meaning "read
// from environment variable VAR at startup".
type Credential struct {
	Value   string
	FromEnv string
}

// String returns the resolved secret value.
func (c Credential) String() string { return c.Value }

// credentialDecodeHook resolves a raw config value (string, or a
// ['env', VAR] sequence) into a Credential at unmarshal time, so callers
// never see the tuple form.
func credentialDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(Credential{}) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return Credential{Value: v}, nil
		case []interface{}:
			if len(v) != 2 {
				return nil, fmt.Errorf("credential tuple must have exactly 2 elements, got %d", len(v))
			}
			kind, ok := v[0].(string)
			if !ok || kind != "env" {
				return nil, fmt.Errorf("credential tuple first element must be %q, got %v", "env", v[0])
			}
			varName, ok := v[1].(string)
			if !ok {
				return nil, fmt.Errorf("credential tuple second element must be a string, got %v", v[1])
			}
			val, present := os.LookupEnv(varName)
			if !present {
				return nil, fmt.Errorf("credential references environment variable %q, which is not set", varName)
			}
			return Credential{Value: val, FromEnv: varName}, nil
		case Credential:
			return v, nil
		default:
			return data, nil
		}
	}
}
