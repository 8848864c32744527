package cfg

import (
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// DecodeHook adapts string-typed viper values into EVFS's custom scalar
// config types, the way the teacher's cfg.hookFunc adapts Octal and
// LogSeverity.
func DecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String {
			return data, nil
		}
		if to != reflect.TypeOf(ResolvedPath("")) {
			return data, nil
		}
		var p ResolvedPath
		if err := p.UnmarshalText([]byte(data.(string))); err != nil {
			return nil, err
		}
		return p, nil
	}
}
