package share

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

// ParseHook decodes strings into T with parse. An empty string leaves the zero value,
// so optional settings can stay unset.
func ParseHook[T any](parse func(string) (T, error)) mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf((*T)(nil)).Elem()
	return func(src reflect.Type, dst reflect.Type, data interface{}) (interface{}, error) {
		if src.Kind() != reflect.String || dst != target {
			return data, nil
		}
		raw := reflect.ValueOf(data).String()
		if raw == "" {
			var zero T
			return zero, nil
		}
		return parse(raw)
	}
}

func parseLogOutput(path string) (logger.LogOutput, error) {
	return logger.NewLogOutput(path), nil
}

var baseDecodeHooks = []mapstructure.DecodeHookFunc{
	ParseHook(parseLogOutput),
	ParseHook(logger.ParseLogLevel),
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
}

// DecodeViperConfig reads the config file, if any, and env variables, then decodes
// everything into cfg, which must be a pointer. hooks run after the built-in ones
// for log output, log level, durations and comma separated lists.
func DecodeViperConfig(v *viper.Viper, cfg interface{}, hooks ...mapstructure.DecodeHookFunc) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %s", err)
		}
	}

	// values bound to env variables are only decoded once they are set explicitly
	for _, key := range v.AllKeys() {
		v.Set(key, v.Get(key))
	}

	all := append(append([]mapstructure.DecodeHookFunc{}, baseDecodeHooks...), hooks...)
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(all...))); err != nil {
		return fmt.Errorf("error parsing config file: %s", err)
	}
	return nil
}
