// Package configbinder decodes loosely typed configuration maps into structs.
package configbinder

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Bind decodes raw (usually a map[string]interface{} from YAML) into target,
// matching keys against `yaml` tags and converting strings to numbers and
// booleans where needed.
func Bind(raw interface{}, target interface{}) error {
	decoderConfig := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return fmt.Errorf("failed to bind properties to struct %s: %w", targetType.Name(), err)
	}
	return nil
}

// BindNamed looks up name in a section of named configurations and binds it.
func BindNamed(section map[string]interface{}, name string, target interface{}) error {
	raw, ok := section[name]
	if !ok {
		return fmt.Errorf("configuration '%s' not found", name)
	}
	return Bind(raw, target)
}
