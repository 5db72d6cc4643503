package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// fieldInfo stores information about a config field for flag registration
type fieldInfo struct {
	configPath string // e.g., "server.http_port"
	flagName   string // e.g., "server-http-port"
	usage      string // from the usage struct tag
	fieldType  reflect.Type
}

// buildFlagMapping walks the Config struct recursively and builds a map
// from flag names to config paths using the koanf struct tags.
// Returns a map like: {"server-http-port": "server.http_port"}
func buildFlagMapping() (map[string]string, []fieldInfo) {
	var fields []fieldInfo
	mapping := make(map[string]string)

	walkStruct(reflect.TypeOf(Config{}), "", &fields)

	for _, field := range fields {
		mapping[field.flagName] = field.configPath
	}

	return mapping, fields
}

// walkStruct recursively walks a struct and collects scalar fields
func walkStruct(t reflect.Type, parentPath string, fields *[]fieldInfo) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// Skip unexported fields
		if !field.IsExported() {
			continue
		}

		koanfTag := field.Tag.Get("koanf")
		if koanfTag == "" || koanfTag == "-" {
			continue
		}

		// Handle squash tag (inline structs)
		if strings.Contains(koanfTag, "squash") {
			walkStruct(field.Type, parentPath, fields)
			continue
		}

		configPath := koanfTag
		if parentPath != "" {
			configPath = parentPath + "." + koanfTag
		}

		usage := field.Tag.Get("usage")
		fieldType := field.Type
		if fieldType.Kind() == reflect.Pointer {
			fieldType = fieldType.Elem()
		}

		switch fieldType.Kind() {
		case reflect.Struct:
			// Recursively walk nested structs
			walkStruct(fieldType, configPath, fields)

		case reflect.Slice, reflect.Map:
			// Skip slices and maps (too complex for command-line flags)
			continue

		default:
			if isScalarType(fieldType) {
				*fields = append(*fields, fieldInfo{
					configPath: configPath,
					flagName:   configPathToFlagName(configPath),
					usage:      usage,
					fieldType:  fieldType,
				})
			}
		}
	}
}

// isScalarType returns true if the type is a simple scalar (int, string, bool)
func isScalarType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.String, reflect.Bool,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// configPathToFlagName converts a config path to a flag name
// Examples:
//   - "server.http_port" -> "server-http-port"
//   - "primary_endpoint" -> "primary-endpoint"
func configPathToFlagName(configPath string) string {
	flagName := strings.ReplaceAll(configPath, ".", "-")
	flagName = strings.ReplaceAll(flagName, "_", "-")
	return flagName
}

var durationType = reflect.TypeOf(time.Duration(0))

// RegisterFlags registers command-line flags for all scalar config fields
func RegisterFlags(flagSet *pflag.FlagSet) {
	_, fields := buildFlagMapping()

	for _, field := range fields {
		registerFlag(flagSet, field)
	}
}

// registerFlag registers a single flag based on its field info
func registerFlag(flagSet *pflag.FlagSet, field fieldInfo) {
	// Avoid duplicate registration
	if flagSet.Lookup(field.flagName) != nil {
		return
	}

	// time.Duration is an int64 kind but wants its own flag type
	if field.fieldType == durationType {
		flagSet.Duration(field.flagName, 0, field.usage)
		return
	}

	switch field.fieldType.Kind() {
	case reflect.String:
		flagSet.String(field.flagName, "", field.usage)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		flagSet.Int(field.flagName, 0, field.usage)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		flagSet.Uint(field.flagName, 0, field.usage)

	case reflect.Bool:
		flagSet.Bool(field.flagName, false, field.usage)

	case reflect.Float32, reflect.Float64:
		flagSet.Float64(field.flagName, 0.0, field.usage)
	}
}

// GetFlagMapping returns the mapping from flag names to config paths
// This is useful for the loader to know how to map flags to config keys
func GetFlagMapping() map[string]string {
	mapping, _ := buildFlagMapping()
	return mapping
}
