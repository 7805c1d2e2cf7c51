package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load parses the YAML config file at the given path into conf.
//
// Unknown fields are rejected to catch misspelt configuration early. If
// expandEnv is set, references to ${VAR} or $VAR in the file are replaced
// with the corresponding environment variable. A default can be given using
// form ${VAR:default}.
func Load(path string, conf interface{}, expandEnv bool) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %s: %w", path, err)
	}

	if expandEnv {
		buf = expandEnvVars(buf)
	}

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)

	if err := dec.Decode(conf); err != nil {
		return fmt.Errorf("parse config: %s: %w", path, err)
	}

	return nil
}

func expandEnvVars(b []byte) []byte {
	return []byte(os.Expand(string(b), func(name string) string {
		name, defaultValue, _ := strings.Cut(name, ":")
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return defaultValue
	}))
}
