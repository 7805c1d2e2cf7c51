package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfig struct {
	Foo string `yaml:"foo"`
	Bar int    `yaml:"bar"`
}

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("load", func(t *testing.T) {
		path := writeConfigFile(t, `foo: abc
bar: 5
`)

		var conf fakeConfig
		require.NoError(t, Load(path, &conf, false))
		assert.Equal(t, "abc", conf.Foo)
		assert.Equal(t, 5, conf.Bar)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		path := writeConfigFile(t, `foo: abc
unknown: field
`)

		var conf fakeConfig
		assert.Error(t, Load(path, &conf, false))
	})

	t.Run("missing file", func(t *testing.T) {
		var conf fakeConfig
		assert.Error(t, Load("/tmp/does-not-exist.yaml", &conf, false))
	})

	t.Run("expand env", func(t *testing.T) {
		t.Setenv("SWARM_TEST_FOO", "from-env")

		path := writeConfigFile(t, `foo: ${SWARM_TEST_FOO}
bar: ${SWARM_TEST_BAR:7}
`)

		var conf fakeConfig
		require.NoError(t, Load(path, &conf, true))
		assert.Equal(t, "from-env", conf.Foo)
		assert.Equal(t, 7, conf.Bar)
	})

	t.Run("env not expanded by default", func(t *testing.T) {
		t.Setenv("SWARM_TEST_FOO", "from-env")

		path := writeConfigFile(t, `foo: ${SWARM_TEST_FOO}
`)

		var conf fakeConfig
		require.NoError(t, Load(path, &conf, false))
		assert.Equal(t, "${SWARM_TEST_FOO}", conf.Foo)
	})
}
