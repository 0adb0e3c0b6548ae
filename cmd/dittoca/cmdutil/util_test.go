package cmdutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/dittoca/pkg/apiclient"
)

func withFlags(t *testing.T, f GlobalFlags) {
	t.Helper()
	saved := *Flags
	*Flags = f
	t.Cleanup(func() { *Flags = saved })
}

func TestServerURL(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		withFlags(t, GlobalFlags{ServerURL: "http://ioc1:9000/"})
		t.Setenv(EnvServerURL, "http://other:1")
		assert.Equal(t, "http://ioc1:9000", ServerURL())
	})

	t.Run("environment", func(t *testing.T) {
		withFlags(t, GlobalFlags{})
		t.Setenv(EnvServerURL, "http://ioc2:8081")
		assert.Equal(t, "http://ioc2:8081", ServerURL())
	})

	t.Run("config file port", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("api:\n  port: 9090\n"), 0644); err != nil {
			t.Fatal(err)
		}
		withFlags(t, GlobalFlags{ConfigFile: path})
		t.Setenv(EnvServerURL, "")
		assert.Equal(t, "http://localhost:9090", ServerURL())
	})
}

func TestEmptyOr(t *testing.T) {
	assert.Equal(t, "-", EmptyOr("", "-"))
	assert.Equal(t, "degF", EmptyOr("degF", "-"))
}

func TestUnreachable(t *testing.T) {
	apiErr := &apiclient.APIError{StatusCode: 404}
	assert.Same(t, apiErr, Unreachable(apiErr))

	err := Unreachable(errors.New("connection refused"))
	assert.Contains(t, err.Error(), "Is the server running?")
}
