package daemon_test

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/machine-hub/server/cmd/machinehub/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "machinehub.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600), "Setup: failed to write config")
	return p
}

func TestVersion(t *testing.T) {
	a, err := daemon.New()
	require.NoError(t, err)

	var out bytes.Buffer
	a.RootCmd().SetOut(&out)
	a.SetArgs("version")

	require.NoError(t, a.Run())
	assert.Equal(t, "machinehub\t"+daemon.Version+"\n", out.String())
}

func TestConfigPrecedence(t *testing.T) {
	file := writeConfig(t, `
server:
  host: 10.0.0.1
  port: 7000
static:
  dir: /srv/static
database:
  dsn: postgres://file/db
`)

	tests := map[string]struct {
		args []string
		env  map[string]string

		wantHost   string
		wantPort   int
		wantStatic string
		wantDSN    string
		wantMock   bool
	}{
		"File values": {
			args:     []string{"--config", file, "version"},
			wantHost: "10.0.0.1", wantPort: 7000, wantStatic: "/srv/static", wantDSN: "postgres://file/db",
		},
		"Flags override file": {
			args:     []string{"--config", file, "--port", "7100", "--static-dir", "/tmp/s", "--mock", "version"},
			wantHost: "10.0.0.1", wantPort: 7100, wantStatic: "/tmp/s", wantDSN: "postgres://file/db", wantMock: true,
		},
		"Env overrides file": {
			args:     []string{"--config", file, "version"},
			env:      map[string]string{"MACHINEHUB_PORT": "7200", "MACHINEHUB_DATABASE_URL": "postgres://env/db"},
			wantHost: "10.0.0.1", wantPort: 7200, wantStatic: "/srv/static", wantDSN: "postgres://env/db",
		},
		"Defaults without file": {
			args:     []string{"version"},
			wantHost: "0.0.0.0", wantPort: 9000, wantStatic: "static",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			a, err := daemon.New()
			require.NoError(t, err)
			a.RootCmd().SetOut(&bytes.Buffer{})
			a.SetArgs(tc.args...)
			require.NoError(t, a.Run())

			cfg := a.Config()
			assert.Equal(t, tc.wantHost, cfg.Server.Host)
			assert.Equal(t, tc.wantPort, cfg.Server.Port)
			assert.Equal(t, tc.wantStatic, cfg.Static.Dir)
			assert.Equal(t, tc.wantDSN, cfg.Database.DSN)
			assert.Equal(t, tc.wantMock, cfg.Mock.Enabled)
		})
	}
}

func TestInvalidConfig(t *testing.T) {
	a, err := daemon.New()
	require.NoError(t, err)
	a.SetArgs("--config", writeConfig(t, "server: [not a map"), "version")

	require.Error(t, a.Run())
	assert.False(t, a.UsageError(), "a bad config file is not a usage error")
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	a, err := daemon.New()
	require.NoError(t, err)
	a.RootCmd().SetErr(&bytes.Buffer{})
	a.RootCmd().SetOut(&bytes.Buffer{})
	a.SetArgs("--no-such-flag")

	require.Error(t, a.Run())
	assert.True(t, a.UsageError())
}

func TestMigrateRequiresDatabase(t *testing.T) {
	a, err := daemon.New()
	require.NoError(t, err)
	a.RootCmd().SetErr(&bytes.Buffer{})
	a.RootCmd().SetOut(&bytes.Buffer{})
	a.SetArgs("migrate", "up")

	require.Error(t, a.Run())
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "Setup: failed to find a free port")
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestServeAndQuit(t *testing.T) {
	port := freePort(t)

	a, err := daemon.New()
	require.NoError(t, err)
	a.SetArgs("serve", "--host", "127.0.0.1", "--port", fmt.Sprint(port), "--static-dir", t.TempDir(), "--mock")

	done := make(chan error, 1)
	go func() { done <- a.Run() }()
	a.WaitReady()

	url := fmt.Sprintf("http://127.0.0.1:%d/get_dashboard/", port)
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get(url)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "server should start listening")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	a.Quit()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after Quit")
	}
}

func TestQuitBeforeServe(t *testing.T) {
	a, err := daemon.New()
	require.NoError(t, err)
	a.SetArgs("--host", "127.0.0.1", "--port", "0", "--static-dir", t.TempDir())

	a.Quit()
	require.NoError(t, a.Run(), "serve should return as soon as it starts")
}
