package daemon

import "github.com/machine-hub/server/internal/config"

// Config returns the configuration loaded by the last command run.
func (a *App) Config() *config.Config {
	return a.cfg
}

// SetArgs set some arguments on root command for tests.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}
