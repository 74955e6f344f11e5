package llamaproc

import "modeld/pkg/types"

// Spec pairs an installation handle with a config. It is the unit the
// switcher is written against; Start produces a Context, and Accept
// decides whether an already-running context can satisfy a new Spec.
type Spec struct {
	Install *Installation
	Config  types.ServerConfig
}

// Accept reports whether a server running this Spec's config can satisfy other.
func (s Spec) Accept(other Spec) bool {
	return s.Config.Accept(other.Config)
}

// Start augments the raw config the way the switcher requires — forcing
// host/port to auto-bind values, and defaulting GPU layers to "all" when
// the installation reports CUDA and the caller left GPULayers unset — then
// launches a Supervisor and waits for it to become ready.
func (s Spec) Start() (*Context, error) {
	cfg := s.Config
	cfg.Host = types.DefaultHost
	cfg.Port = 0
	if cfg.GPULayers == nil {
		if hasCUDA, err := s.Install.HasCUDA(); err == nil && hasCUDA {
			cfg = cfg.WithGPULayers(999)
		}
	}
	sup := NewSupervisor(s.Install, cfg)
	if err := sup.Start(); err != nil {
		return nil, err
	}
	return &Context{
		supervisor:     sup,
		client:         NewCompletionClient(sup.BaseURL()),
		concurrencyCap: 1,
	}, nil
}

// Context is a runtime handle on a started server: base URL, bound HTTP
// client, and a concurrency limit. Close both stops the process and
// releases client resources.
type Context struct {
	supervisor     *Supervisor
	client         CompletionClient
	concurrencyCap int
}

// BaseURL returns http://localhost:<port> for the running server.
func (c *Context) BaseURL() string { return c.supervisor.BaseURL() }

// Client returns the bound completions client.
func (c *Context) Client() CompletionClient { return c.client }

// ConcurrencyLimit returns the configured concurrency cap (default 1).
func (c *Context) ConcurrencyLimit() int { return c.concurrencyCap }

// Port returns the bound port.
func (c *Context) Port() int { return c.supervisor.Port() }

// Close stops the process. force=true escalates straight to SIGKILL.
func (c *Context) Close(force bool) error {
	err := c.supervisor.Stop(force)
	if hc, ok := c.client.(*httpCompletionClient); ok {
		hc.client.CloseIdleConnections()
	}
	return err
}
