//
//
package admin

import (
	"net"
	"time"

	"github.com/radio-control/commandd/internal/engine"
	"github.com/radio-control/commandd/internal/server"
)

// CommandServer is the view of the command server needed for status reports.
type CommandServer interface {
	State() server.State
	Addr() net.Addr
	Counters() server.Counters
}

// Engine is the view of the instruction engine needed for status reports.
type Engine interface {
	Stats() engine.Stats
	Registry() *engine.Registry
}

// Catalog lists the instruction names that can currently be resolved.
type Catalog interface {
	Available() ([]string, error)
}

// Status is a point-in-time report of the daemon.
type Status struct {
	State     string          `json:"state"`
	Addr      string          `json:"addr,omitempty"`
	Counters  server.Counters `json:"counters"`
	Engine    engine.Stats    `json:"engine"`
	Handlers  []string        `json:"handlers"`
	Available []string        `json:"available,omitempty"`
	// CatalogError is set when Available could not be listed.
	CatalogError string  `json:"catalogError,omitempty"`
	UptimeSec    float64 `json:"uptimeSec"`
}

// Reporter builds Status snapshots. It backs both GET /status and the
// status instruction.
type Reporter struct {
	server  CommandServer
	engine  Engine
	catalog Catalog
	started time.Time
}

// NewReporter creates a reporter over the command server and engine. catalog
// may be nil.
func NewReporter(s CommandServer, e Engine, catalog Catalog) *Reporter {
	return &Reporter{server: s, engine: e, catalog: catalog, started: time.Now()}
}

// Snapshot returns the current status.
func (r *Reporter) Snapshot() Status {
	st := Status{
		State:     r.server.State().String(),
		Counters:  r.server.Counters(),
		Engine:    r.engine.Stats(),
		Handlers:  r.engine.Registry().Names(),
		UptimeSec: time.Since(r.started).Seconds(),
	}
	if r.catalog != nil {
		if names, err := r.catalog.Available(); err != nil {
			st.CatalogError = err.Error()
		} else {
			st.Available = names
		}
	}
	if addr := r.server.Addr(); addr != nil {
		st.Addr = addr.String()
	}
	return st
}

// Report adapts Snapshot to engine.Env.Status.
func (r *Reporter) Report() any {
	return r.Snapshot()
}
