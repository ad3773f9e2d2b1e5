package driver

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ConnectOptions configures the browser session attach.
type ConnectOptions struct {
	DevtoolsURL string
	Headless    bool
	NavTimeout  time.Duration
}

// Connector attaches to a browser session and returns a live PageDriver.
type Connector func(ctx context.Context, opts ConnectOptions) (PageDriver, error)

var connector Connector

// RegisterConnector installs the PageDriver implementation, typically from a
// driver package's init. Only one implementation may register.
func RegisterConnector(c Connector) {
	if connector != nil {
		panic("driver: connector already registered")
	}
	connector = c
}

// Connect attaches to the browser using the registered connector.
func Connect(ctx context.Context, opts ConnectOptions) (PageDriver, error) {
	if connector == nil {
		return nil, eris.New("driver: no page driver registered; build with a driver implementation")
	}
	return connector(ctx, opts)
}
