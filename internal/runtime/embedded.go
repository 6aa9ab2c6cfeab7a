package runtime

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/vectoradmin/internal/config"
)

// Connect establishes the NATS connection described by cfg. When
// cfg.Embedded is set an in-process server is started first and the
// returned cleanup shuts it down; otherwise cleanup only closes the
// client connection.
func Connect(cfg config.NATSConfig) (*nats.Conn, func(), error) {
	var srv *natsserver.Server
	url := cfg.URL

	if cfg.Embedded {
		var err error
		srv, err = natsserver.NewServer(&natsserver.Options{
			Host:   "127.0.0.1",
			Port:   -1,
			NoLog:  true,
			NoSigs: true,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create embedded nats server: %w", err)
		}
		go srv.Start()
		if !srv.ReadyForConnections(5 * time.Second) {
			srv.Shutdown()
			return nil, nil, fmt.Errorf("embedded nats server not ready")
		}
		url = srv.ClientURL()
	}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		if srv != nil {
			srv.Shutdown()
		}
		return nil, nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}

	cleanup := func() {
		nc.Close()
		if srv != nil {
			srv.Shutdown()
			srv.WaitForShutdown()
		}
	}
	return nc, cleanup, nil
}
