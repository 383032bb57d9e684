package events

import (
	"errors"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// StartEmbedded runs an in-process NATS server bound to host:port. A port of
// -1 picks a random free port. Clients connect via ClientURL().
func StartEmbedded(host string, port int) (*server.Server, error) {
	opts := &server.Options{
		ServerName: "trinity-link",
		Host:       host,
		Port:       port,
		NoLog:      true,
		NoSigs:     true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, err
	}

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS server did not become ready")
	}
	return ns, nil
}
