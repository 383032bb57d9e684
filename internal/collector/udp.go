package collector

import (
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	q3Header    = "\xff\xff\xff\xff"
	rconPrefix  = q3Header + "rcon "
	printPrefix = q3Header + "print\n"
	rconTimeout = 3 * time.Second
	maxResponse = 65535
)

// Rcon sends remote console commands to a game server
type Rcon interface {
	RconCommand(address, password, command string) (string, error)
}

// Q3Client talks to Quake 3 servers over UDP
type Q3Client struct {
	// readWait is how long to wait for further response packets
	readWait time.Duration
}

// NewQ3Client creates a new Q3 UDP client
func NewQ3Client() *Q3Client {
	return &Q3Client{readWait: 500 * time.Millisecond}
}

// RconCommand sends an RCON command to a Q3 server and returns the response
func (c *Q3Client) RconCommand(address, password, command string) (string, error) {
	conn, err := net.DialTimeout("udp", address, rconTimeout)
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", address, err)
	}
	defer conn.Close()

	// Format: \xff\xff\xff\xffrcon <password> <command>
	request := fmt.Sprintf("%s%s %s", rconPrefix, password, command)
	conn.SetWriteDeadline(time.Now().Add(rconTimeout))
	if _, err := conn.Write([]byte(request)); err != nil {
		return "", fmt.Errorf("sending rcon command: %w", err)
	}

	// Read response (may come in multiple packets for long output)
	var response strings.Builder
	buf := make([]byte, maxResponse)
	for {
		conn.SetReadDeadline(time.Now().Add(c.readWait))
		n, err := conn.Read(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				break // No more data
			}
			if response.Len() > 0 {
				break
			}
			return "", fmt.Errorf("reading response: %w", err)
		}

		data := string(buf[:n])
		if strings.HasPrefix(data, printPrefix) {
			response.WriteString(strings.TrimPrefix(data, printPrefix))
		}
	}

	return response.String(), nil
}
