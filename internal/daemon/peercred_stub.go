//go:build !linux

package daemon

import (
	"errors"
	"net"
)

// peerCreds is unavailable off Linux; clients are tracked without
// credentials there.
func peerCreds(conn net.Conn) (*PeerCreds, error) {
	return nil, errors.New("peer credentials not supported on this platform")
}
