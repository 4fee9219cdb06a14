package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// DefaultHandshakeWindow is how recent a WireGuard handshake must be for the
// peer to count as connected.
const DefaultHandshakeWindow = 3 * time.Minute

// WireGuardPeers counts peers of a WireGuard device with a recent handshake.
type WireGuardPeers struct {
	Iface  string
	Window time.Duration
}

// ActiveConnections opens a wgctrl client and counts recently seen peers.
func (w WireGuardPeers) ActiveConnections(_ context.Context) (int, error) {
	c, err := wgctrl.New()
	if err != nil {
		return 0, fmt.Errorf("%w: wgctrl: %v", ErrUnavailable, err)
	}
	defer c.Close()
	dev, err := c.Device(w.Iface)
	if err != nil {
		return 0, fmt.Errorf("%w: device %s: %v", ErrUnavailable, w.Iface, err)
	}
	window := w.Window
	if window <= 0 {
		window = DefaultHandshakeWindow
	}
	return countRecentPeers(dev.Peers, time.Now(), window), nil
}

func countRecentPeers(peers []wgtypes.Peer, now time.Time, window time.Duration) int {
	n := 0
	for _, p := range peers {
		if p.LastHandshakeTime.IsZero() {
			continue
		}
		if now.Sub(p.LastHandshakeTime) <= window {
			n++
		}
	}
	return n
}

// OpenVPNStatus counts clients listed in an OpenVPN status file.
type OpenVPNStatus struct {
	Path string
}

// ActiveConnections parses the status file. A missing file means the source
// is unavailable.
func (o OpenVPNStatus) ActiveConnections(_ context.Context) (int, error) {
	f, err := os.Open(o.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer f.Close()
	return parseOpenVPNStatus(f)
}

// parseOpenVPNStatus understands status-version 1 (section headed by
// "Common Name,") as well as versions 2 and 3 (CLIENT_LIST rows, comma or
// tab separated).
func parseOpenVPNStatus(r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	n := 0
	inV1Clients := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "HEADER"):
			continue
		case strings.HasPrefix(line, "CLIENT_LIST,"), strings.HasPrefix(line, "CLIENT_LIST\t"):
			n++
		case strings.HasPrefix(line, "Common Name,"):
			inV1Clients = true
		case strings.HasPrefix(line, "ROUTING TABLE"), strings.HasPrefix(line, "GLOBAL STATS"), line == "END":
			inV1Clients = false
		case inV1Clients && line != "":
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read status: %w", err)
	}
	return n, nil
}
