package host

import (
	"context"
	"net"
	"strings"
)

// Links queries network interfaces through the standard library.
type Links struct{}

// ExistsAndUp reports whether the named interface exists with the up flag set.
// A missing interface is reported as false, not as an error.
func (Links) ExistsAndUp(name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return false, nil
	}
	return iface.Flags&net.FlagUp != 0, nil
}

// DefaultRouteDevice returns the device of the IPv4 default route, or "" when
// none is found.
func DefaultRouteDevice(ctx context.Context, r Runner) string {
	out, err := runnerOrDefault(r).Run(ctx, "ip", "-4", "route", "show", "default")
	if err != nil {
		return ""
	}
	return parseRouteDevice(string(out))
}

func parseRouteDevice(out string) string {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		for i := 0; i+1 < len(fields); i++ {
			if fields[i] == "dev" {
				return fields[i+1]
			}
		}
	}
	return ""
}
