//go:build linux

package collect

import (
	"fmt"
	"runtime"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"

	"grimm.is/tsim/internal/routing"
)

// NetlinkRoutes lists v4 and v6 routes of the current namespace via
// netlink, resolving link indexes to device names.
type NetlinkRoutes struct{}

// Routes implements RouteLister.
func (NetlinkRoutes) Routes() ([]routing.Entry, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	names := make(map[int]string, len(links))
	for _, l := range links {
		attrs := l.Attrs()
		names[attrs.Index] = attrs.Name
	}

	var out []routing.Entry
	for _, family := range []int{unix.AF_INET, unix.AF_INET6} {
		rts, err := netlink.RouteList(nil, family)
		if err != nil {
			return nil, fmt.Errorf("list routes (family %d): %w", family, err)
		}
		for _, rt := range rts {
			dev := names[rt.LinkIndex]
			if dev == "" {
				continue
			}
			dst := "default"
			if rt.Dst != nil {
				dst = rt.Dst.String()
			}
			out = append(out, routing.Entry{Destination: dst, Device: dev})
		}
	}
	return out, nil
}

// DefaultRouteLister returns the netlink-backed route source.
func DefaultRouteLister() RouteLister { return NetlinkRoutes{} }

// inNetns runs fn inside a named network namespace. The calling goroutine
// stays locked to its OS thread for the duration so no other goroutine
// observes the switched namespace.
func inNetns(name string, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	orig, err := netns.Get()
	if err != nil {
		return fmt.Errorf("get current netns: %w", err)
	}
	defer orig.Close()

	target, err := netns.GetFromName(name)
	if err != nil {
		return fmt.Errorf("open netns %s: %w", name, err)
	}
	defer target.Close()

	if err := netns.Set(target); err != nil {
		return fmt.Errorf("enter netns %s: %w", name, err)
	}
	defer netns.Set(orig)

	return fn()
}
