package install

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// Uninstall detaches whatever XDP program is attached to ifaceName,
// the Go equivalent of `ip link set dev <iface> xdp off`. It exists
// for `chainagent uninstall`, a process
// distinct from the one that called Install and holds no in-memory
// ChainState to Close: it identifies the program by interface name
// alone and clears IFLA_XDP_FD, same as ChainState.Close does for the
// process that is still running.
func Uninstall(ifaceName string) error {
	iface, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return &Error{Stage: StageInterfaceLookup, Detail: fmt.Errorf("%q: %w", ifaceName, err)}
	}
	if err := netlink.LinkSetXdpFd(iface, -1); err != nil {
		return &Error{Stage: StageInterfaceLookup, Detail: fmt.Errorf("detach xdp from %q: %w", ifaceName, err)}
	}
	return nil
}
