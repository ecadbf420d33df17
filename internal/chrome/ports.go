package chrome

import (
	"fmt"
	"net"
)

// FreePort asks the kernel for an ephemeral loopback port and releases it
// immediately. The small window between release and the browser binding it
// is acceptable for local single-user use.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:0", RemoteDebuggingAddress))
	if err != nil {
		return 0, fmt.Errorf("allocate debug port: %w", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port, nil
}
