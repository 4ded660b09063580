//go:build linux

package connections

import "golang.org/x/sys/unix"

func bindToDevice(fd uintptr, ifname string) error {
	return unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, ifname)
}
