//go:build !linux

package connections

import "fmt"

func bindToDevice(fd uintptr, ifname string) error {
	return fmt.Errorf("binding to interface %s is only supported on linux", ifname)
}
