package tapdev

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl issues a raw ioctl(2) against fd with an ifreq-shaped argument.
func ioctl(fd uintptr, cmd uintptr, arg *byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, cmd, uintptr(unsafe.Pointer(arg)))
	if errno != 0 {
		return errno
	}
	return nil
}
