// Package tapdev opens and drives a Linux tap(4) device (C1): the network
// side of the SNIC device, where RX packets come from and TX packets go.
// IOCTL command construction follows the same direction/type/nr/size
// encoding internal/driver/device/ioctl.go used for the ASIC character
// device, applied here to /dev/net/tun instead.
package tapdev

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const (
	tunDevicePath = "/dev/net/tun"

	// ifReqSize is the size of struct ifreq on Linux/amd64.
	ifReqSize = 40

	iffTap   = 0x0002
	iffNoPI  = 0x1000
	iffUp    = 0x1
	iffRunning = 0x40
)

// IOCTL command construction, mirrored from <asm/ioctl.h>.
const (
	iocNone  = 0x0
	iocWrite = 0x1
	iocRead  = 0x2

	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 13

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (size << iocSizeShift) | (typ << iocTypeShift) | (nr << iocNRShift)
}

func iow(typ, nr, size uintptr) uintptr { return ioc(iocWrite, typ, nr, size) }

var (
	// tunSetIFF configures the tun/tap device's name and flags. 'T', 202,
	// sizeof(int) per <linux/if_tun.h>.
	tunSetIFF = iow('T', 202, 4)
)

// Tap is an open tap(4) network interface.
type Tap struct {
	file *os.File
	name string
}

// Open creates (or attaches to) the tap interface named name in IFF_TAP |
// IFF_NO_PI mode and brings its link up, mirroring tap_alloc/tap_up in the
// original device.
func Open(name string) (*Tap, error) {
	file, err := os.OpenFile(tunDevicePath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tapdev: open %s: %w", tunDevicePath, err)
	}

	ifr := make([]byte, ifReqSize)
	copy(ifr[:16], name)
	flags := uint16(iffTap | iffNoPI)
	ifr[16] = byte(flags)
	ifr[17] = byte(flags >> 8)

	if err := ioctl(file.Fd(), tunSetIFF, &ifr[0]); err != nil {
		file.Close()
		return nil, fmt.Errorf("tapdev: TUNSETIFF %s: %w", name, err)
	}

	actualName := cString(ifr[:16])

	t := &Tap{file: file, name: actualName}
	if err := t.up(); err != nil {
		file.Close()
		return nil, err
	}

	return t, nil
}

// Name returns the kernel-assigned interface name.
func (t *Tap) Name() string { return t.name }

// up brings the interface administratively up via an AF_INET/SOCK_DGRAM
// control socket and SIOCSIFFLAGS, the same mechanism tap_up in the original
// device used.
func (t *Tap) up() error {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return fmt.Errorf("tapdev: control socket: %w", err)
	}
	defer unix.Close(sock)

	ifr := make([]byte, ifReqSize)
	copy(ifr[:16], t.name)

	if err := ioctl(uintptr(sock), unix.SIOCGIFFLAGS, &ifr[0]); err != nil {
		return fmt.Errorf("tapdev: SIOCGIFFLAGS %s: %w", t.name, err)
	}

	flags := uint16(ifr[16]) | uint16(ifr[17])<<8
	flags |= iffUp | iffRunning
	ifr[16] = byte(flags)
	ifr[17] = byte(flags >> 8)

	if err := ioctl(uintptr(sock), unix.SIOCSIFFLAGS, &ifr[0]); err != nil {
		return fmt.Errorf("tapdev: SIOCSIFFLAGS %s: %w", t.name, err)
	}

	return nil
}

// Close releases the tap file descriptor.
func (t *Tap) Close() error {
	return t.file.Close()
}

// Write sends one packet out the tap interface. A short write is reported as
// an error rather than silently truncating the frame.
func (t *Tap) Write(b []byte) (int, error) {
	n, err := t.file.Write(b)
	if err != nil {
		return n, fmt.Errorf("tapdev: write: %w", err)
	}
	if n != len(b) {
		return n, fmt.Errorf("tapdev: short write: wrote %d of %d bytes", n, len(b))
	}
	return n, nil
}

// PollRead waits up to timeoutMillis for the tap device to become readable.
// It returns (frameLen, nil) on data, (0, nil) on timeout with no data, and a
// non-nil error only on genuine OS failure. ctx is checked before polling:
// an already-cancelled ctx returns (0, ctx.Err()) without polling, while a
// cancellation during the poll is only seen on the next call, so the reader
// loop exits within one poll window.
func (t *Tap) PollRead(ctx context.Context, timeoutMillis int, buf []byte) (int, error) {
	fd := int(t.file.Fd())
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := unix.Poll(fds, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("tapdev: poll: %w", err)
	}
	if n == 0 || fds[0].Revents&unix.POLLIN == 0 {
		return 0, nil
	}

	nr, err := t.file.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("tapdev: read: %w", err)
	}
	return nr, nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
