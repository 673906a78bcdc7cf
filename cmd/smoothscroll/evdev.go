package main

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// evdev plumbing:
// - ioctl helpers for EVIOCGNAME / EVIOCGID / EVIOCGBIT / EVIOCGRAB
// - exclusive grab of the physical device
// - capability enumeration used to mirror the device onto uinput

// inputID matches struct input_id from <linux/input.h>.
type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// ioctl request encoding (Linux _IOC macro)
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1
	iocRead  = 2
)

func ioc(dir uint32, typ uint32, nr uint32, size uint32) uintptr {
	return uintptr((dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift))
}

func evioCGName(size int) uintptr {
	// EVIOCGNAME(len) = _IOC(_IOC_READ, 'E', 0x06, len)
	return ioc(iocRead, uint32('E'), 0x06, uint32(size))
}

func evioCGID() uintptr {
	// EVIOCGID = _IOR('E', 0x02, struct input_id)
	return ioc(iocRead, uint32('E'), 0x02, uint32(unsafe.Sizeof(inputID{})))
}

func evioCGBit(evType int, size int) uintptr {
	// EVIOCGBIT(ev, len) = _IOC(_IOC_READ, 'E', 0x20 + ev, len)
	return ioc(iocRead, uint32('E'), uint32(0x20+evType), uint32(size))
}

func evioCGrab() uintptr {
	// EVIOCGRAB = _IOW('E', 0x90, int)
	return ioc(iocWrite, uint32('E'), 0x90, uint32(unsafe.Sizeof(int32(0))))
}

func ioctlPointer(fd int, req uintptr, ptr unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(ptr))
	if errno != 0 {
		return errno
	}
	return nil
}

// openInputDevice opens an event device read-only and non-blocking; the
// dispatch loop multiplexes the raw fd with select(2), so it is not wrapped
// in an os.File (whose runtime poller would turn reads blocking again).
func openInputDevice(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("open %s: %w", path, err)
	}
	return fd, nil
}

// grabDevice takes (or releases) the exclusive grab. While grabbed, the
// kernel routes the device's events only to this process, so the desktop
// sees nothing but the synthesized output device.
func grabDevice(fd int, grab bool) error {
	var flag int32
	if grab {
		flag = 1
	}
	if err := ioctlPointer(fd, evioCGrab(), unsafe.Pointer(&flag)); err != nil {
		return fmt.Errorf("EVIOCGRAB(%d): %w", flag, err)
	}
	return nil
}

// deviceName reads the kernel's device name string.
func deviceName(fd int) (string, error) {
	var buf [256]byte
	if err := ioctlPointer(fd, evioCGName(len(buf)), unsafe.Pointer(&buf[0])); err != nil {
		return "", fmt.Errorf("EVIOCGNAME: %w", err)
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return string(buf[:]), nil
}

// deviceID reads bus/vendor/product/version.
func deviceID(fd int) (inputID, error) {
	var id inputID
	if err := ioctlPointer(fd, evioCGID(), unsafe.Pointer(&id)); err != nil {
		return inputID{}, fmt.Errorf("EVIOCGID: %w", err)
	}
	return id, nil
}

// bitSet tests one bit in an EVIOCGBIT bitmask.
func bitSet(mask []byte, bit int) bool {
	idx := bit / 8
	if idx >= len(mask) {
		return false
	}
	return mask[idx]&(1<<(uint(bit)%8)) != 0
}

// eventTypeBits reads the supported-event-type bitmask (EVIOCGBIT(0, ...)).
func eventTypeBits(fd int) ([]byte, error) {
	mask := make([]byte, (EV_MAX+7)/8+1)
	if err := ioctlPointer(fd, evioCGBit(0, len(mask)), unsafe.Pointer(&mask[0])); err != nil {
		return nil, fmt.Errorf("EVIOCGBIT(0): %w", err)
	}
	return mask, nil
}

// eventCodeBits reads the supported-code bitmask for one event type.
func eventCodeBits(fd int, evType int, maxCode int) ([]byte, error) {
	mask := make([]byte, (maxCode+7)/8+1)
	if err := ioctlPointer(fd, evioCGBit(evType, len(mask)), unsafe.Pointer(&mask[0])); err != nil {
		return nil, fmt.Errorf("EVIOCGBIT(%d): %w", evType, err)
	}
	return mask, nil
}

// deviceCaps lists the event codes the physical device advertises, per
// type. The uinput mirror registers exactly these, plus the high-resolution
// wheel axis the smoother emits on.
type deviceCaps struct {
	keys []int
	rels []int
	mscs []int
}

func queryCaps(fd int) (deviceCaps, error) {
	types, err := eventTypeBits(fd)
	if err != nil {
		return deviceCaps{}, err
	}

	var caps deviceCaps

	if bitSet(types, EV_KEY) {
		mask, err := eventCodeBits(fd, EV_KEY, KEY_MAX)
		if err != nil {
			return deviceCaps{}, err
		}
		for code := 0; code <= KEY_MAX; code++ {
			if bitSet(mask, code) {
				caps.keys = append(caps.keys, code)
			}
		}
	}

	if bitSet(types, EV_REL) {
		mask, err := eventCodeBits(fd, EV_REL, REL_MAX)
		if err != nil {
			return deviceCaps{}, err
		}
		for code := 0; code <= REL_MAX; code++ {
			if bitSet(mask, code) {
				caps.rels = append(caps.rels, code)
			}
		}
	}

	if bitSet(types, EV_MSC) {
		mask, err := eventCodeBits(fd, EV_MSC, MSC_MAX)
		if err != nil {
			return deviceCaps{}, err
		}
		for code := 0; code <= MSC_MAX; code++ {
			if bitSet(mask, code) {
				caps.mscs = append(caps.mscs, code)
			}
		}
	}

	return caps, nil
}

// hasRel reports whether the device advertises a relative axis.
func (c deviceCaps) hasRel(code int) bool {
	for _, r := range c.rels {
		if r == code {
			return true
		}
	}
	return false
}
