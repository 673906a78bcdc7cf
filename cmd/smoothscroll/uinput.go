package main

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// uinput ioctls and device setup (from <linux/uinput.h>). The virtual
// device mirrors the physical mouse's capability bits so every passthrough
// event stays valid, and additionally registers REL_WHEEL_HI_RES for the
// smoother's synthesized increments.

const (
	uinputMaxNameSize = 80

	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502

	uiSetEvBit  = 0x40045564
	uiSetKeyBit = 0x40045565
	uiSetRelBit = 0x40045566
	uiSetMscBit = 0x40045568

	busUSB = 0x03
)

// uinputUserDev matches struct uinput_user_dev.
type uinputUserDev struct {
	Name         [uinputMaxNameSize]byte
	ID           inputID
	FFEffectsMax uint32
	AbsMax       [64]int32
	AbsMin       [64]int32
	AbsFuzz      [64]int32
	AbsFlat      [64]int32
}

func ioctlInt(fd int, req uintptr, value int) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(value))
	if errno != 0 {
		return errno
	}
	return nil
}

// createOutputDevice opens /dev/uinput and creates the virtual device.
// caps are the physical device's capabilities; identity comes from config.
func createOutputDevice(name string, vendor, product, version uint16, caps deviceCaps) (int, error) {
	fd, err := unix.Open("/dev/uinput", unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("open /dev/uinput: %w", err)
	}

	fail := func(err error) (int, error) {
		unix.Close(fd)
		return -1, err
	}

	if len(caps.keys) > 0 {
		if err := ioctlInt(fd, uiSetEvBit, EV_KEY); err != nil {
			return fail(fmt.Errorf("UI_SET_EVBIT EV_KEY: %w", err))
		}
		for _, code := range caps.keys {
			if err := ioctlInt(fd, uiSetKeyBit, code); err != nil {
				return fail(fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err))
			}
		}
	}

	if err := ioctlInt(fd, uiSetEvBit, EV_REL); err != nil {
		return fail(fmt.Errorf("UI_SET_EVBIT EV_REL: %w", err))
	}
	rels := caps.rels
	if !caps.hasRel(REL_WHEEL_HI_RES) {
		rels = append(append([]int(nil), rels...), REL_WHEEL_HI_RES)
	}
	for _, code := range rels {
		if err := ioctlInt(fd, uiSetRelBit, code); err != nil {
			return fail(fmt.Errorf("UI_SET_RELBIT %d: %w", code, err))
		}
	}

	if len(caps.mscs) > 0 {
		if err := ioctlInt(fd, uiSetEvBit, EV_MSC); err != nil {
			return fail(fmt.Errorf("UI_SET_EVBIT EV_MSC: %w", err))
		}
		for _, code := range caps.mscs {
			if err := ioctlInt(fd, uiSetMscBit, code); err != nil {
				return fail(fmt.Errorf("UI_SET_MSCBIT %d: %w", code, err))
			}
		}
	}

	var dev uinputUserDev
	copy(dev.Name[:uinputMaxNameSize-1], name)
	dev.ID = inputID{Bustype: busUSB, Vendor: vendor, Product: product, Version: version}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &dev); err != nil {
		return fail(fmt.Errorf("encode uinput_user_dev: %w", err))
	}
	if _, err := unix.Write(fd, buf.Bytes()); err != nil {
		return fail(fmt.Errorf("write uinput_user_dev: %w", err))
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uiDevCreate, 0); errno != 0 {
		return fail(fmt.Errorf("UI_DEV_CREATE: %w", errno))
	}

	return fd, nil
}

// destroyOutputDevice tears the virtual device down. Errors are returned so
// the caller can log them; teardown continues regardless.
func destroyOutputDevice(fd int) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uiDevDestroy, 0)
	closeErr := unix.Close(fd)
	if errno != 0 {
		return fmt.Errorf("UI_DEV_DESTROY: %w", errno)
	}
	if closeErr != nil {
		return fmt.Errorf("close /dev/uinput: %w", closeErr)
	}
	return nil
}

// writeEvent emits one event on the virtual device.
func writeEvent(fd int, ev inputEvent) error {
	if _, err := unix.Write(fd, encodeInputEvent(ev)); err != nil {
		return fmt.Errorf("write output event: %w", err)
	}
	return nil
}
