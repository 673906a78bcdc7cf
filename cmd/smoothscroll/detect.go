package main

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// detectWheelDevice scans /dev/input/event0..N for the first device that
// looks like a mouse with a vertical wheel: EV_REL with both REL_X and
// REL_WHEEL. Used when the config says `device: auto`.
func detectWheelDevice(logger *slog.Logger) (string, error) {
	for i := 0; i < maxEventDevices; i++ {
		path := fmt.Sprintf("/dev/input/event%d", i)

		fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			continue
		}

		caps, err := queryCaps(fd)
		if err != nil {
			unix.Close(fd)
			continue
		}

		if caps.hasRel(REL_X) && caps.hasRel(REL_WHEEL) {
			name, _ := deviceName(fd)
			unix.Close(fd)
			logger.Info("auto-detected wheel mouse", "path", path, "name", name)
			return path, nil
		}

		unix.Close(fd)
	}

	return "", fmt.Errorf("no device with REL_X and REL_WHEEL found under /dev/input (checked event0..event%d)", maxEventDevices-1)
}
