//go:build linux

package input

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// EvdevSource reads key and button events from /dev/input on Linux.
type EvdevSource struct {
	BaseSource
	codes  map[uint16]KeyID
	logger *slog.Logger
}

func newPlatformSource(o sourceOptions) Source {
	return &EvdevSource{codes: evdevCodes, logger: o.logger}
}

// Available checks if we can read at least one input device.
func (e *EvdevSource) Available() (bool, string) {
	devices, err := findInputDevices()
	if err != nil {
		return false, fmt.Sprintf("cannot find input devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard or mouse devices found"
	}
	for _, dev := range devices {
		fd, err := unix.Open(dev, unix.O_RDONLY|unix.O_CLOEXEC, 0)
		if err == nil {
			unix.Close(fd)
			return true, fmt.Sprintf("found input device: %s", dev)
		}
	}
	return false, "cannot read input devices (need to be in 'input' group or run as root)"
}

// findInputDevices finds /dev/input event nodes for keyboards and mice.
func findInputDevices() ([]string, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseInputDevices(f), nil
}

// parseInputDevices reads the /proc/bus/input/devices format. A device
// qualifies when its handlers include kbd or mouse alongside an event node.
func parseInputDevices(r io.Reader) []string {
	var devices []string
	var handler string
	wanted := false

	flush := func() {
		if wanted && handler != "" {
			devices = append(devices, handler)
		}
		handler = ""
		wanted = false
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		if !strings.HasPrefix(line, "H: Handlers=") {
			continue
		}
		for _, part := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
			switch {
			case strings.HasPrefix(part, "event"):
				handler = "/dev/input/" + part
			case part == "kbd" || strings.HasPrefix(part, "mouse"):
				wanted = true
			}
		}
	}
	flush()
	return devices
}

// Start opens every readable device and begins capture.
func (e *EvdevSource) Start(sink chan<- Event) error {
	devices, err := findInputDevices()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	if len(devices) == 0 {
		return ErrNotAvailable
	}

	var fds []int
	var firstErr error
	for _, dev := range devices {
		fd, err := unix.Open(dev, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			if firstErr == nil {
				firstErr = openError(dev, err)
			}
			continue
		}
		fds = append(fds, fd)
	}
	if len(fds) == 0 {
		return firstErr
	}

	stop, err := e.begin()
	if err != nil {
		closeAll(fds)
		return err
	}

	e.logger.Info("input capture started", "devices", len(fds))
	go e.readLoop(fds, sink, stop)
	return nil
}

func openError(dev string, err error) error {
	if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
		return wrapPermission(dev, err)
	}
	return fmt.Errorf("open %s: %w", dev, err)
}

const (
	evKey = 0x01

	keyUp     = 0
	keyDown   = 1
	keyRepeat = 2

	pollTimeoutMs = 100
)

// eventSize matches struct input_event: a timeval followed by type, code, value.
var eventSize = int(unsafe.Sizeof(unix.Timeval{})) + 8

func (e *EvdevSource) readLoop(fds []int, sink chan<- Event, stop <-chan struct{}) {
	defer closeAll(fds)

	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	buf := make([]byte, eventSize*64)
	open := len(pfds)

	for {
		select {
		case <-stop:
			e.finish(nil)
			return
		default:
		}

		n, err := unix.Poll(pfds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			e.finish(fmt.Errorf("poll input devices: %w", err))
			return
		}
		if n == 0 {
			continue
		}

		for i := range pfds {
			p := &pfds[i]
			if p.Fd < 0 || p.Revents == 0 {
				continue
			}
			if p.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				e.logger.Warn("input device disconnected", "fd", p.Fd)
				p.Fd = -1
				open--
				continue
			}

			nr, err := unix.Read(int(p.Fd), buf)
			if err != nil {
				if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
					continue
				}
				e.logger.Warn("input device read failed", "fd", p.Fd, "error", err)
				p.Fd = -1
				open--
				continue
			}

			for off := 0; off+eventSize <= nr; off += eventSize {
				ev, ok := e.decode(buf[off : off+eventSize])
				if !ok {
					continue
				}
				if !emit(sink, stop, ev) {
					e.finish(nil)
					return
				}
			}
		}

		if open == 0 {
			e.finish(ErrDeviceLost)
			return
		}
	}
}

// decode translates one raw input_event. Repeats and unmapped codes are dropped.
func (e *EvdevSource) decode(raw []byte) (Event, bool) {
	base := eventSize - 8
	typ := binary.NativeEndian.Uint16(raw[base : base+2])
	code := binary.NativeEndian.Uint16(raw[base+2 : base+4])
	value := int32(binary.NativeEndian.Uint32(raw[base+4 : base+8]))

	if typ != evKey {
		return Event{}, false
	}
	key, ok := e.codes[code]
	if !ok {
		return Event{}, false
	}

	switch value {
	case keyDown:
		return Event{Kind: Pressed, Key: key, Time: time.Now()}, true
	case keyUp:
		return Event{Kind: Released, Key: key, Time: time.Now()}, true
	default:
		return Event{}, false
	}
}

// Stop stops capture.
func (e *EvdevSource) Stop() error {
	return e.halt()
}

func closeAll(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}
