package watcher

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Change is one decoded inotify record.
type Change struct {
	WatchID int
	Mask    uint32
	Name    string
}

// Created reports whether the entry appeared (created or moved in).
func (c Change) Created() bool {
	return c.Mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0
}

// Removed reports whether the entry disappeared (deleted or moved out).
func (c Change) Removed() bool {
	return c.Mask&(unix.IN_DELETE|unix.IN_MOVED_FROM) != 0
}

// Ignored reports whether the kernel dropped the watch itself.
func (c Change) Ignored() bool {
	return c.Mask&unix.IN_IGNORED != 0
}

// Overflow reports whether the kernel queue overflowed and records were lost.
func (c Change) Overflow() bool {
	return c.Mask&unix.IN_Q_OVERFLOW != 0
}

// DecodeRecords parses a buffer read from an inotify descriptor.
//
// Each record is struct inotify_event (wd, mask, cookie, len) followed by
// len bytes of NUL-padded name.
//
// Returns:
//   - []Change: Every complete record, in order
//   - error: ErrDecode if the buffer ends inside a record; the complete
//     records before it are still returned
func DecodeRecords(buf []byte) ([]Change, error) {
	var changes []Change

	for off := 0; off < len(buf); {
		if len(buf)-off < unix.SizeofInotifyEvent {
			return changes, fmt.Errorf("%w: %d trailing bytes at offset %d", ErrDecode, len(buf)-off, off)
		}

		hdr := buf[off : off+unix.SizeofInotifyEvent]
		wd := int32(binary.NativeEndian.Uint32(hdr[0:4])) //nolint:gosec // wd is a signed int in the kernel struct
		mask := binary.NativeEndian.Uint32(hdr[4:8])
		nameLen := int(binary.NativeEndian.Uint32(hdr[12:16]))

		start := off + unix.SizeofInotifyEvent
		end := start + nameLen
		if nameLen < 0 || end > len(buf) {
			return changes, fmt.Errorf("%w: name length %d overruns buffer at offset %d", ErrDecode, nameLen, off)
		}

		name := buf[start:end]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}

		changes = append(changes, Change{
			WatchID: int(wd),
			Mask:    mask,
			Name:    string(name),
		})
		off = end
	}

	return changes, nil
}
