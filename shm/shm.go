// Package shm manages System V shared memory segments. The capture channel
// uses one segment for the channel header and descriptor table and one
// segment per ring slot for the pixel payload. Segments are identified by
// their numeric id, which is what the recorder hands to the injected
// producer through the environment.
package shm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	ErrNotAttached = errors.New("segment is not attached")
	ErrWrongSize   = errors.New("segment has the wrong size")
)

// Segment is one System V shared memory segment, either created by this
// process or attached by id.
type Segment struct {
	id    int
	size  int
	data  []byte
	owner bool
}

// Create allocates a new private segment of the given size and attaches it.
// The creating process is the owner and is responsible for removing the
// segment with Remove.
func Create(size int) (*Segment, error) {
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|unix.IPC_EXCL|0600)
	if err != nil {
		return nil, fmt.Errorf("shmget of %d bytes: %w", size, err)
	}

	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, fmt.Errorf("shmat of segment %d: %w", id, err)
	}

	s := &Segment{
		id:    id,
		size:  size,
		data:  data,
		owner: true,
	}

	return s, nil
}

// Attach maps an existing segment by id. The actual segment size is read
// back from the kernel such that the caller can validate it.
func Attach(id int) (*Segment, error) {
	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shmat of segment %d: %w", id, err)
	}

	s := &Segment{
		id:   id,
		size: len(data),
		data: data,
	}

	return s, nil
}

// ID returns the segment id.
func (s *Segment) ID() int {
	return s.id
}

// Size returns the size of the mapped segment in bytes.
func (s *Segment) Size() int {
	return s.size
}

// Bytes returns the mapped segment. The slice stays valid until Detach
// is called.
func (s *Segment) Bytes() []byte {
	return s.data
}

// Detach unmaps the segment from this process. The segment itself stays
// alive until its owner removes it.
func (s *Segment) Detach() error {
	if s.data == nil {
		return ErrNotAttached
	}

	err := unix.SysvShmDetach(s.data)
	s.data = nil

	if err != nil {
		return fmt.Errorf("shmdt of segment %d: %w", s.id, err)
	}

	return nil
}

// Remove marks the segment for destruction. The kernel destroys it once
// the last process has detached.
func (s *Segment) Remove() error {
	if _, err := unix.SysvShmCtl(s.id, unix.IPC_RMID, nil); err != nil {
		return fmt.Errorf("shmctl IPC_RMID of segment %d: %w", s.id, err)
	}

	return nil
}

// Close detaches the segment and, if this process created it, removes it.
func (s *Segment) Close() error {
	var err error

	if s.data != nil {
		err = s.Detach()
	}

	if s.owner {
		if rerr := s.Remove(); err == nil {
			err = rerr
		}
	}

	return err
}

// Stat returns the current size of the segment with the given id as the
// kernel reports it, without attaching it.
func Stat(id int) (int, error) {
	var desc unix.SysvShmDesc

	if _, err := unix.SysvShmCtl(id, unix.IPC_STAT, &desc); err != nil {
		return 0, fmt.Errorf("shmctl IPC_STAT of segment %d: %w", id, err)
	}

	return int(desc.Segsz), nil
}
