/*
NAME
  senders.go

DESCRIPTION
  senders.go provides the destinations depacketized media is written to:
  local files, and a pool buffered sender decoupling the pipeline from slow
  writes.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Alan Noble <alan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package receiver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/pool"
)

// Sender pool buffer constants.
const (
	poolReadTimeout  = 1 * time.Second
	poolDrainTimeout = 10 * time.Millisecond
	poolMaxAlloc     = 5 << 20  // 5MiB.
	diskSpaceBuffer  = 50000000 // 50MB.
	fileTimeLayout   = "2006-01-02_15-04-05"
)

// fileSender writes to local files named by a path prefix, a time stamp and a
// count, followed by an extension.
type fileSender struct {
	file        *os.File
	multiFile   bool
	maxFileSize uint // maxFileSize is in bytes. A size of 0 means there is no size limit.
	path        string
	ext         string
	count       int
	log         logging.Logger
}

// newFileSender returns a new fileSender. Setting multi true will write a new
// file for each write to this sender.
func newFileSender(l logging.Logger, path, ext string, multiFile bool, maxFileSize uint) *fileSender {
	return &fileSender{
		path:        path,
		ext:         ext,
		log:         l,
		multiFile:   multiFile,
		maxFileSize: maxFileSize,
	}
}

// Write implements io.Writer.
func (s *fileSender) Write(d []byte) (int, error) {
	dir := filepath.Dir(s.path + "x")
	s.log.Debug("checking disk space", "dir", dir)
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, fmt.Errorf("could not read system disk space, abandoning write: %w", err)
	}
	availableSpace := stat.Bavail * uint64(stat.Bsize)
	s.log.Debug("available disk space in bytes", "availableSpace", availableSpace)
	if availableSpace < diskSpaceBuffer {
		return 0, fmt.Errorf("reached limit of disk space with a buffer of %v bytes, abandoning write", diskSpaceBuffer)
	}

	// If the write will exceed the max file size, close the file so that a new one can be created.
	if s.maxFileSize != 0 && s.file != nil {
		fileInfo, err := s.file.Stat()
		if err != nil {
			return 0, fmt.Errorf("could not read files stats: %w", err)
		}
		size := uint(fileInfo.Size())
		s.log.Debug("checked file size", "bytes", size)
		if size+uint(len(d)) > s.maxFileSize {
			s.log.Debug("new write would exceed max file size, closing existing file", "maxFileSize", s.maxFileSize)
			s.file.Close()
			s.file = nil
		}
	}

	if s.file == nil {
		fileName := fmt.Sprintf("%s%s_%04d%s", s.path, time.Now().Format(fileTimeLayout), s.count, s.ext)
		s.count++
		s.log.Debug("creating new output file", "multiFile", s.multiFile, "fileName", fileName)
		f, err := os.Create(fileName)
		if err != nil {
			return 0, fmt.Errorf("could not create file to write media to: %w", err)
		}
		s.file = f
	}

	s.log.Debug("writing to output file", "bytes", len(d))
	n, err := s.file.Write(d)
	if err != nil {
		return n, err
	}

	if s.multiFile {
		err = s.file.Close()
		s.file = nil
	}
	return n, err
}

// Close implements io.Closer.
func (s *fileSender) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// poolSender implements io.WriteCloser. Each Write is stored as one element of
// a pool buffer and written to the destination by an output routine, so the
// pipeline never waits on the destination.
type poolSender struct {
	dst    io.WriteCloser
	log    logging.Logger
	report func(sent int)

	mu       sync.Mutex
	pool     *pool.Buffer
	capacity int
	timeout  time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// newPoolSender returns a new poolSender writing to dst. The pool buffer
// holds capacity bytes, in elements of elemSize to begin with. report, if not
// nil, is called with the size of each write to dst.
func newPoolSender(dst io.WriteCloser, log logging.Logger, capacity, elemSize int, timeout time.Duration, report func(sent int)) *poolSender {
	if elemSize > capacity {
		elemSize = capacity
	}
	s := &poolSender{
		dst:      dst,
		log:      log,
		report:   report,
		pool:     pool.NewBuffer(capacity/elemSize, elemSize, timeout),
		capacity: capacity,
		timeout:  timeout,
		done:     make(chan struct{}),
	}
	// Frames, particularly H.264 key frames, can be large writes to the pool
	// buffer; let's increase its max allowable allocation.
	pool.MaxAlloc(poolMaxAlloc)
	s.wg.Add(1)
	go s.output()
	return s
}

// output starts a poolSender's data handling routine.
func (s *poolSender) output() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			s.drain()
			s.log.Info("terminating sender output routine")
			return
		default:
			s.next(poolReadTimeout)
		}
	}
}

// next writes the next element of the pool buffer to the destination,
// waiting up to timeout for one. It returns false if there was none.
func (s *poolSender) next(timeout time.Duration) bool {
	s.mu.Lock()
	pb := s.pool
	s.mu.Unlock()

	chunk, err := pb.Next(timeout)
	switch err {
	case nil:
	case pool.ErrTimeout, io.EOF:
		return false
	default:
		s.log.Error("unexpected error", "error", err.Error())
		return false
	}
	defer chunk.Close()

	n, err := s.dst.Write(chunk.Bytes())
	if err != nil {
		s.log.Warning("failed write", "error", err)
		return true
	}
	s.log.Debug("good write", "len", n)
	if s.report != nil {
		s.report(n)
	}
	return true
}

// drain writes what remains in the pool buffer.
func (s *poolSender) drain() {
	for s.next(poolDrainTimeout) {
	}
}

// Write implements io.Writer. Errors are logged rather than returned; a frame
// that cannot be buffered is dropped.
func (s *poolSender) Write(d []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.pool.Write(d)
	switch err {
	case nil:
	case pool.ErrDropped:
		s.log.Warning("pool buffer full, dropped oldest element")
	case pool.ErrTooLong:
		elemSize := len(d) * 2
		if elemSize > s.capacity {
			s.log.Warning("write too large for pool buffer, dropping", "len", len(d), "capacity", s.capacity)
			return len(d), nil
		}
		s.pool = pool.NewBuffer(s.capacity/elemSize, elemSize, s.timeout)
		s.log.Info("adjusted pool buffer element size", "new size", elemSize, "num elements", s.capacity/elemSize)
		_, err = s.pool.Write(d)
		if err != nil {
			s.log.Warning("pool buffer write error after resize", "error", err.Error())
			return len(d), nil
		}
	default:
		s.log.Warning("pool buffer write error", "error", err.Error())
		return len(d), nil
	}
	s.pool.Flush()
	return len(d), nil
}

// Close implements io.Closer. Buffered writes are sent before the
// destination is closed.
func (s *poolSender) Close() error {
	s.log.Debug("closing sender output routine")
	close(s.done)
	s.wg.Wait()
	s.log.Info("sender output routine closed")
	return s.dst.Close()
}
