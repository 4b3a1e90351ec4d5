package fs

import (
	"os"
	"sync"
)

// FaultyFS is a FileSystem wrapper that injects errors into file I/O.
// The zero value with only FS set behaves like the wrapped file system.
type FaultyFS struct {
	FS FileSystem

	mu sync.Mutex
	// Err is returned once armed (see FailWritesAfter / FailReads).
	Err error
	// failAfterBytes fails writes once this many bytes have been written
	// across all files. -1 disables.
	failAfterBytes int64
	failReads      bool
	written        int64
}

// NewFaultyFS creates a FaultyFS wrapping the provided FS (or Default if nil).
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{FS: fsys, failAfterBytes: -1}
}

// FailWritesAfter arms the FS to fail any write once n total bytes have been
// written. n == 0 fails the next write.
func (f *FaultyFS) FailWritesAfter(n int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAfterBytes = n
	f.Err = err
}

// FailReads arms the FS to fail all reads.
func (f *FaultyFS) FailReads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads = true
	f.Err = err
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f}, nil
}

func (f *FaultyFS) Remove(name string) error              { return f.FS.Remove(name) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

func (f *FaultyFS) checkWrite(n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfterBytes >= 0 && f.written >= f.failAfterBytes {
		return f.Err
	}
	f.written += int64(n)
	return nil
}

func (f *FaultyFS) checkRead() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return f.Err
	}
	return nil
}

type faultyFile struct {
	File
	fs *FaultyFS
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if err := f.fs.checkWrite(len(p)); err != nil {
		return 0, err
	}
	return f.File.Write(p)
}

func (f *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if err := f.fs.checkWrite(len(p)); err != nil {
		return 0, err
	}
	return f.File.WriteAt(p, off)
}

func (f *faultyFile) Read(p []byte) (int, error) {
	if err := f.fs.checkRead(); err != nil {
		return 0, err
	}
	return f.File.Read(p)
}

func (f *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	if err := f.fs.checkRead(); err != nil {
		return 0, err
	}
	return f.File.ReadAt(p, off)
}
