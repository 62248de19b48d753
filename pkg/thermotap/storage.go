// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Storage is the persistent-storage backend the rotator writes through
type Storage interface {
	Exists(name string) (bool, error)
	OpenAppend(name string) (LogFile, error)
}

// LogFile is one open log file
type LogFile interface {
	Write(p []byte) (int, error)
	Sync() error
	Size() (int64, error)
	Close() error
}

// DirStorage stores log files in a directory on the local filesystem
type DirStorage struct {
	Dir string
}

// NewDirStorage creates the directory if needed
func NewDirStorage(dir string) (*DirStorage, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	return &DirStorage{Dir: dir}, nil
}

// Exists reports whether name is present in the directory
func (d *DirStorage) Exists(name string) (bool, error) {
	_, err := os.Stat(filepath.Join(d.Dir, name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// OpenAppend opens name for appending, creating it if needed
func (d *DirStorage) OpenAppend(name string) (LogFile, error) {
	f, err := os.OpenFile(filepath.Join(d.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &osLogFile{f: f}, nil
}

type osLogFile struct {
	f *os.File
}

func (o *osLogFile) Write(p []byte) (int, error) { return o.f.Write(p) }
func (o *osLogFile) Sync() error                 { return o.f.Sync() }
func (o *osLogFile) Close() error                { return o.f.Close() }

func (o *osLogFile) Size() (int64, error) {
	st, err := o.f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}
