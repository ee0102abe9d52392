// Package mmap maps checkpoint files read-only into memory.
//
//	m, err := mmap.Open("v00000003/index.skv")
//	if err != nil { ... }
//	defer m.Close()
//	_ = m.Advise(mmap.AccessSequential)
//	data := m.Bytes() // valid until Close
//
// Unix platforms use mmap(2) and madvise(2); Windows uses
// CreateFileMapping/MapViewOfFile and ignores access hints.
package mmap
