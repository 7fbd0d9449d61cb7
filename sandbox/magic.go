package sandbox

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// Format is a named executable container format recognized by its leading
// bytes.
type Format struct {
	Name   string
	Prefix []byte
}

const (
	// magicWindow is the number of leading bytes inspected; it equals the
	// longest prefix in the table.
	magicWindow = 8

	// magicPad fills the window after a short read. No table entry contains
	// 0xFF, so padding can never complete a partial match.
	magicPad = 0xFF
)

// formats is consulted in order; the first matching prefix wins.
var formats = []Format{
	{Name: "pe-mz", Prefix: []byte{0x4D, 0x5A}},
	{Name: "pe-zm", Prefix: []byte{0x5A, 0x4D}},
	{Name: "elf", Prefix: []byte{0x7F, 0x45, 0x4C, 0x46}},
	{Name: "dex", Prefix: []byte{0x64, 0x65, 0x78, 0x0A, 0x30, 0x33, 0x35, 0x00}},
	{Name: "macho-fat", Prefix: []byte{0xCA, 0xFE, 0xBA, 0xBE}},
	{Name: "macho-64", Prefix: []byte{0xCF, 0xFA, 0xED, 0xFE}},
}

// Formats returns a copy of the magic-number table in match order.
func Formats() []Format {
	out := make([]Format, len(formats))
	for i, f := range formats {
		out[i] = Format{Name: f.Name, Prefix: bytes.Clone(f.Prefix)}
	}

	return out
}

// Classify reads up to 8 bytes from r and reports the first format whose
// prefix matches. Read errors (other than a short read) classify as not
// executable.
func Classify(r io.Reader) (Format, bool) {
	var window [magicWindow]byte

	n, err := io.ReadFull(r, window[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Format{}, false
	}

	for i := n; i < magicWindow; i++ {
		window[i] = magicPad
	}

	for _, f := range formats {
		if bytes.HasPrefix(window[:], f.Prefix) {
			return f, true
		}
	}

	return Format{}, false
}

// ClassifyFile opens path read-only and classifies its leading bytes.
func ClassifyFile(path string) (Format, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, false
	}

	defer func() { _ = f.Close() }()

	return Classify(f)
}

// IsExecutableFile reports whether the file at path starts with a known
// executable magic number. It never fails; unreadable files are reported as
// not executable.
func IsExecutableFile(path string) bool {
	_, ok := ClassifyFile(path)

	return ok
}
