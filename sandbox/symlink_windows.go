//go:build windows

package sandbox

import (
	"os"

	"golang.org/x/sys/windows"
)

// symbolicLinkFlagAllowUnprivilegedCreate lets Developer Mode accounts create
// links without elevation. x/sys/windows does not export it.
const symbolicLinkFlagAllowUnprivilegedCreate = 0x2

// symlink creates newname pointing at oldname. Windows distinguishes file and
// directory links, so the kind is taken from oldname; a missing target is
// linked as a file.
func symlink(oldname, newname string) error {
	flags := uint32(symbolicLinkFlagAllowUnprivilegedCreate)

	info, err := os.Stat(oldname)
	if err == nil && info.IsDir() {
		flags |= windows.SYMBOLIC_LINK_FLAG_DIRECTORY
	}

	from, err := windows.UTF16PtrFromString(newname)
	if err != nil {
		return err
	}

	to, err := windows.UTF16PtrFromString(oldname)
	if err != nil {
		return err
	}

	err = windows.CreateSymbolicLink(from, to, flags)
	if err != nil {
		return &os.LinkError{Op: "symlink", Old: oldname, New: newname, Err: err}
	}

	return nil
}
