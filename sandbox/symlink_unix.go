//go:build unix

package sandbox

import "golang.org/x/sys/unix"

// symlink creates newname pointing at oldname. Unix links carry no file vs.
// directory kind.
func symlink(oldname, newname string) error {
	return unix.Symlink(oldname, newname)
}
