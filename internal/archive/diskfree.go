package archive

import "golang.org/x/sys/unix"

// FreeBytes reports the bytes available to unprivileged users on the
// filesystem containing path. Extraction callers use it as a preflight so a
// large archive fails fast instead of mid-write.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
