// Package volumes lists the fixed local volumes a full-machine discovery run
// should walk.
package volumes

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// pseudoFS are filesystem types that never hold user repositories or are
// network mounts.
var pseudoFS = map[string]struct{}{
	"proc": {}, "sysfs": {}, "devtmpfs": {}, "devpts": {}, "tmpfs": {},
	"cgroup": {}, "cgroup2": {}, "securityfs": {}, "pstore": {}, "debugfs": {},
	"tracefs": {}, "configfs": {}, "fusectl": {}, "mqueue": {}, "hugetlbfs": {},
	"bpf": {}, "autofs": {}, "binfmt_misc": {}, "rpc_pipefs": {}, "nsfs": {},
	"overlay": {}, "squashfs": {}, "ramfs": {}, "efivarfs": {}, "selinuxfs": {},
	"nfs": {}, "nfs4": {}, "cifs": {}, "smb3": {}, "smbfs": {}, "sshfs": {},
	"fuse.sshfs": {}, "9p": {}, "fuse.portal": {}, "fuse.gvfsd-fuse": {},
}

// Fixed returns the mount points of local fixed volumes, sorted. Mount
// points nested under another returned volume are dropped since walking the
// outer one already covers them.
func Fixed() ([]string, error) {
	var mounts []string
	switch runtime.GOOS {
	case "linux":
		f, err := os.Open("/proc/self/mounts")
		if err != nil {
			return []string{"/"}, nil
		}
		defer func() { _ = f.Close() }()
		if mounts, err = parseMounts(f); err != nil {
			return nil, err
		}
	case "darwin":
		mounts = darwinVolumes("/Volumes")
	case "windows":
		mounts = driveLetters()
	default:
		mounts = []string{"/"}
	}
	return collapse(directories(mounts)), nil
}

// directories drops mount points that are not directories, such as the
// single-file bind mounts containers use for /etc/hosts.
func directories(paths []string) []string {
	out := paths[:0]
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

// collapse removes paths contained in another path of the sorted input.
func collapse(paths []string) []string {
	sort.Strings(paths)
	var out []string
	for _, p := range paths {
		nested := false
		for _, kept := range out {
			rel, err := filepath.Rel(kept, p)
			if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, p)
		}
	}
	return out
}

// parseMounts reads /proc/mounts format and keeps real local filesystems.
func parseMounts(r io.Reader) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		mountPoint := unescapeMount(fields[1])
		fsType := fields[2]
		// Container roots are overlays; the root itself is always walked.
		if _, pseudo := pseudoFS[fsType]; pseudo && mountPoint != "/" {
			continue
		}
		if strings.HasPrefix(mountPoint, "/proc") || strings.HasPrefix(mountPoint, "/sys") ||
			strings.HasPrefix(mountPoint, "/dev") || strings.HasPrefix(mountPoint, "/run") ||
			strings.HasPrefix(mountPoint, "/snap") || strings.HasPrefix(mountPoint, "/boot") {
			continue
		}
		if _, dup := seen[mountPoint]; dup {
			continue
		}
		seen[mountPoint] = struct{}{}
		out = append(out, mountPoint)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		out = []string{"/"}
	}
	sort.Strings(out)
	return out, nil
}

// unescapeMount decodes the octal escapes the kernel uses for spaces, tabs,
// newlines and backslashes in mount paths.
func unescapeMount(s string) string {
	r := strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)
	return r.Replace(s)
}

func darwinVolumes(volumesDir string) []string {
	out := []string{"/"}
	entries, err := os.ReadDir(volumesDir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		p := filepath.Join(volumesDir, e.Name())
		// The boot volume appears under /Volumes as a symlink to /.
		if e.Type()&os.ModeSymlink != 0 {
			continue
		}
		if e.IsDir() {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func driveLetters() []string {
	var out []string
	for c := 'C'; c <= 'Z'; c++ {
		root := string(c) + `:\`
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			out = append(out, root)
		}
	}
	return out
}
