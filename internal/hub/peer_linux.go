//go:build linux

package hub

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// knownBrowsers maps process names to the client identity we report.
// Identity comes from the OS process tree, never from the client's own
// messages.
var knownBrowsers = map[string]string{
	"chrome":        "chrome",
	"google-chrome": "chrome",
	"chromium":      "chromium",
	"firefox":       "firefox",
	"firefox-bin":   "firefox",
	"brave":         "brave",
	"msedge":        "edge",
	"safari":        "safari",
	"arc":           "arc",
	"vivaldi-bin":   "vivaldi",
}

// peerIdentity resolves the connecting process's browser identity by
// walking its ancestry via /proc. Returns "unknown" when no known
// browser appears in the tree.
func peerIdentity(conn net.Conn) (string, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return "unknown", fmt.Errorf("not a unix connection")
	}

	raw, err := unixConn.SyscallConn()
	if err != nil {
		return "unknown", err
	}

	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return "unknown", err
	}
	if credErr != nil {
		return "unknown", fmt.Errorf("peer credentials: %w", credErr)
	}

	pid := int(cred.Pid)
	for depth := 0; depth < 16 && pid > 1; depth++ {
		name, ppid, err := readProcStat(pid)
		if err != nil {
			return "unknown", err
		}
		if browser, ok := knownBrowsers[strings.ToLower(name)]; ok {
			return browser, nil
		}
		pid = ppid
	}
	return "unknown", nil
}

// readProcStat returns the process name and parent pid from
// /proc/<pid>/stat.
func readProcStat(pid int) (string, int, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return "", 0, err
	}

	// Field 2 is "(comm)"; comm may contain spaces, so split around
	// the closing paren.
	s := string(data)
	open := strings.IndexByte(s, '(')
	end := strings.LastIndexByte(s, ')')
	if open < 0 || end < open {
		return "", 0, fmt.Errorf("malformed stat for pid %d", pid)
	}
	name := s[open+1 : end]

	fields := strings.Fields(s[end+1:])
	if len(fields) < 2 {
		return "", 0, fmt.Errorf("malformed stat for pid %d", pid)
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, fmt.Errorf("malformed ppid for pid %d: %w", pid, err)
	}
	return name, ppid, nil
}
