// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/amoskys/amoskys/internal/model"
)

// fimChunkSize is the streaming read size for hashing monitored files.
const fimChunkSize = 8192

// systemRoots are classified CRITICAL on change.
var systemRoots = []string{"/bin", "/sbin", "/usr/bin", "/usr/sbin", "/etc"}

// launchRoots are classified HIGH on change.
var launchRoots = []string{"/Library/LaunchAgents", "/Library/LaunchDaemons", "/etc/cron.d"}

// webRoots combined with suspicious extensions are classified CRITICAL
// (webshell risk).
var webRoots = []string{"/var/www", "/srv/http"}

var webshellExtensions = map[string]bool{".php": true, ".jsp": true, ".asp": true, ".aspx": true, ".cgi": true}

// HashFile computes the SHA-256 of path by streaming it in
// fimChunkSize chunks, so large files never require full in-memory
// buffering.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, fimChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// StatFileState builds a FileState for path using the OS's view of its
// metadata plus a streamed SHA-256 hash.
func StatFileState(path string) (model.FileState, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return model.FileState{}, err
	}
	sum, err := HashFile(path)
	if err != nil {
		return model.FileState{}, err
	}

	state := model.FileState{
		Path:    path,
		SHA256:  sum,
		Size:    info.Size(),
		Mode:    uint32(info.Mode().Perm()),
		MtimeNs: info.ModTime().UnixNano(),
	}
	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		state.UID = sys.Uid
		state.GID = sys.Gid
	}
	state.IsSUID = info.Mode()&os.ModeSetuid != 0
	state.IsSGID = info.Mode()&os.ModeSetgid != 0
	state.IsWorldWritable = info.Mode().Perm()&0o002 != 0
	return state, nil
}

// DiffBaseline compares a baseline snapshot against a current snapshot
// (both keyed by path) and emits a FileChange for every path that was
// added, removed, or modified, classifying each change's severity.
func DiffBaseline(baseline, current map[string]model.FileState) []model.FileChange {
	var changes []model.FileChange

	for path, cur := range current {
		old, existed := baseline[path]
		if !existed {
			changes = append(changes, classify(path, model.FileCreated, nil, &cur))
			continue
		}
		if change, changed := diffOne(path, old, cur); changed {
			changes = append(changes, change)
		}
	}
	for path, old := range baseline {
		if _, stillPresent := current[path]; !stillPresent {
			changes = append(changes, classify(path, model.FileDeleted, &old, nil))
		}
	}
	return changes
}

func diffOne(path string, old, cur model.FileState) (model.FileChange, bool) {
	contentChanged := old.SHA256 != cur.SHA256 || old.Size != cur.Size
	modeChanged := old.Mode != cur.Mode || old.IsSUID != cur.IsSUID || old.IsSGID != cur.IsSGID
	ownerChanged := old.UID != cur.UID || old.GID != cur.GID

	switch {
	case contentChanged:
		return classify(path, model.FileModified, &old, &cur), true
	case modeChanged && !ownerChanged:
		return classify(path, model.FilePermissionChanged, &old, &cur), true
	case ownerChanged:
		return classify(path, model.FileOwnerChanged, &old, &cur), true
	default:
		return model.FileChange{}, false
	}
}

func classify(path string, changeType model.FileChangeType, old, cur *model.FileState) model.FileChange {
	severity := model.SeverityWarn
	var mitre []string

	switch {
	case underAny(path, systemRoots):
		severity = model.SeverityCritical
		mitre = []string{"T1036.005"}
	case underAny(path, launchRoots):
		severity = model.SeverityError // HIGH
		mitre = []string{"T1543.001", "T1543.004"}
	case cur != nil && (cur.IsSUID || cur.IsSGID) && (old == nil || (!old.IsSUID && !old.IsSGID)):
		severity = model.SeverityCritical
		mitre = []string{"T1548.001"}
	case cur != nil && cur.IsWorldWritable && underAnySensitive(path):
		severity = model.SeverityError // HIGH
		mitre = []string{"T1222"}
	case underAny(path, webRoots) && webshellExtensions[strings.ToLower(filepath.Ext(path))]:
		severity = model.SeverityCritical
		mitre = []string{"T1505.003"}
	}

	return model.FileChange{
		Path:       path,
		ChangeType: changeType,
		Old:        old,
		New:        cur,
		Severity:   severity,
		Mitre:      mitre,
	}
}

func underAny(path string, roots []string) bool {
	for _, root := range roots {
		if strings.HasPrefix(path, root) {
			return true
		}
	}
	return false
}

func underAnySensitive(path string) bool {
	return underAny(path, systemRoots) || underAny(path, launchRoots)
}
