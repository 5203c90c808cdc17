// Package state centralizes filesystem locations for agent-chrome-test
// runtime artifacts: the audit log, baseline images, and diff images.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StateDirEnv overrides the default runtime state root.
	StateDirEnv = "ACT_STATE_DIR"

	stateDirName = ".agent-chrome-test"

	// DirMode is the permission for every state directory.
	DirMode = 0o700
	// FileMode is the permission for every state file.
	FileMode = 0o600
)

// Paths holds the resolved on-disk layout for one process.
type Paths struct {
	Root string
}

// Resolve determines the state root. Resolution order:
//  1. explicit override (--state-dir flag)
//  2. ACT_STATE_DIR
//  3. <cwd>/.agent-chrome-test
//
// The root is created with owner-only permissions.
func Resolve(override string) (*Paths, error) {
	root := strings.TrimSpace(override)
	if root == "" {
		root = strings.TrimSpace(os.Getenv(StateDirEnv))
	}
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot determine working directory: %w", err)
		}
		root = filepath.Join(cwd, stateDirName)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid state dir %q: %w", root, err)
	}
	abs = filepath.Clean(abs)

	if err := os.MkdirAll(abs, DirMode); err != nil {
		return nil, fmt.Errorf("cannot create state dir %s: %w", abs, err)
	}

	return &Paths{Root: abs}, nil
}

// AuditLogFile returns the append-only audit log path.
func (p *Paths) AuditLogFile() string {
	return filepath.Join(p.Root, "audit.log")
}

// BaselinesDir returns the baseline image root.
func (p *Paths) BaselinesDir() string {
	return filepath.Join(p.Root, "baselines")
}
