package llamaproc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

const (
	serverBinaryName = "llama-server"
	cliBinaryName    = "llama-cli"
)

var (
	versionWithBuildRe = regexp.MustCompile(`version:\s*(\d+)\s*\([^)]+\)`)
	versionBareRe      = regexp.MustCompile(`version:\s*(\d+)`)
	flashAttnEnumHelp  = " --flash-attn [on|off|auto]"
	cudaToken          = "CUDA"
)

// Installation is a handle rooted at a directory containing both
// llama-server and llama-cli. Once constructed it refers to a fixed
// directory for its lifetime; if the files disappear later, operations
// that need them fail with KindNotFound. Version/help output is computed
// once per handle and cached thereafter, the way the teacher's HTTP layer
// memoizes its log level lookups.
type Installation struct {
	rootPath string

	once       sync.Once
	onceErr    error
	versionOut string
	helpOut    string
	buildVer   int
	hasCUDA    bool
	flashEnum  bool
}

// DetectInstallation recursively scans root and returns a handle rooted at
// the first directory that contains both llama-server and llama-cli as
// regular files with any executable bit set. Permission errors during
// traversal are swallowed and traversal continues; no deterministic
// ordering is guaranteed. Returns nil, nil if nothing is found.
func DetectInstallation(root string) (*Installation, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // swallow and keep walking
		}
		if found != "" {
			return filepath.SkipAll
		}
		if !d.IsDir() {
			return nil
		}
		if hasExecutable(path, serverBinaryName) && hasExecutable(path, cliBinaryName) {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return nil, err
	}
	if found == "" {
		return nil, nil
	}
	return &Installation{rootPath: found}, nil
}

func hasExecutable(dir, name string) bool {
	fi, err := os.Stat(filepath.Join(dir, name))
	if err != nil || fi.IsDir() {
		return false
	}
	return fi.Mode()&0o111 != 0
}

// RootPath returns the directory this handle is rooted at.
func (h *Installation) RootPath() string { return h.rootPath }

// ServerPath returns the joined path to llama-server, or "" if it vanished.
func (h *Installation) ServerPath() string {
	p := filepath.Join(h.rootPath, serverBinaryName)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// CliPath returns the joined path to llama-cli, or "" if it vanished.
func (h *Installation) CliPath() string {
	p := filepath.Join(h.rootPath, cliBinaryName)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// ensureProbed runs `llama-cli --version` and `--help` once, memoizing the
// captured output and derived feature flags.
func (h *Installation) ensureProbed() error {
	h.once.Do(func() {
		cli := h.CliPath()
		if cli == "" {
			h.onceErr = newError(KindNotFound, "llama-cli not found", nil)
			return
		}
		var stderr bytes.Buffer
		cmd := exec.Command(cli, "--version")
		cmd.Stderr = &stderr
		_ = cmd.Run() // llama-cli --version may exit non-zero; the output is what matters
		h.versionOut = stderr.String()

		var stdout bytes.Buffer
		cmdHelp := exec.Command(cli, "--help")
		cmdHelp.Stdout = &stdout
		_ = cmdHelp.Run()
		h.helpOut = stdout.String()

		h.hasCUDA = strings.Contains(h.versionOut, cudaToken)
		h.flashEnum = strings.Contains(h.helpOut, flashAttnEnumHelp)

		m := versionWithBuildRe.FindStringSubmatch(h.versionOut)
		if m == nil {
			m = versionBareRe.FindStringSubmatch(h.versionOut)
		}
		if m == nil {
			h.onceErr = newError(KindParse, "could not parse llama-cli version output", nil)
			return
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			h.onceErr = newError(KindParse, "non-numeric version", err)
			return
		}
		h.buildVer = v
	})
	return h.onceErr
}

// Version returns the parsed numeric build version from `llama-cli --version`.
func (h *Installation) Version(ctx context.Context) (int, error) {
	if err := h.ensureProbed(); err != nil {
		return 0, err
	}
	return h.buildVer, nil
}

// VersionOutput returns the full captured `--version` output, for
// downstream feature-sniffing beyond what this package derives.
func (h *Installation) VersionOutput() (string, error) {
	if err := h.ensureProbed(); err != nil {
		return "", err
	}
	return h.versionOut, nil
}

// HelpOutput returns the full captured `--help` output.
func (h *Installation) HelpOutput() (string, error) {
	if err := h.ensureProbed(); err != nil {
		return "", err
	}
	return h.helpOut, nil
}

// HasCUDA reports whether the version output mentions CUDA.
func (h *Installation) HasCUDA() (bool, error) {
	if err := h.ensureProbed(); err != nil {
		return false, err
	}
	return h.hasCUDA, nil
}

// FlashAttentionIsEnum reports whether --help advertises the enum form of
// --flash-attn ("[on|off|auto]") rather than the bare boolean flag.
func (h *Installation) FlashAttentionIsEnum() (bool, error) {
	if err := h.ensureProbed(); err != nil {
		return false, err
	}
	return h.flashEnum, nil
}

// checkPresent verifies both binaries still exist; used before starting a
// subprocess, since a handle may outlive the directory it points to.
func (h *Installation) checkPresent() error {
	if h.ServerPath() == "" {
		return newError(KindNotFound, fmt.Sprintf("llama-server missing under %s", h.rootPath), nil)
	}
	if h.CliPath() == "" {
		return newError(KindNotFound, fmt.Sprintf("llama-cli missing under %s", h.rootPath), nil)
	}
	return nil
}
