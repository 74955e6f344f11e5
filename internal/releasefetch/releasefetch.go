// Package releasefetch implements the narrow external collaborator named
// in spec.md §1: a release downloader that fetches a prebuilt llama-server
// archive from a web source and unzips it. It is invoked through a single
// narrow interface, the same shape as the GGUF parser and completions
// client collaborators in internal/inspector and internal/llamaproc.
package releasefetch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"modeld/internal/llamaproc"
)

// Fetcher retrieves a llama.cpp release for the given version and returns
// the directory it was extracted into.
type Fetcher interface {
	Fetch(ctx context.Context, version string) (rootPath string, err error)
}

// httpZipFetcher downloads urlTemplate (with "{version}" substituted) and
// extracts it into destRoot, mirroring the directory-prep and logging
// conventions of the teacher's install flow but swapping a build-from-source
// step for a zip download. destRoot holds at most one installed version at
// a time, per S5: a directory already holding version A rejects a request
// for version B with VersionMismatch instead of installing alongside it.
type httpZipFetcher struct {
	client      *http.Client
	urlTemplate string
	destRoot    string
	logf        func(format string, args ...any)
}

// New returns a Fetcher that downloads from urlTemplate (a URL containing
// the literal substring "{version}") into destRoot. A nil logf disables
// logging.
func New(urlTemplate, destRoot string, logf func(string, ...any)) Fetcher {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &httpZipFetcher{
		client:      &http.Client{},
		urlTemplate: urlTemplate,
		destRoot:    destRoot,
		logf:        logf,
	}
}

// versionNumber parses a release version string ("b9999" or "9999") into
// the numeric build id Installation.Version reports, so a requested
// version can be compared against what's already on disk.
func versionNumber(version string) (int, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(version, "b"), "B")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("releasefetch: version %q is not numeric", version)
	}
	return n, nil
}

func (f *httpZipFetcher) Fetch(ctx context.Context, version string) (string, error) {
	if version == "" {
		return "", fmt.Errorf("releasefetch: version is required")
	}

	if existing, err := llamaproc.DetectInstallation(f.destRoot); err == nil && existing != nil {
		wantVersion, err := versionNumber(version)
		if err != nil {
			return "", err
		}
		if err := CheckVersion(ctx, existing, wantVersion); err != nil {
			return "", err
		}
		f.logf("[releasefetch] %s already present at %s", version, f.destRoot)
		return f.destRoot, nil
	}

	url := strings.ReplaceAll(f.urlTemplate, "{version}", version)
	f.logf("[releasefetch] downloading %s", url)

	archivePath, err := f.download(ctx, url)
	if err != nil {
		return "", fmt.Errorf("releasefetch: download %s: %w", url, err)
	}
	defer os.Remove(archivePath)

	if err := os.MkdirAll(f.destRoot, 0o755); err != nil {
		return "", fmt.Errorf("releasefetch: mkdir %s: %w", f.destRoot, err)
	}
	f.logf("[releasefetch] extracting into %s", f.destRoot)
	if err := extractZip(archivePath, f.destRoot); err != nil {
		return "", fmt.Errorf("releasefetch: extract %s: %w", archivePath, err)
	}

	install, err := llamaproc.DetectInstallation(f.destRoot)
	if err != nil {
		return "", fmt.Errorf("releasefetch: scan %s: %w", f.destRoot, err)
	}
	if install == nil {
		return "", fmt.Errorf("releasefetch: archive for %s did not contain llama-server and llama-cli", version)
	}
	if wantVersion, verr := versionNumber(version); verr == nil {
		if err := CheckVersion(ctx, install, wantVersion); err != nil {
			return "", err
		}
	}
	return f.destRoot, nil
}

func (f *httpZipFetcher) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "modeld-release-*.zip")
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// extractZip unpacks archivePath into dir, rejecting entries that would
// escape dir via "..".
func extractZip(archivePath, dir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(dir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) && target != filepath.Clean(dir) {
			return fmt.Errorf("illegal file path in archive: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractZipEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, rc)
	return err
}

// CheckVersion compares the version a Fetcher retrieved against the
// version an existing Installation reports, surfacing a KindVersionMismatch
// error on divergence per the S5 scenario.
func CheckVersion(ctx context.Context, install *llamaproc.Installation, wantVersion int) error {
	got, err := install.Version(ctx)
	if err != nil {
		return err
	}
	if got != wantVersion {
		return &llamaproc.Error{
			Kind: llamaproc.KindVersionMismatch,
			Msg:  fmt.Sprintf("installed llama-cli reports version %d, expected %d", got, wantVersion),
		}
	}
	return nil
}
