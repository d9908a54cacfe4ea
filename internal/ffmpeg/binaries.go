// Package ffmpeg locates the ffmpeg and ffprobe executables used for media
// probing and conversion.
package ffmpeg

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	releaseVersion = "6.1"
	releaseBaseURL = "https://github.com/ffbinaries/ffbinaries-prebuilt/releases/download"
)

// ffbinaries platform names by GOOS/GOARCH
var releasePlatforms = map[string]string{
	"linux/amd64":   "linux-64",
	"linux/arm64":   "linux-arm-64",
	"darwin/amd64":  "macos-64",
	"windows/amd64": "win-64",
}

// BinaryPaths holds the resolved ffmpeg and ffprobe executables.
type BinaryPaths struct {
	FFmpeg  string
	FFprobe string
}

func (p BinaryPaths) complete() bool {
	return p.FFmpeg != "" && p.FFprobe != ""
}

// Resolver finds ffmpeg and ffprobe on first use and remembers the answer.
// Explicit paths win, then $PATH, then a copy in the user cache, which is
// downloaded from ffbinaries when missing.
type Resolver struct {
	overrides BinaryPaths
	cacheDir  string
	baseURL   string
	client    *http.Client

	once  sync.Once
	paths BinaryPaths
	err   error
}

func NewResolver(overrides BinaryPaths) *Resolver {
	return &Resolver{
		overrides: overrides,
		baseURL:   releaseBaseURL,
		client:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// Paths resolves both binaries.
func (r *Resolver) Paths() (BinaryPaths, error) {
	r.once.Do(func() {
		r.paths, r.err = r.resolve()
	})
	return r.paths, r.err
}

func (r *Resolver) FFmpegPath() (string, error) {
	p, err := r.Paths()
	return p.FFmpeg, err
}

func (r *Resolver) FFprobePath() (string, error) {
	p, err := r.Paths()
	return p.FFprobe, err
}

func (r *Resolver) resolve() (BinaryPaths, error) {
	found := BinaryPaths{
		FFmpeg:  onPath(r.overrides.FFmpeg, "ffmpeg"),
		FFprobe: onPath(r.overrides.FFprobe, "ffprobe"),
	}
	if found.complete() {
		return found, nil
	}

	platform, err := releasePlatform(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return BinaryPaths{}, err
	}

	dir := r.installDir()
	cached := BinaryPaths{
		FFmpeg:  filepath.Join(dir, "ffmpeg"+exeSuffix()),
		FFprobe: filepath.Join(dir, "ffprobe"+exeSuffix()),
	}
	if isFile(cached.FFmpeg) && isFile(cached.FFprobe) {
		return cached, nil
	}

	if err := r.install(platform, dir); err != nil {
		return BinaryPaths{}, err
	}
	return cached, nil
}

// override if set, else the PATH lookup of name, else empty
func onPath(override, name string) string {
	if override != "" {
		return override
	}
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	return ""
}

func (r *Resolver) installDir() string {
	base := r.cacheDir
	if base == "" {
		var err error
		if base, err = os.UserCacheDir(); err != nil || base == "" {
			base = os.TempDir()
		}
	}
	return filepath.Join(base, "vidscribe", "ffmpeg", releaseVersion, runtime.GOOS+"-"+runtime.GOARCH)
}

func releasePlatform(goos, goarch string) (string, error) {
	platform, ok := releasePlatforms[goos+"/"+goarch]
	if !ok {
		return "", fmt.Errorf("no prebuilt ffmpeg for %s/%s: install ffmpeg or set VIDSCRIBE_FFMPEG_PATH", goos, goarch)
	}
	return platform, nil
}

// archive names for one platform; ffbinaries ships the two tools separately
func releaseArchives(platform string) []string {
	return []string{
		fmt.Sprintf("ffmpeg-%s-%s.zip", releaseVersion, platform),
		fmt.Sprintf("ffprobe-%s-%s.zip", releaseVersion, platform),
	}
}

// downloads the release archives for platform and unpacks the tools into dir
func (r *Resolver) install(platform, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ffmpeg cache: %w", err)
	}

	want := map[string]bool{"ffmpeg": true, "ffprobe": true}
	for _, archive := range releaseArchives(platform) {
		url := fmt.Sprintf("%s/v%s/%s", r.baseURL, releaseVersion, archive)
		got, err := r.fetchArchive(url, dir)
		if err != nil {
			return fmt.Errorf("install %s: %w", archive, err)
		}
		for _, tool := range got {
			delete(want, tool)
		}
	}

	if len(want) > 0 {
		return fmt.Errorf("ffmpeg release did not contain %s", strings.Join(sortedKeys(want), ", "))
	}
	return nil
}

func (r *Resolver) fetchArchive(url, dir string) ([]string, error) {
	resp, err := r.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	// zip needs random access, so spool the body first
	spool, err := os.CreateTemp("", "vidscribe-ffmpeg-*.zip")
	if err != nil {
		return nil, err
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	size, err := io.Copy(spool, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	zr, err := zip.NewReader(spool, size)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return unpackTools(zr, dir)
}

// unpackTools writes every ffmpeg or ffprobe entry of zr into dir and
// reports which tools it found.
func unpackTools(zr *zip.Reader, dir string) ([]string, error) {
	var found []string
	for _, f := range zr.File {
		tool, ok := toolName(f.Name)
		if !ok || f.FileInfo().IsDir() {
			continue
		}
		if err := writeExecutable(f, filepath.Join(dir, tool+exeSuffix())); err != nil {
			return nil, err
		}
		found = append(found, tool)
	}
	return found, nil
}

// maps an archive entry to "ffmpeg" or "ffprobe"
func toolName(entry string) (string, bool) {
	name := strings.TrimSuffix(strings.ToLower(filepath.Base(entry)), ".exe")
	switch name {
	case "ffmpeg", "ffprobe":
		return name, true
	}
	return "", false
}

func writeExecutable(f *zip.File, dest string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("read %s: %w", f.Name, err)
	}
	defer src.Close()

	tmp := dest + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return os.Rename(tmp, dest)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
