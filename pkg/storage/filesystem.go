package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrFileNotFound is returned when a logical path has no file behind it.
	ErrFileNotFound = errors.New("stored file not found")
	// ErrOutsideRoot is returned for paths that resolve outside the storage root.
	ErrOutsideRoot = errors.New("path resolves outside storage root")
	// ErrNotAFile is returned when a logical path names a directory.
	ErrNotAFile = errors.New("path is not a regular file")
	// ErrFileTooLarge is returned when a stream exceeds the configured byte limit.
	ErrFileTooLarge = errors.New("file too large")
)

const (
	maxBaseNameLen = 64
	// trashDir holds files moved aside by Stage. SanitizeFolder drops the dot,
	// so Store can never write into it.
	trashDir = ".trash"
)

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// StoredFile describes one file under the storage root.
type StoredFile struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// AttachmentStore stores reply attachments under logical, root-relative paths.
type AttachmentStore interface {
	Store(folder string, r io.Reader, declaredName string) (string, int64, error)
	Open(logicalPath string) (*os.File, error)
	Delete(logicalPath string) error
	Stage(logicalPath string) (string, error)
	Restore(stagedPath, logicalPath string) error
	List() ([]StoredFile, error)
}

var _ AttachmentStore = (*LocalStorage)(nil)

// LocalStorage persists files on disk under a root directory. Logical paths
// are slash separated and relative to the root.
type LocalStorage struct {
	baseDir  string
	maxBytes int64
}

// NewLocalStorage ensures the root exists and returns a handle. maxBytes <= 0
// disables the write cap.
func NewLocalStorage(baseDir string, maxBytes int64) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads/replies"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory: %w", err)
	}
	return &LocalStorage{baseDir: resolved, maxBytes: maxBytes}, nil
}

// Root returns the canonical storage root.
func (s *LocalStorage) Root() string {
	return s.baseDir
}

// Store copies r into a new uniquely named file inside folder and returns the
// logical path and the number of bytes written. Partially written files are
// removed on failure.
func (s *LocalStorage) Store(folder string, r io.Reader, declaredName string) (string, int64, error) {
	folder = SanitizeFolder(folder)
	dir := filepath.Join(s.baseDir, folder)
	if !s.within(dir) {
		return "", 0, ErrOutsideRoot
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("prepare attachment directory: %w", err)
	}

	filename := GenerateFilename(declaredName)
	fullPath := filepath.Join(dir, filename)
	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create attachment file: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	written, copyErr := io.Copy(file, src)
	if copyErr == nil && s.maxBytes > 0 && written > s.maxBytes {
		copyErr = ErrFileTooLarge
	}
	if copyErr == nil {
		copyErr = file.Sync()
	}
	closeErr := file.Close()
	if copyErr == nil && closeErr != nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(fullPath)
		s.removeEmptyDir(dir)
		if errors.Is(copyErr, ErrFileTooLarge) {
			return "", 0, ErrFileTooLarge
		}
		return "", 0, fmt.Errorf("write attachment file: %w", copyErr)
	}

	return folder + "/" + filename, written, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(logicalPath string) (*os.File, error) {
	path, err := s.resolveFile(logicalPath)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("open attachment file: %w", err)
	}
	return file, nil
}

// Stat reports metadata for a stored file.
func (s *LocalStorage) Stat(logicalPath string) (fs.FileInfo, error) {
	path, err := s.resolveFile(logicalPath)
	if err != nil {
		return nil, err
	}
	return os.Stat(path)
}

// Delete removes a stored file. A missing file is reported as ErrFileNotFound
// so callers can detect metadata drift. The enclosing folder is dropped once empty.
func (s *LocalStorage) Delete(logicalPath string) error {
	path, err := s.resolveFile(logicalPath)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrFileNotFound
		}
		return fmt.Errorf("delete attachment file: %w", err)
	}
	s.removeEmptyDir(filepath.Dir(path))
	return nil
}

// Stage moves a stored file into the trash folder and returns its staged
// logical path. Delete on that path drops it for good; Restore puts it back.
// The staged copy gets a fresh modification time so the reconciler grace
// period covers it while the caller decides.
func (s *LocalStorage) Stage(logicalPath string) (string, error) {
	path, err := s.resolveFile(logicalPath)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.baseDir, trashDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("prepare trash directory: %w", err)
	}
	name := randomSuffix() + "_" + filepath.Base(path)
	if err := os.Rename(path, filepath.Join(dir, name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("stage attachment file: %w", err)
	}
	now := time.Now()
	_ = os.Chtimes(filepath.Join(dir, name), now, now)
	s.removeEmptyDir(filepath.Dir(path))
	return trashDir + "/" + name, nil
}

// Restore moves a staged file back to logicalPath.
func (s *LocalStorage) Restore(stagedPath, logicalPath string) error {
	from, err := s.resolveFile(stagedPath)
	if err != nil {
		return err
	}
	logicalPath = strings.TrimSpace(logicalPath)
	if logicalPath == "" || filepath.IsAbs(logicalPath) || strings.HasPrefix(logicalPath, "/") {
		return ErrOutsideRoot
	}
	to := filepath.Join(s.baseDir, filepath.FromSlash(logicalPath))
	if !s.within(to) {
		return ErrOutsideRoot
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("prepare attachment directory: %w", err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("restore attachment file: %w", err)
	}
	s.removeEmptyDir(filepath.Dir(from))
	return nil
}

// List walks the root and returns every regular file, staged ones included.
func (s *LocalStorage) List() ([]StoredFile, error) {
	files := make([]StoredFile, 0)
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		files = append(files, StoredFile{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk attachment storage: %w", err)
	}
	return files, nil
}

// resolveFile maps a logical path to an absolute one, following symlinks, and
// rejects anything that escapes the root.
func (s *LocalStorage) resolveFile(logicalPath string) (string, error) {
	logicalPath = strings.TrimSpace(logicalPath)
	if logicalPath == "" || filepath.IsAbs(logicalPath) || strings.HasPrefix(logicalPath, "/") {
		return "", ErrOutsideRoot
	}
	full := filepath.Join(s.baseDir, filepath.FromSlash(logicalPath))
	if !s.within(full) {
		return "", ErrOutsideRoot
	}
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("resolve attachment path: %w", err)
	}
	if !s.within(resolved) {
		return "", ErrOutsideRoot
	}
	info, err := os.Lstat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("stat attachment path: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", ErrNotAFile
	}
	return resolved, nil
}

func (s *LocalStorage) within(path string) bool {
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

func (s *LocalStorage) removeEmptyDir(dir string) {
	if !s.within(dir) {
		return
	}
	// os.Remove refuses non-empty directories, which is the check we want.
	_ = os.Remove(dir)
}

// SanitizeFolder keeps only ASCII letters, digits, hyphens and underscores.
func SanitizeFolder(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if isSafeRune(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "general"
	}
	return b.String()
}

// GenerateFilename builds "<sanitised base>_<unix>_<random><ext>".
func GenerateFilename(declaredName string) string {
	declaredName = filepath.Base(strings.ReplaceAll(declaredName, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(declaredName))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	base := strings.TrimSuffix(declaredName, filepath.Ext(declaredName))

	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		if isSafeRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	clean := strings.Trim(b.String(), "_-")
	if len(clean) > maxBaseNameLen {
		clean = clean[:maxBaseNameLen]
	}
	if clean == "" {
		clean = "file"
	}
	return fmt.Sprintf("%s_%d_%s%s", clean, time.Now().Unix(), randomSuffix(), ext)
}

func isSafeRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
