package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ImagesDir is the name of the image directory, a sibling of the artifact root.
const ImagesDir = "images"

var (
	ErrFileNotFound = errors.New("file not found")
	ErrInvalidName  = errors.New("invalid file name")
)

// Store defines the interface for file storage backends.
type Store interface {
	SaveArtifact(originalName string, data io.Reader) (*StoredFile, error)
	SaveImage(originalName string, data io.Reader) (*StoredFile, error)
	ResolveArtifact(ref ArtifactRef) (string, error)
	ImagePath(filename string) (string, error)
	Remove(path string) error
	EnsureDirs() error
}

// StoredFile describes a file written by the store.
type StoredFile struct {
	Name     string // stored file name, relative to its directory
	Path     string // absolute path on disk
	Size     int64
	Checksum string // hex BLAKE2b-256 of the content
}

// FileSystemStore stores artifacts under a root directory and images in
// an "images" directory next to it.
type FileSystemStore struct {
	root     string
	dataRoot string
	now      func() time.Time
}

// NewFileSystemStore creates a new filesystem storage backend rooted at
// basePath. The images directory is derived as basePath/../images.
func NewFileSystemStore(basePath string) (*FileSystemStore, error) {
	root, err := filepath.Abs(filepath.Clean(basePath))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage path %s: %w", basePath, err)
	}
	return &FileSystemStore{
		root:     root,
		dataRoot: filepath.Dir(root),
		now:      time.Now,
	}, nil
}

// Root returns the absolute artifact root.
func (fs *FileSystemStore) Root() string { return fs.root }

// ImagesRoot returns the absolute images directory.
func (fs *FileSystemStore) ImagesRoot() string { return filepath.Join(fs.dataRoot, ImagesDir) }

// EnsureDirs creates the artifact and image directories if they don't exist.
func (fs *FileSystemStore) EnsureDirs() error {
	for _, dir := range []string{fs.root, fs.ImagesRoot()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}
	return nil
}

// SaveArtifact writes an artifact under the root using a timestamped name.
func (fs *FileSystemStore) SaveArtifact(originalName string, data io.Reader) (*StoredFile, error) {
	return fs.save(fs.root, originalName, data)
}

// SaveImage writes an image into the images directory using a timestamped name.
func (fs *FileSystemStore) SaveImage(originalName string, data io.Reader) (*StoredFile, error) {
	return fs.save(fs.ImagesRoot(), originalName, data)
}

// ResolveArtifact maps a stored artifact reference to a path on disk.
// Parent-relative references may not escape the storage parent.
func (fs *FileSystemStore) ResolveArtifact(ref ArtifactRef) (string, error) {
	path := ref.Resolve(fs.root, fs.dataRoot)
	if !within(fs.dataRoot, path) {
		return "", fmt.Errorf("%w: %s escapes storage", ErrInvalidName, ref)
	}
	return path, nil
}

// ImagePath returns the path of an image. Only the base-name component of
// filename is used.
func (fs *FileSystemStore) ImagePath(filename string) (string, error) {
	name := baseName(filename)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}
	return filepath.Join(fs.ImagesRoot(), name), nil
}

// Remove deletes a stored file. Missing files are not an error.
func (fs *FileSystemStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	return nil
}

func (fs *FileSystemStore) save(dir, originalName string, data io.Reader) (*StoredFile, error) {
	name := storedName(fs.now(), originalName)
	filePath := filepath.Join(dir, name)

	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", filePath, err)
	}

	hasher, _ := blake2b.New256(nil)
	n, err := io.Copy(io.MultiWriter(file, hasher), data)
	if err == nil {
		err = file.Close()
	} else {
		file.Close()
	}
	if err != nil {
		// Clean up partial file on error
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &StoredFile{
		Name:     name,
		Path:     filePath,
		Size:     n,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// storedName builds "<unix nanos>_<name>" from the base name of the
// original file, with every character outside [A-Za-z0-9._-] replaced.
func storedName(now time.Time, originalName string) string {
	name := sanitizeFilename(originalName)
	return strconv.FormatInt(now.UnixNano(), 10) + "_" + unsafeChars.ReplaceAllString(name, "_")
}

// sanitizeFilename strips directory components and limits length.
func sanitizeFilename(name string) string {
	name = baseName(name)

	// Limit length
	if len(name) > 200 {
		ext := filepath.Ext(name)
		if len(ext) > 20 {
			ext = ""
		}
		name = name[:200-len(ext)] + ext
	}

	if name == "" || name == "." || name == ".." || name == "/" {
		name = "upload"
	}

	return name
}

// baseName normalizes Windows-style separators before taking the last
// path element, since filepath.Base is platform-specific.
func baseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" {
		return ""
	}
	return filepath.Base(name)
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
