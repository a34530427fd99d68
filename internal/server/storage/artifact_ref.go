package storage

import (
	"path/filepath"
	"strings"
)

// RefKind tells how a stored artifact path is anchored.
type RefKind int

const (
	// RootRelative is a bare file name under the artifact root.
	RootRelative RefKind = iota
	// ParentRelative is a "/"-prefixed path under the root's parent
	// directory, e.g. "/images/x.png".
	ParentRelative
)

// ArtifactRef is the parsed form of a mod's jar_path column.
type ArtifactRef struct {
	Kind RefKind
	Path string // without the leading "/" for ParentRelative
}

// ParseArtifactRef parses a stored jar path. It reports false for an
// empty or blank value.
func ParseArtifactRef(stored string) (ArtifactRef, bool) {
	if strings.TrimSpace(stored) == "" {
		return ArtifactRef{}, false
	}
	if strings.HasPrefix(stored, "/") {
		return ArtifactRef{Kind: ParentRelative, Path: strings.TrimPrefix(stored, "/")}, true
	}
	return ArtifactRef{Kind: RootRelative, Path: stored}, true
}

// Resolve joins the reference onto the directory it is anchored to.
func (r ArtifactRef) Resolve(root, parent string) string {
	if r.Kind == ParentRelative {
		return filepath.Join(parent, filepath.FromSlash(r.Path))
	}
	return filepath.Join(root, filepath.FromSlash(r.Path))
}

func (r ArtifactRef) String() string {
	if r.Kind == ParentRelative {
		return "/" + r.Path
	}
	return r.Path
}
