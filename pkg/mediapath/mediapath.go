// Package mediapath builds folder paths and object keys for uploaded media.
//
// A root folder has the path "<name>", a sub folder "<parent path>/<name>". Folders are at most
// MaxDepth levels deep, so a folder at depth MaxDepth cannot have children.
package mediapath

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

const (
	MaxDepth   = 3
	separator  = "/"
	maxNameLen = 128
)

var (
	ErrMaxDepth     = errors.New("folder depth limit reached")
	ErrInvalidName  = errors.New("invalid folder name")
	ErrMoveIntoSelf = errors.New("cannot move a folder into itself or one of its descendants")
)

// ValidateName rejects empty names, names with a separator and the dot entries.
func ValidateName(name string) error {
	n := strings.TrimSpace(name)
	switch {
	case n == "", n == ".", n == "..":
		return ErrInvalidName
	case strings.Contains(n, separator), strings.Contains(n, "\\"):
		return ErrInvalidName
	case len(n) > maxNameLen:
		return ErrInvalidName
	}
	return nil
}

// Depth of a folder path, 0 for the owner root.
func Depth(p string) int {
	if p == "" {
		return 0
	}
	return strings.Count(p, separator) + 1
}

// Join returns the path of a folder named name below parentPath ("" for the root).
func Join(parentPath, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if Depth(parentPath) >= MaxDepth {
		return "", ErrMaxDepth
	}
	name = strings.TrimSpace(name)
	if parentPath == "" {
		return name, nil
	}
	return parentPath + separator + name, nil
}

// Parent returns the path of the parent folder, "" for a root folder.
func Parent(p string) string {
	i := strings.LastIndex(p, separator)
	if i < 0 {
		return ""
	}
	return p[:i]
}

// Base returns the folder name of a path.
func Base(p string) string {
	return p[strings.LastIndex(p, separator)+1:]
}

// IsSelfOrDescendant reports whether candidate is root itself or lies below it.
func IsSelfOrDescendant(root, candidate string) bool {
	return candidate == root || strings.HasPrefix(candidate, root+separator)
}

// Rebase rewrites a descendant path after its ancestor moved from oldRoot to newRoot.
func Rebase(p, oldRoot, newRoot string) (string, bool) {
	if !IsSelfOrDescendant(oldRoot, p) {
		return p, false
	}
	return newRoot + p[len(oldRoot):], true
}

// CheckMove validates moving the subtree rooted at src below newParent ("" for the root).
// subtree lists the paths of every descendant of src.
func CheckMove(src, newParent string, subtree []string) (string, error) {
	if newParent != "" && IsSelfOrDescendant(src, newParent) {
		return "", ErrMoveIntoSelf
	}
	dst, err := Join(newParent, Base(src))
	if err != nil {
		return "", err
	}
	for _, p := range subtree {
		moved, _ := Rebase(p, src, dst)
		if Depth(moved) > MaxDepth {
			return "", ErrMaxDepth
		}
	}
	return dst, nil
}

// Rename returns the new path of src when renamed to name.
func Rename(src, name string) (string, error) {
	return Join(Parent(src), name)
}

// SanitizeFileName keeps the base name of an uploaded file and drops characters that would break
// an object key.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", separator))
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == '?', r == '#', r == '%', r == '*', r == ':', r == '"', r == '<', r == '>', r == '|':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == separator {
		return "file"
	}
	return name
}

// ObjectKey is "<ownerType>/<ownerID>/<kind>/<folder path>/<uuid8>-<file>", the folder part
// omitted at the root.
func ObjectKey(ownerType model.OwnerType, ownerID uint, kind model.MediaKind, folderPath, fileName string) string {
	return objectKey(ownerType, ownerID, kind, folderPath, uuid.New().String()[:8], fileName)
}

func objectKey(ownerType model.OwnerType, ownerID uint, kind model.MediaKind, folderPath, id, fileName string) string {
	prefix := fmt.Sprintf("%s/%d/%s", ownerType, ownerID, kind)
	if folderPath != "" {
		prefix += separator + folderPath
	}
	return prefix + separator + id + "-" + SanitizeFileName(fileName)
}

// RekeyObject moves an existing object key into folderPath and/or renames the file, keeping its
// unique prefix.
func RekeyObject(oldKey string, ownerType model.OwnerType, ownerID uint, kind model.MediaKind,
	folderPath, fileName string) string {
	base := path.Base(oldKey)
	id := base
	if i := strings.Index(base, "-"); i > 0 {
		id = base[:i]
	}
	return objectKey(ownerType, ownerID, kind, folderPath, id, fileName)
}

var extensionKinds = map[string]model.MediaKind{
	"jpg": model.MediaPhoto, "jpeg": model.MediaPhoto, "png": model.MediaPhoto, "gif": model.MediaPhoto,
	"bmp": model.MediaPhoto, "webp": model.MediaPhoto, "heic": model.MediaPhoto, "tif": model.MediaPhoto,
	"tiff": model.MediaPhoto, "svg": model.MediaPhoto,
	"mp4": model.MediaVideo, "mov": model.MediaVideo, "avi": model.MediaVideo, "mkv": model.MediaVideo,
	"webm": model.MediaVideo, "wmv": model.MediaVideo, "m4v": model.MediaVideo, "3gp": model.MediaVideo,
}

// Extension returns the lower case extension of a file name without the dot.
func Extension(fileName string) string {
	ext := path.Ext(fileName)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// KindOf infers the media kind from a file name. Anything unknown is a document.
func KindOf(fileName string) model.MediaKind {
	if k, ok := extensionKinds[Extension(fileName)]; ok {
		return k
	}
	return model.MediaDocument
}
