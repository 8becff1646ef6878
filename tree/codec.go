package tree

import "strings"

// Codec encodes and decodes materialized paths. A path is the ordered chain
// of ancestor ids, oldest first, each preceded by Sep: ",a,b" is the path of
// a node whose parent is b and whose grandparent is the root a. Roots have
// the empty path.
//
// All matching is segment-aware: an id only matches a whole segment, so the
// id "1" never matches inside ",10".
type Codec struct {
	Sep string
}

// RootPath is the path of every root node.
func (c Codec) RootPath() string { return "" }

// ChildPath returns the path of a child of the node at parentPath with parentID.
func (c Codec) ChildPath(parentPath, parentID string) string {
	return parentPath + c.Sep + parentID
}

// Depth counts the separators in path. Roots have depth 0.
func (c Codec) Depth(path string) int {
	if path == "" || c.Sep == "" {
		return 0
	}
	return strings.Count(path, c.Sep)
}

// AncestorIDs splits path into ancestor ids, oldest first. Empty tokens are
// dropped, so a root path or a bare separator yields nothing.
func (c Codec) AncestorIDs(path string) []string {
	if len(path) <= len(c.Sep) {
		return nil
	}
	parts := strings.Split(path, c.Sep)
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// ParentID returns the last id of path, or "" for a root path.
func (c Codec) ParentID(path string) string {
	i := strings.LastIndex(path, c.Sep)
	if path == "" || i < 0 {
		return ""
	}
	return path[i+len(c.Sep):]
}

// RootID returns the oldest ancestor in path, or self when path is a root path.
func (c Codec) RootID(path, self string) string {
	if ids := c.AncestorIDs(path); len(ids) > 0 {
		return ids[0]
	}
	return self
}

// IsPrefixOf reports whether candidatePath lies strictly below parentPath:
// it starts with parentPath+Sep, or with Sep when parentPath is the root path.
func (c Codec) IsPrefixOf(parentPath, candidatePath string) bool {
	return strings.HasPrefix(candidatePath, parentPath+c.Sep)
}

// Under reports whether path equals prefix or continues it with a new segment.
// Under(",a,b", p) holds exactly for the paths of b's children and deeper
// descendants when the node b has the path ",a".
func (c Codec) Under(prefix, path string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || strings.HasPrefix(rest, c.Sep)
}

// HasSegment reports whether id appears as a whole segment of path.
func (c Codec) HasSegment(path, id string) bool {
	if id == "" {
		return false
	}
	needle := c.Sep + id
	for off := 0; ; {
		i := strings.Index(path[off:], needle)
		if i < 0 {
			return false
		}
		end := off + i + len(needle)
		if end == len(path) || strings.HasPrefix(path[end:], c.Sep) {
			return true
		}
		off = off + i + len(c.Sep)
	}
}

// Rebase replaces the leading oldPrefix of path with newPrefix. Paths that do
// not start with oldPrefix are returned unchanged.
func (c Codec) Rebase(path, oldPrefix, newPrefix string) string {
	if !strings.HasPrefix(path, oldPrefix) {
		return path
	}
	return newPrefix + path[len(oldPrefix):]
}

// ValidID reports whether id can be embedded in a path.
func (c Codec) ValidID(id string) bool {
	return id != "" && (c.Sep == "" || !strings.Contains(id, c.Sep))
}
