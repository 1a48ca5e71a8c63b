package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Zone classifies where in the tree a path lives; the lifecycle coordinator
// dispatches on it.
type Zone int

const (
	ZoneOther Zone = iota
	ZoneImport
	ZoneStorage
	ZoneUncategorized
	ZoneDuplicates
	ZoneError
	ZoneDrafts
	ZoneTemplates
)

// String implements fmt.Stringer.
func (z Zone) String() string {
	switch z {
	case ZoneImport:
		return "import"
	case ZoneStorage:
		return "storage"
	case ZoneUncategorized:
		return "uncategorized"
	case ZoneDuplicates:
		return "duplicates"
	case ZoneError:
		return "error"
	case ZoneDrafts:
		return "drafts"
	case ZoneTemplates:
		return "templates"
	case ZoneOther:
		return "other"
	default:
		return fmt.Sprintf("Zone(%d)", int(z))
	}
}

// Layout names the zone directories relative to the vault root.
type Layout struct {
	Import        string
	Storage       string
	Uncategorized string
	Duplicates    string
	Error         string
	Drafts        string
	Templates     string
}

type zoneTable struct {
	byZone map[Zone]string // zone -> absolute dir
}

func newZoneTable(root string, l Layout) zoneTable {
	return zoneTable{byZone: map[Zone]string{
		ZoneImport:        filepath.Join(root, l.Import),
		ZoneStorage:       filepath.Join(root, l.Storage),
		ZoneUncategorized: filepath.Join(root, l.Uncategorized),
		ZoneDuplicates:    filepath.Join(root, l.Duplicates),
		ZoneError:         filepath.Join(root, l.Error),
		ZoneDrafts:        filepath.Join(root, l.Drafts),
		ZoneTemplates:     filepath.Join(root, l.Templates),
	}}
}

func (t zoneTable) dirs() []string {
	out := make([]string, 0, len(t.byZone))
	for _, d := range t.byZone {
		out = append(out, d)
	}
	return out
}

// ZoneOf returns the zone containing abs, or ZoneOther for paths directly
// under the root or in unmanaged subtrees.
func (v *Vault) ZoneOf(abs string) Zone {
	for zone, dir := range v.zones.byZone {
		if abs == dir || strings.HasPrefix(abs, dir+string(os.PathSeparator)) {
			return zone
		}
	}
	return ZoneOther
}

// ZoneDir returns the absolute directory of zone.
func (v *Vault) ZoneDir(zone Zone) string {
	return v.zones.byZone[zone]
}

// CategoryPath returns the storage directory for a category/subcategory pair.
// An empty subcategory maps to the category directory itself.
func (v *Vault) CategoryPath(category, subcategory string) string {
	dir := filepath.Join(v.ZoneDir(ZoneStorage), category)
	if subcategory != "" {
		dir = filepath.Join(dir, subcategory)
	}
	return dir
}

// CategoryFromPath derives (category, subcategory) from a path inside the
// storage zone. It is the inverse of CategoryPath, used for forced
// classification on manual moves.
func (v *Vault) CategoryFromPath(abs string) (string, string, bool) {
	storage := v.ZoneDir(ZoneStorage)
	rel, err := filepath.Rel(storage, filepath.Dir(abs))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	category := parts[0]
	subcategory := ""
	if len(parts) > 1 {
		subcategory = parts[1]
	}
	return category, subcategory, true
}
