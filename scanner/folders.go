package scanner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// subDirs returns all directories below root, deepest first. root itself is
// not included.
func subDirs(root string) ([]string, error) {
	dirs := make([]string, 0, 20)
	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			return nil
		},
		PostChildrenCallback: func(osPathname string, de *godirwalk.Dirent) error {
			if filepath.Clean(osPathname) != filepath.Clean(root) {
				dirs = append(dirs, osPathname)
			}
			return nil
		},
		ErrorCallback: func(osPathname string, err error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
		Unsorted: true,
	})
	return dirs, err
}

// IsJunk reports whether name matches one of the junk patterns. Patterns are
// shell globs compared case-insensitive.
func IsJunk(name string, junk []string) bool {
	lower := strings.ToLower(name)
	for idx := range junk {
		if ok, _ := filepath.Match(strings.ToLower(junk[idx]), lower); ok {
			return true
		}
	}
	return false
}

// RemoveEmptyDirs removes every empty directory below root, bottom-up.
// root itself is never removed.
func RemoveEmptyDirs(root string) (int, error) {
	dirs, err := subDirs(root)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) != 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			logger.Log.Error("Folder could not be removed: ", dir, " Error: ", err)
			continue
		}
		logger.Log.Debug("Empty folder removed: ", dir)
		removed++
	}
	return removed, nil
}

// RemoveRedundantDirs collapses directories whose only entry, ignoring junk
// files, is a single sub directory. The child's content moves up one level.
// Returns the number of collapsed directories.
func RemoveRedundantDirs(root string, junk []string) (int, error) {
	dirs, err := subDirs(root)
	if err != nil {
		return 0, err
	}
	collapsed := 0
	for _, dir := range dirs {
		for {
			child, ok := singleChildDir(dir, junk)
			if !ok {
				break
			}
			if err := collapseInto(dir, child, junk); err != nil {
				return collapsed, errors.Wrapf(err, "collapse %s", child)
			}
			logger.Log.Debug("Redundant folder collapsed: ", child)
			collapsed++
		}
	}
	return collapsed, nil
}

func singleChildDir(dir string, junk []string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var child string
	for _, entry := range entries {
		if !entry.IsDir() && IsJunk(entry.Name(), junk) {
			continue
		}
		if !entry.IsDir() || child != "" {
			return "", false
		}
		child = filepath.Join(dir, entry.Name())
	}
	return child, child != ""
}

func collapseInto(dir, child string, junk []string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() && IsJunk(entry.Name(), junk) {
			os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	// the child may contain an entry with its own name
	tmp := UniquePath(filepath.Join(dir, ".collapse-"+filepath.Base(child)))
	if err := os.Rename(child, tmp); err != nil {
		return err
	}
	if err := mergeDir(tmp, dir); err != nil {
		return err
	}
	return os.Remove(tmp)
}

// mergeDir moves the content of src into dst. Directories present in both are
// merged recursively, conflicting files get a numbered name.
func mergeDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if info, err := os.Stat(to); err == nil && info.IsDir() {
				if err := mergeDir(from, to); err != nil {
					return err
				}
				if err := os.Remove(from); err != nil {
					return err
				}
				continue
			}
			if err := os.Rename(from, UniquePath(to)); err != nil {
				return err
			}
			continue
		}
		if _, err := MoveFile(from, to); err != nil {
			return err
		}
	}
	return nil
}

// RenameFolderToCommon merges folders (names relative to parent) denoting the
// same entity into parent/common.
func RenameFolderToCommon(parent string, folders []string, common string) error {
	common = logger.Path(common, false)
	if common == "" {
		return errors.Wrap(logger.ErrInvalidInput, "empty common folder name")
	}
	target := filepath.Join(parent, common)
	for _, folder := range folders {
		if folder == common {
			continue
		}
		src := filepath.Join(parent, folder)
		info, err := os.Stat(src)
		if err != nil || !info.IsDir() {
			logger.Log.Warn("Folder not found: ", src)
			continue
		}
		if _, err := os.Stat(target); os.IsNotExist(err) {
			if err := os.Rename(src, target); err != nil {
				return errors.Wrapf(err, "rename %s", src)
			}
			logger.Log.Info("Folder renamed: ", src, " -> ", target)
			continue
		}
		if err := mergeDir(src, target); err != nil {
			return errors.Wrapf(err, "merge %s", src)
		}
		if _, err := RemoveEmptyDirs(src); err != nil {
			return err
		}
		if err := os.Remove(src); err != nil {
			logger.Log.Warn("Folder could not be removed: ", src, " Error: ", err)
		}
		logger.Log.Info("Folder merged: ", src, " -> ", target)
	}
	return nil
}

// MoveFolder moves src to dst. An existing dst is merged with src.
func MoveFolder(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(dst); os.IsNotExist(err) {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
	}
	if err := mergeDir(src, dst); err != nil {
		return errors.Wrapf(err, "merge %s", src)
	}
	if _, err := RemoveEmptyDirs(src); err != nil {
		return err
	}
	return os.Remove(src)
}
