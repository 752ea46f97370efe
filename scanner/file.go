package scanner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/karrick/godirwalk"
	"github.com/sirupsen/logrus"
)

func extMatches(file string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(file))
	for idx := range exts {
		if exts[idx] == ext {
			return true
		}
	}
	return false
}

func pathBlocked(path string, blocked []string) bool {
	lower := strings.ToLower(path)
	for idx := range blocked {
		if blocked[idx] == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(blocked[idx])) {
			return true
		}
	}
	return false
}

// GetFilesDir lists all files below rootpath whose extension is in filetypes
// or filetypesNoRename. Empty extension lists match every file. Paths
// containing one of the blocked fragments are skipped.
func GetFilesDir(rootpath string, filetypes []string, filetypesNoRename []string, blocked []string) []string {
	list := make([]string, 0, 100)
	if _, err := os.Stat(rootpath); os.IsNotExist(err) {
		logger.Log.Error("Path not found: ", rootpath)
		return list
	}
	all := len(filetypes) == 0 && len(filetypesNoRename) == 0
	err := godirwalk.Walk(rootpath, &godirwalk.Options{
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			if !all && !extMatches(osPathname, filetypes) && !extMatches(osPathname, filetypesNoRename) {
				return nil
			}
			dir, _ := filepath.Split(osPathname)
			if pathBlocked(dir, blocked) {
				return nil
			}
			list = append(list, osPathname)
			return nil
		},
		ErrorCallback: func(osPathname string, err error) godirwalk.ErrorAction {
			logger.Log.WithFields(logrus.Fields{"path": osPathname}).Debug("walk error: ", err)
			return godirwalk.SkipNode
		},
		Unsorted: true,
	})
	if err != nil {
		logger.Log.Error("Walk failed for ", rootpath, " Error: ", err)
	}
	return list
}

func GetFolderSize(rootpath string) int64 {
	var size int64
	if _, err := os.Stat(rootpath); os.IsNotExist(err) {
		logger.Log.Error("Path not found: ", rootpath)
		return 0
	}
	err := godirwalk.Walk(rootpath, &godirwalk.Options{
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			if info, err := os.Stat(osPathname); err == nil {
				size += info.Size()
			}
			return nil
		},
		ErrorCallback: func(osPathname string, err error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
		Unsorted: true,
	})
	if err != nil {
		logger.Log.Error("Walk failed for ", rootpath, " Error: ", err)
	}
	return size
}

func GetFileSize(file string) int64 {
	info, err := os.Stat(file)
	if err != nil {
		logger.Log.Error("File not found: ", file)
		return 0
	}
	return info.Size()
}

// UniquePath returns path if it does not exist, otherwise the first free
// "name (n).ext" variant.
func UniquePath(path string) string {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := base + " (" + strconv.Itoa(i) + ")" + ext
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// MoveFile moves src to dst and returns the final location. An existing dst
// is never overwritten; a numbered name is chosen instead. Moves across
// devices fall back to copy and remove.
func MoveFile(src, dst string) (string, error) {
	if src == dst {
		return dst, nil
	}
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	dst = UniquePath(dst)
	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	}
	if err := copyFileContents(src, dst); err != nil {
		os.Remove(dst)
		return "", err
	}
	if err := os.Remove(src); err != nil {
		return dst, fmt.Errorf("failed removing original file: %w", err)
	}
	return dst, nil
}

// MoveFiles moves every matching file into target. Files with an extension
// from filetypesNoRename keep their name, the others are renamed to newname.
func MoveFiles(files []string, target string, newname string, filetypes []string, filetypesNoRename []string) (bool, int) {
	moved := 0
	for idx := range files {
		if _, err := os.Stat(files[idx]); os.IsNotExist(err) {
			logger.Log.Error("File not found: ", files[idx])
			continue
		}
		ok := len(filetypes) == 0
		norename := false
		if !ok && extMatches(files[idx], filetypes) {
			ok = true
		} else if !ok && extMatches(files[idx], filetypesNoRename) {
			ok = true
			norename = true
		}
		if !ok {
			continue
		}
		name := newname + filepath.Ext(files[idx])
		if newname == "" || norename {
			name = filepath.Base(files[idx])
		}
		newpath, err := MoveFile(files[idx], filepath.Join(target, name))
		if err != nil {
			logger.Log.Error("File could not be moved: ", files[idx], " Error: ", err)
			continue
		}
		logger.Log.Debug("File moved from ", files[idx], " to ", newpath)
		moved++
	}
	return moved == len(files), moved
}

func RemoveFiles(files []string, filetypes []string) int {
	removed := 0
	for idx := range files {
		if len(filetypes) >= 1 && !extMatches(files[idx], filetypes) {
			continue
		}
		if err := RemoveFile(files[idx]); err == nil {
			removed++
		}
	}
	return removed
}

func RemoveFile(file string) error {
	if _, err := os.Stat(file); os.IsNotExist(err) {
		logger.Log.Error("File not found: ", file)
		return err
	}
	err := os.Remove(file)
	if err != nil {
		logger.Log.Error("File could not be removed: ", file, " Error: ", err)
		return err
	}
	logger.Log.Debug("File removed: ", file)
	return nil
}

// CheckDisallowed reports whether folder contains a path fragment from
// disallowed. With removefolder set the folder is deleted.
func CheckDisallowed(folder string, disallowed []string, removefolder bool) bool {
	if len(disallowed) == 0 {
		return false
	}
	if _, err := os.Stat(folder); os.IsNotExist(err) {
		return false
	}
	filesleft := GetFilesDir(folder, nil, nil, nil)
	for idx := range filesleft {
		rel := strings.TrimPrefix(filesleft[idx], folder)
		if !pathBlocked(rel, disallowed) {
			continue
		}
		logger.Log.Warning(filesleft[idx], " is not allowed in the path!")
		if removefolder {
			if err := os.RemoveAll(folder); err != nil {
				logger.Log.Error("Folder could not be removed: ", folder, " Error: ", err)
			}
		}
		return true
	}
	return false
}

// CleanUpFolder removes folder when the remaining content is at most
// cleanupsizeMB megabytes.
func CleanUpFolder(folder string, cleanupsizeMB int) bool {
	if _, err := os.Stat(folder); os.IsNotExist(err) || cleanupsizeMB < 1 {
		return false
	}
	leftsize := GetFolderSize(folder)
	logger.Log.Debug("Left size: ", logger.FormatSize(leftsize))
	if int64(cleanupsizeMB) < leftsize/1024/1024 {
		return false
	}
	if err := os.RemoveAll(folder); err != nil {
		logger.Log.Error("Folder could not be removed: ", folder, " Error: ", err)
		return false
	}
	logger.Log.Debug("Folder removed: ", folder)
	return true
}

func copyFileContents(src, dst string) (err error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return
	}
	defer func() {
		cerr := dstFile.Close()
		if err == nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(dstFile, srcFile); err != nil {
		return
	}
	err = dstFile.Sync()
	return
}
