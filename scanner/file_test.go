package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func init() {
	logger.Silence()
}

func touch(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestGetFilesDir(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a", "movie.MKV"), "x")
	touch(t, filepath.Join(root, "a", "movie.nfo"), "x")
	touch(t, filepath.Join(root, "sample", "sample.mkv"), "x")
	touch(t, filepath.Join(root, "b", "c", "other.mp4"), "x")

	files := GetFilesDir(root, []string{".mkv", ".mp4"}, nil, []string{"sample"})
	sort.Strings(files)
	assert.Equal(t, []string{
		filepath.Join(root, "a", "movie.MKV"),
		filepath.Join(root, "b", "c", "other.mp4"),
	}, files)

	assert.Len(t, GetFilesDir(root, nil, nil, nil), 4)
	assert.Empty(t, GetFilesDir(filepath.Join(root, "missing"), nil, nil, nil))
}

func TestGetFolderSize(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.bin"), "12345")
	touch(t, filepath.Join(root, "sub", "b.bin"), "123")
	if size := GetFolderSize(root); size != 8 {
		t.Errorf("GetFolderSize() = %d, expected 8", size)
	}
}

func TestMoveFileUniqueName(t *testing.T) {
	root := t.TempDir()
	src1 := filepath.Join(root, "src1", "movie.mkv")
	src2 := filepath.Join(root, "src2", "movie.mkv")
	touch(t, src1, "one")
	touch(t, src2, "two")
	dst := filepath.Join(root, "target", "movie.mkv")

	got, err := MoveFile(src1, dst)
	require.NoError(t, err)
	assert.Equal(t, dst, got)

	got, err = MoveFile(src2, dst)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "target", "movie (1).mkv"), got)
	assert.False(t, exists(src2))

	data, _ := os.ReadFile(dst)
	assert.Equal(t, "one", string(data))
}

func TestMoveFiles(t *testing.T) {
	root := t.TempDir()
	video := filepath.Join(root, "src", "a.mkv")
	sub := filepath.Join(root, "src", "a.eng.srt")
	touch(t, video, "v")
	touch(t, sub, "s")

	ok, moved := MoveFiles([]string{video, sub}, filepath.Join(root, "dst"), "Movie (2000)", []string{".mkv"}, []string{".srt"})
	assert.True(t, ok)
	assert.Equal(t, 2, moved)
	assert.True(t, exists(filepath.Join(root, "dst", "Movie (2000).mkv")))
	assert.True(t, exists(filepath.Join(root, "dst", "a.eng.srt")))
}

func TestCheckDisallowed(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(root, "release")
	touch(t, filepath.Join(folder, "movie.mkv"), "x")
	touch(t, filepath.Join(folder, "movie.exe"), "x")

	assert.False(t, CheckDisallowed(folder, nil, false))
	assert.False(t, CheckDisallowed(folder, []string{".rar"}, false))
	assert.True(t, CheckDisallowed(folder, []string{".exe"}, true))
	assert.False(t, exists(folder))
}

func TestRemoveEmptyDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b", "c"), 0o755))
	touch(t, filepath.Join(root, "d", "keep.txt"), "x")

	removed, err := RemoveEmptyDirs(root)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.False(t, exists(filepath.Join(root, "a")))
	assert.True(t, exists(filepath.Join(root, "d", "keep.txt")))
	assert.True(t, exists(root))
}

func TestRemoveRedundantDirs(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "Album", "Album", "CD", "01.flac"), "x")
	touch(t, filepath.Join(root, "Album", "Thumbs.db"), "x")
	touch(t, filepath.Join(root, "Other", "01.flac"), "x")
	touch(t, filepath.Join(root, "Other", "02.flac"), "x")

	collapsed, err := RemoveRedundantDirs(root, []string{"thumbs.db", "*.url"})
	require.NoError(t, err)
	assert.Equal(t, 2, collapsed)
	assert.True(t, exists(filepath.Join(root, "Album", "01.flac")))
	assert.False(t, exists(filepath.Join(root, "Album", "Thumbs.db")))
	assert.True(t, exists(filepath.Join(root, "Other", "02.flac")))
}

func TestRenameFolderToCommon(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "Wong Kar-wai", "In the Mood for Love (2000)", "a.mkv"), "a")
	touch(t, filepath.Join(root, "王家卫", "Chungking Express (1994)", "b.mkv"), "b")
	touch(t, filepath.Join(root, "王家卫", "In the Mood for Love (2000)", "a.mkv"), "c")

	err := RenameFolderToCommon(root, []string{"Wong Kar-wai", "王家卫"}, "Wong Kar-wai 王家卫")
	require.NoError(t, err)

	common := filepath.Join(root, "Wong Kar-wai 王家卫")
	assert.True(t, exists(filepath.Join(common, "Chungking Express (1994)", "b.mkv")))
	assert.True(t, exists(filepath.Join(common, "In the Mood for Love (2000)", "a.mkv")))
	assert.True(t, exists(filepath.Join(common, "In the Mood for Love (2000)", "a (1).mkv")))
	assert.False(t, exists(filepath.Join(root, "王家卫")))
	assert.False(t, exists(filepath.Join(root, "Wong Kar-wai")))
}

func TestMoveFolder(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "src", "a.flac"), "a")
	touch(t, filepath.Join(root, "dst", "b.flac"), "b")

	require.NoError(t, MoveFolder(filepath.Join(root, "src"), filepath.Join(root, "new", "album")))
	assert.True(t, exists(filepath.Join(root, "new", "album", "a.flac")))
	assert.False(t, exists(filepath.Join(root, "src")))

	require.NoError(t, MoveFolder(filepath.Join(root, "new", "album"), filepath.Join(root, "dst")))
	assert.True(t, exists(filepath.Join(root, "dst", "a.flac")))
	assert.True(t, exists(filepath.Join(root, "dst", "b.flac")))
	assert.False(t, exists(filepath.Join(root, "new", "album")))
}

func TestIsJunk(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{name: "Thumbs.db", expected: true},
		{name: "link.URL", expected: true},
		{name: "movie.mkv", expected: false},
	}
	for _, tt := range tests {
		if result := IsJunk(tt.name, []string{"thumbs.db", "*.url"}); result != tt.expected {
			t.Errorf("IsJunk(%q) = %v, expected %v", tt.name, result, tt.expected)
		}
	}
}

func TestJSONAndLines(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "out", "data.json")
	in := map[string]int{"a": 1, "b": 2}
	require.NoError(t, WriteJSON(file, in))
	var out map[string]int
	require.NoError(t, ReadJSON(file, &out))
	assert.Equal(t, in, out)

	lines := filepath.Join(root, "lines.txt")
	require.NoError(t, WriteLines(lines, []string{"one", "two"}))
	require.NoError(t, AppendLine(lines, "three"))
	got, err := ReadLines(lines)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestReadTextGB18030(t *testing.T) {
	text := "REM COMMENT \"我们的时间是一个人在中国这个大家都有的地方\"\n" +
		"REM COMMENT \"他们说这是我的生活也是你的时候\"\n" +
		"PERFORMER \"周杰伦\"\nTITLE \"魔杰座\"\nFILE \"周杰伦 - 魔杰座.flac\" WAVE\n"
	encoded, err := simplifiedchinese.GB18030.NewEncoder().String(text)
	require.NoError(t, err)
	file := filepath.Join(t.TempDir(), "album.cue")
	touch(t, file, encoded)

	got, err := ReadText(file)
	require.NoError(t, err)
	assert.Equal(t, text, got)

	converted, err := ConvertToUTF8(file)
	require.NoError(t, err)
	assert.True(t, converted)
	raw, _ := os.ReadFile(file)
	assert.Equal(t, text, string(raw))

	converted, err = ConvertToUTF8(file)
	require.NoError(t, err)
	assert.False(t, converted)
}
