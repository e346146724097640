package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevels(t *testing.T) {
	tests := []struct {
		input  string
		want   []int
		wantOK bool
	}{
		{"", []int{1, 2, 4, 6, 8}, false},
		{"   ", []int{1, 2, 4, 6, 8}, false},
		{"1,2,4", []int{1, 2, 4}, true},
		{" 3 ", []int{3}, true},
		{"1, 2 ,16", []int{1, 2, 16}, true},
		{"1,,2", []int{1, 2}, true},
		{",,", []int{1, 2, 4, 6, 8}, false},
		{"abc", []int{1, 2, 4, 6, 8}, false},
		{"1,two,3", []int{1, 2, 4, 6, 8}, false},
		{"0,-4,50", []int{1, 1, 30}, true},
		{"8,4,4", []int{8, 4, 4}, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevels(tt.input, MaxConcurrency)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestParseLevelsCustomMax(t *testing.T) {
	got, ok := ParseLevels("5,10,20", 10)
	assert.True(t, ok)
	assert.Equal(t, []int{5, 10, 10}, got)
}

func TestParseLevelsReturnsCopyOfDefaults(t *testing.T) {
	got, _ := ParseLevels("", MaxConcurrency)
	got[0] = 99
	assert.Equal(t, 1, DefaultLevels[0])
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.bin"), []byte("bb"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte("a"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

	files, err := LoadFiles(dir)
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, "a.bin", files[0].Name)
	assert.Equal(t, int64(1), files[0].Size)
	assert.Equal(t, filepath.Join(dir, "a.bin"), files[0].Path)
	assert.Equal(t, "b.bin", files[1].Name)
	assert.Equal(t, int64(2), files[1].Size)
}

func TestLoadFilesEmptyDir(t *testing.T) {
	_, err := LoadFiles(t.TempDir())
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestLoadFilesMissingDir(t *testing.T) {
	_, err := LoadFiles(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoFiles)
}
