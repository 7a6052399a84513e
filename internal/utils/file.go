package utils

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	imageExts = []string{"jpg", "jpeg", "png", "webp", "bmp"}
	videoExts = []string{"mp4", "avi", "mkv"}
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the lowercase file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

func hasExt(filename string, exts []string) bool {
	ext := GetFileExtension(filename)
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// IsImageFile checks if a file has a still image extension
func IsImageFile(filename string) bool {
	return hasExt(filename, imageExts)
}

// IsVideoFile checks if a file has one of the accepted video container extensions
func IsVideoFile(filename string) bool {
	return hasExt(filename, videoExts)
}

// VideoExtensions returns the accepted video extensions, for messages
func VideoExtensions() []string {
	return append([]string(nil), videoExts...)
}

// FrameFilename builds the dump path for an annotated frame
func FrameFilename(outputDir, prefix string, seq uint64, format string) string {
	if format == "" {
		format = "jpg"
	}
	return filepath.Join(outputDir, fmt.Sprintf("%s%08d.%s", prefix, seq, format))
}

// ListImageFiles lists the still images directly inside dir, sorted by name
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && IsImageFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	return strings.Trim(result, " .")
}

// RedactDSN hides the password of a database URL so it can be logged
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// FormatDuration formats a duration rounded to milliseconds
func FormatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
