package pipeline

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// lookupFixmes walks dir and returns the files containing a FIXME marker,
// sorted. One hit per file is enough; the point is telling the operator
// which files still need manual attention.
func lookupFixmes(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		hit, err := containsFixme(path)
		if err != nil {
			return nil // skip unreadable files
		}
		if hit {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func containsFixme(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), "FIXME") {
			return true, nil
		}
	}
	return false, scanner.Err()
}
