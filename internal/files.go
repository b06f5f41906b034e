package internal

import (
	"os"
	"path/filepath"
	"sort"
)

func Directory(file string) (files []string, err error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{filepath.Base(file)}, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() {
		nerr := f.Close()
		if err == nil {
			err = nerr
		}
	}()
	return f.Readdirnames(0)
}

func FullPathname(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		return filename, nil
	}
	wd, err := os.Getwd()
	return filepath.Join(wd, filename), err
}

// ExpandInputs replaces each directory in paths by the regular files it
// contains whose extension is one of exts, in lexical order. Plain
// files are kept as given.
func ExpandInputs(paths []string, exts ...string) (result []string, err error) {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			result = append(result, path)
			continue
		}
		names, err := Directory(path)
		if err != nil {
			return nil, err
		}
		sort.Strings(names)
		for _, name := range names {
			for _, ext := range exts {
				if filepath.Ext(name) == ext {
					result = append(result, filepath.Join(path, name))
					break
				}
			}
		}
	}
	return result, nil
}
