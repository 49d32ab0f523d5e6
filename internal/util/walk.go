// Copyright 2025 The Bake Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ignoredDirs are always excluded from a walk, regardless of globs,
// since they hold VCS metadata rather than build inputs.
var ignoredDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	".bake":        true,
	"node_modules": true,
}

// WalkFiles returns every regular file under root, relative to root,
// sorted lexicographically, skipping VCS/build metadata directories.
func WalkFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// MatchGlobs returns every file under root matching any of globs
// (relative patterns, evaluated with filepath.Match semantics against
// each candidate's slash-relative path and base name), deduplicated and
// sorted. An empty globs list matches every file under root.
func MatchGlobs(root string, globs []string) ([]string, error) {
	all, err := WalkFiles(root)
	if err != nil {
		return nil, err
	}
	if len(globs) == 0 {
		return all, nil
	}

	seen := make(map[string]bool, len(all))
	var out []string
	for _, g := range globs {
		for _, candidate := range all {
			if seen[candidate] {
				continue
			}
			matched, mErr := filepath.Match(g, candidate)
			if mErr != nil {
				return nil, mErr
			}
			if !matched {
				matched, _ = filepath.Match(g, filepath.Base(candidate))
			}
			if matched {
				seen[candidate] = true
				out = append(out, candidate)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
