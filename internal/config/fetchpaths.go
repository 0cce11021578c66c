// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"path"
	"strings"

	"github.com/holomush/scriptkit/internal/usererr"
)

// FetchPath is one file to download into the interpreter filesystem.
type FetchPath struct {
	URL  string
	Path string
}

// FetchPaths expands the fetch entries into individual downloads.
//
// With files, each file is fetched from from/file into to_folder/file.
// Without files, from is fetched into to_folder/to_file, where to_file
// defaults to the last segment of from.
func (c AppConfig) FetchPaths() ([]FetchPath, error) {
	for _, f := range c.Fetch {
		if f.Files != nil && f.ToFile != "" {
			return nil, usererr.BadConfig("cannot use 'to_file' and 'files' parameters together")
		}
		if f.Files == nil && f.ToFile == "" && strings.HasSuffix(f.From, "/") {
			return nil, usererr.BadConfig(
				"couldn't determine the filename from the path %s, please supply 'to_file' parameter", f.From)
		}
	}

	var out []FetchPath
	for _, f := range c.Fetch {
		folder := f.ToFolder
		if folder == "" {
			folder = "."
		}
		if f.Files != nil {
			for _, name := range f.Files {
				out = append(out, FetchPath{
					URL:  joinPaths(f.From, name),
					Path: joinPaths(folder, name),
				})
			}
			continue
		}
		name := f.ToFile
		if name == "" {
			name = f.From[strings.LastIndex(f.From, "/")+1:]
		}
		out = append(out, FetchPath{URL: f.From, Path: joinPaths(folder, name)})
	}
	return out, nil
}

// joinPaths joins non-empty parts with single slashes, keeping a leading
// slash and any URL scheme intact.
func joinPaths(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" && p != "." {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "."
	}

	out := kept[0]
	for _, p := range kept[1:] {
		out = strings.TrimRight(out, "/") + "/" + strings.TrimLeft(p, "/")
	}
	if strings.Contains(out, "://") {
		return out
	}
	return path.Clean(out)
}
