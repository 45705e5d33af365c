// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"path/filepath"
	"strings"
)

// RelativeIndexFile returns where the file for crate name lives relative to
// the index root. Names are lowercased and sharded by length:
//
//	a        -> 1/a
//	ab       -> 2/ab
//	abc      -> 3/a/abc
//	serde    -> se/rd/serde
//
// An empty name yields "".
func RelativeIndexFile(name string) string {
	name = strings.ToLower(name)
	switch len(name) {
	case 0:
		return ""
	case 1:
		return filepath.Join("1", name)
	case 2:
		return filepath.Join("2", name)
	case 3:
		return filepath.Join("3", name[:1], name)
	default:
		return filepath.Join(name[0:2], name[2:4], name)
	}
}
