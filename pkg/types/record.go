// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// DependencyKind classifies how a dependency is used by the depending crate.
type DependencyKind string

const (
	KindNormal DependencyKind = "normal"
	KindBuild  DependencyKind = "build"
	KindDev    DependencyKind = "dev"
)

// Dependency is one entry in an IndexRecord's dependency set. Field order
// matches the index line format and must not be rearranged.
type Dependency struct {
	// Name is the name the dependency is referenced by. When the dependency
	// is renamed, Package holds the real crate name.
	Name string `json:"name"`

	// Req is the version requirement (e.g. "^1.0").
	Req string `json:"req"`

	// Features lists the features enabled on the dependency.
	Features []string `json:"features"`

	Optional        bool `json:"optional"`
	DefaultFeatures bool `json:"default_features"`

	// Target is the platform cfg the dependency applies to, or nil for all.
	Target *string `json:"target"`

	// Kind is nil in very old index entries.
	Kind *DependencyKind `json:"kind"`

	Package string `json:"package,omitempty"`

	// Extra holds members not modelled above, such as "registry".
	Extra []ExtraField `json:"-"`
}

// IndexRecord is one published version of a crate as stored on a single
// line of an index file. Field order matches the index line format.
type IndexRecord struct {
	Name     string              `json:"name"`
	Vers     string              `json:"vers"`
	Deps     []Dependency        `json:"deps"`
	Cksum    string              `json:"cksum"`
	Features map[string][]string `json:"features"`

	// Features2 holds features that use the "dep:" or "?/" syntax, which
	// older clients cannot parse. It is present only when V is 2.
	Features2 map[string][]string `json:"features2,omitempty"`

	Yanked *bool `json:"yanked"`

	// Links is the native library name the crate links against. The
	// database only ever fills it when it is NULL there.
	Links *string `json:"links"`

	RustVersion string `json:"rust_version,omitempty"`

	// V is the index format version; zero means 1 and is omitted.
	V int `json:"v,omitempty"`

	// Extra holds members not modelled above, such as "pubtime". They are
	// passed through unchanged.
	Extra []ExtraField `json:"-"`
}

// ID returns the "name#vers" identity used in operator messages.
func (r IndexRecord) ID() string {
	return r.Name + "#" + r.Vers
}
