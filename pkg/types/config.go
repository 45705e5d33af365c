// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// DatabaseConfig holds settings for the registry database connection.
type DatabaseConfig struct {
	// URL is the database location: postgres://... for the registry,
	// sqlite://path or a bare file path for local fixtures.
	URL string `json:"database_url" yaml:"database_url"`

	// MaxOpenConns caps the connection pool (default 1; the batch is
	// single-writer).
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`

	// ConnectTimeout bounds connection establishment (default 30s).
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
}

// BatchConfig holds settings shared by every batch run.
type BatchConfig struct {
	// Delay is the pause before each unit to reduce database load.
	Delay time.Duration `json:"delay" yaml:"delay"`

	// AssumeYes answers every confirmation prompt with yes.
	AssumeYes bool `json:"yes" yaml:"yes"`

	// ReportPath, when set, receives a YAML run report.
	ReportPath string `json:"report" yaml:"report"`

	// MetricsFile, when set, receives Prometheus metrics in textfile format.
	MetricsFile string `json:"metrics_file" yaml:"metrics_file"`
}

// GitImportConfig holds settings for the git-import command.
type GitImportConfig struct {
	BatchConfig `yaml:",inline"`

	// IndexDir is the local checkout of the index repository.
	IndexDir string `json:"index_dir" yaml:"index_dir"`

	// Revision is checked out before the import; empty leaves HEAD alone.
	Revision string `json:"revision" yaml:"revision"`

	// Since limits the import to files changed after this revision;
	// empty imports every file.
	Since string `json:"since" yaml:"since"`
}

// RegenerateConfig holds settings for the regenerate-index command.
type RegenerateConfig struct {
	BatchConfig `yaml:",inline"`

	// IndexDir is the root of the index tree to normalize and rewrite.
	IndexDir string `json:"index_dir" yaml:"index_dir"`

	// SkipNormalize bypasses phase 1.
	SkipNormalize bool `json:"skip_normalize" yaml:"skip_normalize"`

	// Crates restricts phase 2 to these names; empty means every crate.
	Crates []string `json:"crates" yaml:"crates"`
}
