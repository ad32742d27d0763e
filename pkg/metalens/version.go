// Package metalens holds build-level constants shared by the CLI and library.
package metalens

// Version is the metalens release version.
const Version = "0.1.0"
