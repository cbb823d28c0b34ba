// Package templates embeds the default progress document and the
// per-phase agent prompt files.
package templates

import "embed"

//go:embed progress.md prompts
var FS embed.FS
