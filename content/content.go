// Package content embeds the shipped assessment documents.
package content

import (
	"embed"
	"io/fs"
)

//go:embed assessments/*.yaml
var files embed.FS

// Assessments returns the embedded assessment documents rooted at their directory.
func Assessments() fs.FS {
	sub, err := fs.Sub(files, "assessments")
	if err != nil {
		panic(err)
	}
	return sub
}
