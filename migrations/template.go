package migrations

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"text/template"
	"time"
)

// idLayout is the timestamp prefix of migration ids. Ids sort by creation.
const idLayout = "20060102150405"

var (
	validName = regexp.MustCompile(`\A[a-z0-9_]+\z`)

	migrationTemplate = template.Must(template.New("migration").Parse(`package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	register(&Migration{
		Migration: &migrate.Migration{
			Id:   "{{ .ID }}",
			Up:   []string{},
			Down: []string{},
		},
{{- if .PostDeployment }}
		PostDeployment: true,
{{- end }}
	})
}
`))
)

// ErrInvalidName is returned for migration names that are not lower case
// alphanumerics and underscores.
var ErrInvalidName = errors.New("name can only contain lower case alphanumeric and underscore characters")

// NewFromTemplate writes an empty migration called name to dir and returns
// the path of the new file. The id of the migration is prefixed with the
// current UTC time.
func NewFromTemplate(dir, name string, postDeployment bool) (string, error) {
	if !validName.MatchString(name) {
		return "", ErrInvalidName
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return "", fmt.Errorf("migrations directory %q not found", dir)
	}

	id := time.Now().UTC().Format(idLayout) + "_" + name
	path := filepath.Join(dir, id+".go")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating migration file: %w", err)
	}
	if err := render(f, id, postDeployment); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing migration file: %w", err)
	}

	return path, nil
}

func render(w io.Writer, id string, postDeployment bool) error {
	err := migrationTemplate.Execute(w, struct {
		ID             string
		PostDeployment bool
	}{id, postDeployment})
	if err != nil {
		return fmt.Errorf("rendering migration %s: %w", id, err)
	}
	return nil
}
