package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"storagesim/internal/state"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Data is passed to every dashboard template.
type Data struct {
	StateTable       string
	DegradationTable string
}

// DefaultData returns the table names used by the GreptimeDB writer,
// honouring GREPTIMEDB_TABLE and GREPTIMEDB_DEGRADATION_TABLE.
func DefaultData() Data {
	d := Data{StateTable: state.StatesTableName, DegradationTable: "storage_degradation"}
	if env := os.Getenv("GREPTIMEDB_DEGRADATION_TABLE"); env != "" {
		d.DegradationTable = env
	}
	return d
}

// Render parses dashboard templates and writes rendered dashboards to outDir.
func Render(outDir string, data Data) ([]string, error) {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	names, err := templates.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	var written []string
	for _, entry := range names {
		t, err := template.New(entry.Name()).Funcs(funcMap).ParseFS(templates, "templates/"+entry.Name())
		if err != nil {
			return nil, err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(entry.Name(), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return nil, err
		}
		if err := t.Execute(f, data); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
		written = append(written, outPath)
	}
	return written, nil
}
