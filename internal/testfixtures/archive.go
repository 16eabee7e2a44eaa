// Package testfixtures builds plugin archives and directories for tests.
package testfixtures

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// ZipEntry is one file inside a fixture archive. Entries are written in
// slice order, which is the order archive walkers observe them.
type ZipEntry struct {
	Name string
	Data []byte
}

// Text creates an entry with string content.
func Text(name, data string) ZipEntry {
	return ZipEntry{Name: name, Data: []byte(data)}
}

// ZipBytes builds an in-memory zip archive from entries.
func ZipBytes(t *testing.T, entries ...ZipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.Create(e.Name)
		if err != nil {
			t.Fatalf("failed to add %s to fixture archive: %v", e.Name, err)
		}
		if _, err := f.Write(e.Data); err != nil {
			t.Fatalf("failed to write %s to fixture archive: %v", e.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to finish fixture archive: %v", err)
	}
	return buf.Bytes()
}

// WriteZip builds a zip archive from entries and writes it under dir.
// It returns the archive path.
func WriteZip(t *testing.T, dir, name string, entries ...ZipEntry) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, ZipBytes(t, entries...), 0o644); err != nil {
		t.Fatalf("failed to write fixture archive %s: %v", name, err)
	}
	return path
}

// WriteTree materializes entries as plain files under dir, creating
// intermediate directories.
func WriteTree(t *testing.T, dir string, entries ...ZipEntry) {
	t.Helper()

	for _, e := range entries {
		path := filepath.Join(dir, filepath.FromSlash(e.Name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create fixture directory for %s: %v", e.Name, err)
		}
		if err := os.WriteFile(path, e.Data, 0o644); err != nil {
			t.Fatalf("failed to write fixture file %s: %v", e.Name, err)
		}
	}
}

// Manifest renders a minimal plugin descriptor document.
func Manifest(id, version string, extra ...string) string {
	doc := "<idea-plugin>\n"
	if id != "" {
		doc += "  <id>" + id + "</id>\n"
	}
	if version != "" {
		doc += "  <version>" + version + "</version>\n"
	}
	for _, x := range extra {
		doc += "  " + x + "\n"
	}
	doc += "</idea-plugin>"
	return doc
}
