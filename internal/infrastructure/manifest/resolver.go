// Package manifest locates and merges plugin descriptors inside plugin
// distributions: plain directories, zip/jar archives, one level of nested
// archives, and lib/ folders of sibling archives.
package manifest

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"plugincheck.dev/cli/internal/core/descriptor"
	"plugincheck.dev/cli/internal/core/problems"
	"plugincheck.dev/cli/internal/errs"
)

const (
	// manifestDir is the conventional directory holding plugin descriptors.
	manifestDir = "META-INF"
	// defaultDescriptor is the canonical primary descriptor name.
	defaultDescriptor = "plugin.xml"
)

// metaInfXML matches descriptor candidates inside an archive. Group 2 is
// the path relative to the manifest directory and keys the document index.
var metaInfXML = regexp.MustCompile(`^([^/]*/)?META-INF/((?:[^/]+/)*[\w-]+\.xml)$`)

// libArchive matches archives bundled under a lib/ directory.
var libArchive = regexp.MustCompile(`^([^/]+/)?lib/[^/]+\.(jar|zip)$`)

// Resolver resolves plugin descriptors from plugin roots on disk. Each
// Resolve call carries its own document index and hint list, so independent
// calls may run concurrently.
type Resolver struct {
	log *slog.Logger
}

// NewResolver creates a descriptor resolver. log may be nil.
func NewResolver(log *slog.Logger) *Resolver {
	return &Resolver{log: log}
}

// Resolve locates META-INF/plugin.xml under root, merges its optional
// sub-descriptors and returns the result. Hints collected along the way
// are attached to the returned descriptor even on success.
func (rv *Resolver) Resolve(root string, probs problems.Problems) (*descriptor.Descriptor, error) {
	r := &resolution{
		index:  make(map[string]rawDoc),
		active: make(map[string]bool),
		log:    rv.log,
	}
	d, err := r.loadDescriptor(root, defaultDescriptor, probs)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errs.Structural("resolve", "META-INF/plugin.xml is not found in "+root)
	}
	d.Hints = append(d.Hints, r.hints...)
	return d, nil
}

// resolution is the state of one Resolve call: the eagerly built document
// index, accumulated hints, and the set of descriptor paths currently being
// resolved (guards recursive config chains).
type resolution struct {
	index  map[string]rawDoc
	hints  []string
	active map[string]bool
	log    *slog.Logger
}

func (r *resolution) hint(msg string) {
	r.hints = append(r.hints, msg)
	if r.log != nil {
		r.log.Debug("resolution hint", "msg", msg)
	}
}

// loadDescriptor searches root for the descriptor at filePath (relative to
// the manifest directory) and resolves its optional sub-descriptors.
// Returns (nil, nil) when the descriptor is absent and missing-file
// diagnostics are suppressed.
func (r *resolution) loadDescriptor(root, filePath string, probs problems.Problems) (*descriptor.Descriptor, error) {
	filePath = filepath.ToSlash(filePath)

	fi, statErr := os.Stat(root)
	if statErr != nil {
		return nil, probs.IncorrectStructure("plugin file is not found: " + root)
	}

	var d *descriptor.Descriptor
	var err error
	switch {
	case fi.IsDir():
		d, err = r.loadFromDir(root, filePath, probs)
	case isArchive(root) || looksLikeZip(root):
		d, err = r.loadFromArchiveFile(root, filePath, probs)
	default:
		return nil, probs.IncorrectStructure("incorrect plugin file type " + root + ": expected a .zip or .jar archive or a directory")
	}
	if err != nil {
		return nil, err
	}
	if d != nil {
		r.resolveOptional(root, filePath, d, probs)
	}
	return d, nil
}

func isArchive(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".jar") || strings.HasSuffix(lower, ".zip")
}

// looksLikeZip sniffs the file magic. Cached artifact files carry hashed
// names, so the extension alone cannot be trusted.
func looksLikeZip(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var magic [2]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return magic[0] == 'P' && magic[1] == 'K'
}

func missingDepMsg(dependencyID, configFile string) string {
	return "Plugin dependency " + dependencyID + " config-file " + configFile +
		" specified in META-INF/plugin.xml is not found"
}
