package manifest

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"plugincheck.dev/cli/internal/core/descriptor"
	"plugincheck.dev/cli/internal/core/problems"
)

// loadFromDir searches an unpacked plugin directory. The descriptor is
// expected at <dir>/META-INF/<filePath>; when absent the lib/ subdirectory
// is searched instead.
func (r *resolution) loadFromDir(dir, filePath string, probs problems.Problems) (*descriptor.Descriptor, error) {
	descriptorFile := filepath.Join(dir, manifestDir, filepath.FromSlash(filePath))
	if fi, err := os.Stat(descriptorFile); err == nil && !fi.IsDir() {
		return r.loadFromDirRoot(descriptorFile, filePath, probs)
	}
	return r.loadFromLibDir(dir, filePath, probs)
}

// loadFromDirRoot parses the descriptor found directly under the manifest
// directory. Every other XML file under that directory is indexed by file
// name so optional-descriptor resolution in the same call can reuse it.
func (r *resolution) loadFromDirRoot(descriptorFile, filePath string, probs problems.Problems) (*descriptor.Descriptor, error) {
	manifestRoot := filepath.Dir(descriptorFile)
	sought := filepath.Base(filePath)

	var parseErr error
	walkErr := filepath.WalkDir(manifestRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".xml") {
			return err
		}
		if path == descriptorFile {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			if d.Name() == sought {
				parseErr = probs.CheckedException("unable to read .xml file META-INF/"+filePath, readErr)
			}
			return nil
		}
		bean, beanErr := parseBean(data)
		if beanErr != nil {
			if d.Name() == sought {
				parseErr = probs.CheckedException("unable to parse .xml file META-INF/"+filePath, beanErr)
			}
			return nil
		}
		r.index[d.Name()] = rawDoc{origin: path, bean: bean}
		return nil
	})
	if walkErr != nil {
		return nil, probs.CheckedException("unable to scan manifest directory "+manifestRoot, walkErr)
	}
	if parseErr != nil {
		return nil, parseErr
	}

	data, err := os.ReadFile(descriptorFile)
	if err != nil {
		return nil, probs.CheckedException("unable to read META-INF/"+filePath, err)
	}
	bean, err := parseBean(data)
	if err != nil {
		return nil, probs.CheckedException("unable to parse META-INF/"+filePath, err)
	}
	return buildDescriptor(rawDoc{origin: descriptorFile, bean: bean}, probs)
}

// loadFromLibDir falls back to <dir>/lib: every archive or directory child
// is searched as a root of its own. An entry named after the plugin
// directory is tried first and a resources* entry last, otherwise
// encountered order is kept; further matches beyond the first are a hard
// failure.
func (r *resolution) loadFromLibDir(dir, filePath string, probs problems.Problems) (*descriptor.Descriptor, error) {
	libDir := filepath.Join(dir, "lib")
	if fi, err := os.Stat(libDir); err != nil || !fi.IsDir() {
		if err := probs.MissingFile("plugin `lib` directory is not found"); err != nil {
			return nil, err
		}
		return nil, nil
	}

	children, err := os.ReadDir(libDir)
	if err != nil {
		return nil, probs.CheckedException("unable to read plugin `lib` directory "+libDir, err)
	}
	if len(children) == 0 {
		return nil, probs.IncorrectStructure("plugin `lib` directory " + libDir + " is empty")
	}

	rootName := filepath.Base(dir)
	rank := func(name string) int {
		switch {
		case strings.HasPrefix(name, rootName):
			return 0
		case strings.HasPrefix(name, "resources"):
			return 2
		default:
			return 1
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		return rank(children[i].Name()) < rank(children[j].Name())
	})

	var found *descriptor.Descriptor
	for _, child := range children {
		path := filepath.Join(libDir, child.Name())

		var d *descriptor.Descriptor
		var childErr error
		switch {
		case child.IsDir():
			d, childErr = r.loadFromDir(path, filePath, probs.IgnoreMissingFile())
		case isArchive(child.Name()):
			d, childErr = r.loadFromArchiveFile(path, filePath, probs.IgnoreMissingFile())
		default:
			continue
		}
		if childErr != nil {
			return nil, childErr
		}
		if d != nil {
			if found != nil {
				return nil, probs.IncorrectStructure("multiple META-INF/" + filePath + " found")
			}
			found = d
		}
	}

	if found == nil {
		if err := probs.MissingFile("unable to find valid META-INF/" + filePath); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return found, nil
}
