package manifest

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"

	"plugincheck.dev/cli/internal/core/descriptor"
	"plugincheck.dev/cli/internal/core/problems"
)

// loadFromArchiveFile searches a zip or jar file for the descriptor at
// filePath. The archive may be a compressed plugin directory, a compressed
// jar, or a single jar.
//
// Matches feed a two-slot accumulator: descriptors from the archive itself
// or an in-root nested jar fill the root slot, descriptors from lib/
// archives fill the lib slot. The root slot always outranks the lib slot;
// a root match both directly in the archive and in an in-root nested jar
// is a hard failure.
func (r *resolution) loadFromArchiveFile(path, filePath string, probs problems.Problems) (*descriptor.Descriptor, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, probs.CheckedException("unable to read plugin file "+path, err)
	}
	defer zr.Close()

	var foundDirect *descriptor.Descriptor // matched an entry of this archive
	var foundNested *descriptor.Descriptor // matched inside an in-root nested jar
	var foundInLib *descriptor.Descriptor  // matched inside a lib/ archive

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.TrimPrefix(f.Name, "/")

		// A top-level jar is an archive-of-a-jar bundling: the inner jar
		// is what actually gets installed, so search it as a root.
		if !strings.Contains(name, "/") && strings.HasSuffix(strings.ToLower(name), ".jar") {
			data, readErr := readZipEntry(f)
			if readErr != nil {
				return nil, probs.CheckedException("unable to read entry "+name+" of "+path, readErr)
			}
			d, nestErr := r.scanNestedArchive(data, path+"!"+name, filePath, probs.IgnoreMissingFile())
			if nestErr != nil {
				return nil, nestErr
			}
			if d != nil {
				if foundNested != nil {
					return nil, probs.IncorrectStructure("multiple META-INF/" + filePath + " found in the root of the plugin")
				}
				foundNested = d
			}
			continue
		}

		d, entryErr := r.loadFromEntry(f, name, filePath, path, probs.IgnoreMissingFile())
		if entryErr != nil {
			return nil, entryErr
		}
		if d != nil {
			if foundDirect != nil {
				r.hint("multiple META-INF/" + filePath + " found in the root of the plugin")
			}
			foundDirect = d
			continue
		}

		if libArchive.MatchString(name) {
			data, readErr := readZipEntry(f)
			if readErr != nil {
				return nil, probs.CheckedException("unable to read entry "+name+" of "+path, readErr)
			}
			inner, libErr := r.scanNestedArchive(data, path+"!"+name, filePath, probs.IgnoreMissingFile())
			if libErr != nil {
				return nil, libErr
			}
			if inner != nil {
				foundInLib = inner
			}
		}
	}

	if foundDirect != nil && foundNested != nil {
		return nil, probs.IncorrectStructure("multiple META-INF/" + filePath + " found in the root of the plugin")
	}
	foundAtRoot := foundDirect
	if foundAtRoot == nil {
		foundAtRoot = foundNested
	}

	if foundAtRoot != nil {
		// Some plugins keep the vendor logo only in the lib descriptor.
		// Nothing else from the lib descriptor is merged.
		if foundInLib != nil && foundInLib.Vendor.Logo != "" && foundAtRoot.Vendor.Logo == "" {
			foundAtRoot.Vendor.Logo = foundInLib.Vendor.Logo
		}
		return foundAtRoot, nil
	}
	if foundInLib != nil {
		return foundInLib, nil
	}

	if err := probs.MissingFile("META-INF/" + filePath + " is not found"); err != nil {
		return nil, err
	}
	return nil, nil
}

// scanNestedArchive streams the entries of an in-memory archive (an in-root
// jar or a lib/ archive) once, with the same matching rules as the outer
// archive. Two matches inside one stream is a hard failure.
func (r *resolution) scanNestedArchive(data []byte, origin, filePath string, probs problems.Problems) (*descriptor.Descriptor, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, probs.CheckedException("unable to read nested archive "+origin, err)
	}

	var found *descriptor.Descriptor
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.TrimPrefix(f.Name, "/")

		d, entryErr := r.loadFromEntry(f, name, filePath, origin, probs)
		if entryErr != nil {
			return nil, entryErr
		}
		if d != nil {
			if found != nil {
				return nil, probs.IncorrectStructure("multiple META-INF/" + filePath + " found")
			}
			found = d
		}
	}
	return found, nil
}

// loadFromEntry checks one archive entry against the sought descriptor
// path. A non-matching descriptor document under the manifest directory is
// added to the call-scoped index for later optional-descriptor resolution.
//
// A filePath starting with exactly one "../" escapes the manifest
// directory and is matched by entry name suffix; deeper "../" chains are
// unsupported and never match.
func (r *resolution) loadFromEntry(f *zip.File, name, filePath, origin string, probs problems.Problems) (*descriptor.Descriptor, error) {
	if m := metaInfXML.FindStringSubmatch(name); m != nil {
		rel := m[2]
		data, err := readZipEntry(f)
		if err != nil {
			if rel == filePath {
				return nil, probs.CheckedException("unable to read META-INF/"+rel, err)
			}
			r.warnEntry(name, err)
			return nil, nil
		}
		bean, err := parseBean(data)
		if err != nil {
			if rel == filePath {
				return nil, probs.CheckedException("unable to parse META-INF/"+rel, err)
			}
			r.warnEntry(name, err)
			return nil, nil
		}
		doc := rawDoc{origin: origin + "!" + name, bean: bean}
		if rel == filePath {
			return buildDescriptor(doc, probs)
		}
		r.index[rel] = doc
		return nil, nil
	}

	if suffix, ok := strings.CutPrefix(filePath, "../"); ok {
		if strings.HasPrefix(suffix, "../") {
			return nil, nil
		}
		if strings.HasSuffix(name, suffix) {
			data, err := readZipEntry(f)
			if err != nil {
				return nil, probs.CheckedException("unable to read META-INF/"+filePath, err)
			}
			bean, err := parseBean(data)
			if err != nil {
				return nil, probs.CheckedException("unable to parse META-INF/"+filePath, err)
			}
			return buildDescriptor(rawDoc{origin: origin + "!" + name, bean: bean}, probs)
		}
	}
	return nil, nil
}

func (r *resolution) warnEntry(name string, err error) {
	if r.log != nil {
		r.log.Warn("skipping unreadable archive entry", "entry", name, "err", err)
	}
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
