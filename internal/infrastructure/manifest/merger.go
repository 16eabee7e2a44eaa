package manifest

import (
	"strings"

	"plugincheck.dev/cli/internal/core/descriptor"
	"plugincheck.dev/cli/internal/core/problems"
)

// resolveOptional resolves the optional sub-descriptors named by the
// dependencies of d. Failures of any kind downgrade to hints; one bad
// optional config never aborts the merge or sibling resolution.
func (r *resolution) resolveOptional(root, filePath string, d *descriptor.Descriptor, probs problems.Problems) {
	deps := d.OptionalConfigs()
	if len(deps) == 0 {
		return
	}
	if d.Optional == nil {
		d.Optional = make(map[string]*descriptor.Descriptor, len(deps))
	}

	for _, dep := range deps {
		configPath := dep.ConfigFile

		if configPath == filePath {
			r.hint("plugin has a recursive config dependency for descriptor " + filePath)
			continue
		}

		optPath := strings.TrimPrefix(configPath, "/META-INF/")
		if r.active[optPath] {
			r.hint("plugin has a recursive config dependency for descriptor " + optPath)
			continue
		}

		// Optional descriptors may omit fields a primary descriptor must
		// carry, and their absence is not an error.
		optProbs := probs.IgnoreMissingFile().IgnoreMissingMandatory()

		if doc, ok := r.index[optPath]; ok {
			sub, err := buildDescriptor(doc, optProbs)
			if err != nil || sub == nil {
				r.hint(missingDepMsg(dep.ID, configPath))
				continue
			}
			r.active[optPath] = true
			r.resolveOptional(root, optPath, sub, optProbs)
			delete(r.active, optPath)
			d.Optional[configPath] = sub
			continue
		}

		r.active[optPath] = true
		sub, err := r.loadDescriptor(root, optPath, optProbs)
		delete(r.active, optPath)
		if err != nil || sub == nil {
			r.hint(missingDepMsg(dep.ID, configPath))
			continue
		}
		d.Optional[configPath] = sub
	}
}
