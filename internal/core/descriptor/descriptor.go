// Package descriptor holds the plain plugin descriptor record produced by
// manifest resolution. The record is built once per resolution call and is
// not mutated afterwards.
package descriptor

// Dependency is one <depends> declaration of a plugin descriptor, in
// document order.
type Dependency struct {
	// ID is the depended-upon plugin or module id.
	ID string
	// Optional marks dependencies the plugin can run without.
	Optional bool
	// ConfigFile names a secondary descriptor, relative to the manifest
	// directory, that is active only when the dependency is present.
	ConfigFile string
}

// Vendor describes the plugin vendor as declared in the descriptor.
type Vendor struct {
	Name string
	URL  string
	// Logo is the vendor logo resource path. It may be merged in from a
	// library descriptor when the winning root descriptor has none.
	Logo string
}

// Descriptor is the merged plugin descriptor: the primary manifest plus any
// optional sub-descriptors that could be resolved.
type Descriptor struct {
	ID          string
	Name        string
	Version     string
	Description string
	Vendor      Vendor

	// Dependencies preserves document order.
	Dependencies []Dependency

	// Optional maps a dependency's config-file path, exactly as written in
	// the primary descriptor, to its resolved sub-descriptor. Paths that
	// failed to resolve are absent here and recorded in Hints instead.
	Optional map[string]*Descriptor

	// Hints accumulates non-fatal resolution notes in encounter order:
	// unresolved optional configs, self-references, duplicate root matches.
	Hints []string

	// Origin locates the document this descriptor was read from, e.g.
	// "plugin.zip!sample.jar!META-INF/plugin.xml".
	Origin string
}

// OptionalConfigs returns the dependencies that name a config file, in
// document order. Only these take part in optional descriptor resolution.
func (d *Descriptor) OptionalConfigs() []Dependency {
	var deps []Dependency
	for _, dep := range d.Dependencies {
		if dep.Optional && dep.ConfigFile != "" {
			deps = append(deps, dep)
		}
	}
	return deps
}
