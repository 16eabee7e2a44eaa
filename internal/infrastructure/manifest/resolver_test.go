package manifest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"plugincheck.dev/cli/internal/core/problems"
	"plugincheck.dev/cli/internal/errs"
	"plugincheck.dev/cli/internal/testfixtures"
)

// TestResolver_Resolve_ArchiveWithRootDescriptor tests resolution of a plain zipped plugin
func TestResolver_Resolve_ArchiveWithRootDescriptor(t *testing.T) {
	dir := t.TempDir()
	path := testfixtures.WriteZip(t, dir, "sample.zip",
		testfixtures.Text("sample/META-INF/plugin.xml", testfixtures.Manifest("com.example.sample", "1.2.3",
			`<name>Sample</name>`,
			`<description>A sample plugin</description>`,
			`<vendor url="https://example.com" logo="logo.png">Example Inc</vendor>`,
			`<depends>com.intellij.modules.platform</depends>`,
			`<depends optional="true" config-file="opt.xml">com.example.other</depends>`)),
		testfixtures.Text("sample/META-INF/opt.xml", testfixtures.Manifest("", "")),
	)

	d, err := NewResolver(nil).Resolve(path, problems.New(nil))
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, "com.example.sample", d.ID)
	assert.Equal(t, "Sample", d.Name)
	assert.Equal(t, "1.2.3", d.Version)
	assert.Equal(t, "A sample plugin", d.Description)
	assert.Equal(t, "Example Inc", d.Vendor.Name)
	assert.Equal(t, "https://example.com", d.Vendor.URL)
	assert.Equal(t, "logo.png", d.Vendor.Logo)
	require.Len(t, d.Dependencies, 2)
	assert.Equal(t, "com.intellij.modules.platform", d.Dependencies[0].ID)
	assert.False(t, d.Dependencies[0].Optional)
	assert.True(t, d.Dependencies[1].Optional)
	assert.Equal(t, "opt.xml", d.Dependencies[1].ConfigFile)
	assert.Empty(t, d.Hints)
	require.Contains(t, d.Optional, "opt.xml")
	assert.Contains(t, d.Origin, "sample/META-INF/plugin.xml")
}

// TestResolver_Resolve_IDFallsBackToName tests the id-from-name convention
func TestResolver_Resolve_IDFallsBackToName(t *testing.T) {
	dir := t.TempDir()
	path := testfixtures.WriteZip(t, dir, "named.zip",
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("", "0.1",
			`<name>Named Only</name>`)),
	)

	d, err := NewResolver(nil).Resolve(path, problems.New(nil))
	require.NoError(t, err)
	assert.Equal(t, "Named Only", d.ID)
	assert.Equal(t, "Named Only", d.Name)
}

// TestResolver_Resolve_MissingMandatoryElements tests rejection of incomplete descriptors
func TestResolver_Resolve_MissingMandatoryElements(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantMsg  string
	}{
		{
			name:     "no id and no name",
			manifest: testfixtures.Manifest("", "1.0"),
			wantMsg:  "has neither id nor name element",
		},
		{
			name:     "no version",
			manifest: testfixtures.Manifest("com.example", ""),
			wantMsg:  "has no version element",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := testfixtures.WriteZip(t, dir, "bad.zip",
				testfixtures.Text("META-INF/plugin.xml", tt.manifest))

			d, err := NewResolver(nil).Resolve(path, problems.New(nil))
			require.Error(t, err)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, errs.ErrStructural)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

// TestResolver_Resolve_DescriptorNotFound tests the empty-archive outcome
func TestResolver_Resolve_DescriptorNotFound(t *testing.T) {
	dir := t.TempDir()
	path := testfixtures.WriteZip(t, dir, "empty.zip",
		testfixtures.Text("readme.txt", "nothing here"))

	d, err := NewResolver(nil).Resolve(path, problems.New(nil))
	require.Error(t, err)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, errs.ErrStructural)
	assert.Contains(t, err.Error(), "META-INF/plugin.xml is not found")
}

// TestResolver_Resolve_RejectsUnknownFileType tests non-archive plugin files
func TestResolver_Resolve_RejectsUnknownFileType(t *testing.T) {
	dir := t.TempDir()
	testfixtures.WriteTree(t, dir, testfixtures.Text("plugin.txt", "not an archive"))

	d, err := NewResolver(nil).Resolve(dir+"/plugin.txt", problems.New(nil))
	require.Error(t, err)
	assert.Nil(t, d)
	assert.Contains(t, err.Error(), "incorrect plugin file type")
}

// TestResolver_Resolve_NestedJarInRoot tests the archive-of-a-jar bundling
func TestResolver_Resolve_NestedJarInRoot(t *testing.T) {
	dir := t.TempDir()
	inner := testfixtures.ZipBytes(t,
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example.inner", "2.0")))
	path := testfixtures.WriteZip(t, dir, "bundle.zip",
		testfixtures.ZipEntry{Name: "inner.jar", Data: inner})

	d, err := NewResolver(nil).Resolve(path, problems.New(nil))
	require.NoError(t, err)
	assert.Equal(t, "com.example.inner", d.ID)
	assert.Equal(t, "2.0", d.Version)
}

// TestResolver_Resolve_RootAndNestedJarBothMatch tests the ambiguous dual-root layout
func TestResolver_Resolve_RootAndNestedJarBothMatch(t *testing.T) {
	inner := testfixtures.ZipBytes(t,
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example.inner", "2.0")))

	// Entry order must not matter: either layout is ambiguous.
	layouts := map[string][]testfixtures.ZipEntry{
		"descriptor first": {
			testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example.outer", "1.0")),
			{Name: "inner.jar", Data: inner},
		},
		"jar first": {
			{Name: "inner.jar", Data: inner},
			testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example.outer", "1.0")),
		},
	}

	for name, entries := range layouts {
		t.Run(name, func(t *testing.T) {
			path := testfixtures.WriteZip(t, t.TempDir(), "dual.zip", entries...)

			d, err := NewResolver(nil).Resolve(path, problems.New(nil))
			require.Error(t, err)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, errs.ErrStructural)
			assert.Contains(t, err.Error(), "multiple META-INF/plugin.xml found in the root of the plugin")
		})
	}
}

// TestResolver_Resolve_DuplicateDirectMatches tests the duplicate-descriptor hint
func TestResolver_Resolve_DuplicateDirectMatches(t *testing.T) {
	dir := t.TempDir()
	path := testfixtures.WriteZip(t, dir, "dup.zip",
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example.first", "1.0")),
		testfixtures.Text("other/META-INF/plugin.xml", testfixtures.Manifest("com.example.second", "2.0")),
	)

	d, err := NewResolver(nil).Resolve(path, problems.New(nil))
	require.NoError(t, err)
	require.NotNil(t, d)

	// Later matches overwrite earlier ones, with a hint rather than a failure.
	assert.Equal(t, "com.example.second", d.ID)
	assert.Contains(t, d.Hints, "multiple META-INF/plugin.xml found in the root of the plugin")
}

// TestResolver_Resolve_LibDescriptorUsedWhenRootMissing tests the lib/ fallback
func TestResolver_Resolve_LibDescriptorUsedWhenRootMissing(t *testing.T) {
	dir := t.TempDir()
	inner := testfixtures.ZipBytes(t,
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example.lib", "3.0")))
	path := testfixtures.WriteZip(t, dir, "libonly.zip",
		testfixtures.ZipEntry{Name: "sample/lib/sample.jar", Data: inner})

	d, err := NewResolver(nil).Resolve(path, problems.New(nil))
	require.NoError(t, err)
	assert.Equal(t, "com.example.lib", d.ID)
}

// TestResolver_Resolve_RootOutranksLib tests root precedence and logo merging
func TestResolver_Resolve_RootOutranksLib(t *testing.T) {
	dir := t.TempDir()
	libJar := testfixtures.ZipBytes(t,
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example.lib", "9.9",
			`<vendor logo="lib-logo.png">Lib Vendor</vendor>`)))
	path := testfixtures.WriteZip(t, dir, "both.zip",
		testfixtures.Text("sample/META-INF/plugin.xml", testfixtures.Manifest("com.example.root", "1.0")),
		testfixtures.ZipEntry{Name: "sample/lib/sample.jar", Data: libJar},
	)

	d, err := NewResolver(nil).Resolve(path, problems.New(nil))
	require.NoError(t, err)

	assert.Equal(t, "com.example.root", d.ID)
	assert.Equal(t, "1.0", d.Version)
	// Only the vendor logo is taken from the library descriptor, and only
	// because the root descriptor has none.
	assert.Equal(t, "lib-logo.png", d.Vendor.Logo)
	assert.Empty(t, d.Vendor.Name)
}

// TestResolver_Resolve_UnresolvedOptionalConfig tests that a missing optional
// sub-descriptor downgrades to a hint
func TestResolver_Resolve_UnresolvedOptionalConfig(t *testing.T) {
	dir := t.TempDir()
	path := testfixtures.WriteZip(t, dir, "opt.zip",
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example", "1.0",
			`<depends optional="true" config-file="missing.xml">com.example.dep</depends>`)),
	)

	d, err := NewResolver(nil).Resolve(path, problems.New(nil))
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.NotContains(t, d.Optional, "missing.xml")
	require.Len(t, d.Hints, 1)
	assert.Equal(t,
		"Plugin dependency com.example.dep config-file missing.xml specified in META-INF/plugin.xml is not found",
		d.Hints[0])
}

// TestResolver_Resolve_OptionalChain tests transitive optional descriptor merging
func TestResolver_Resolve_OptionalChain(t *testing.T) {
	dir := t.TempDir()
	path := testfixtures.WriteZip(t, dir, "chain.zip",
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example", "1.0",
			`<depends optional="true" config-file="a.xml">com.example.a</depends>`)),
		testfixtures.Text("META-INF/a.xml", testfixtures.Manifest("", "",
			`<depends optional="true" config-file="b.xml">com.example.b</depends>`)),
		testfixtures.Text("META-INF/b.xml", testfixtures.Manifest("", "")),
	)

	d, err := NewResolver(nil).Resolve(path, problems.New(nil))
	require.NoError(t, err)

	sub, ok := d.Optional["a.xml"]
	require.True(t, ok)
	_, ok = sub.Optional["b.xml"]
	assert.True(t, ok)
	assert.Empty(t, d.Hints)
}

// TestResolver_Resolve_RecursiveOptionalConfigs tests cycle detection in
// optional descriptor chains
func TestResolver_Resolve_RecursiveOptionalConfigs(t *testing.T) {
	dir := t.TempDir()
	path := testfixtures.WriteZip(t, dir, "cycle.zip",
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example", "1.0",
			`<depends optional="true" config-file="a.xml">com.example.a</depends>`)),
		testfixtures.Text("META-INF/a.xml", testfixtures.Manifest("", "",
			`<depends optional="true" config-file="b.xml">com.example.b</depends>`)),
		testfixtures.Text("META-INF/b.xml", testfixtures.Manifest("", "",
			`<depends optional="true" config-file="a.xml">com.example.a</depends>`)),
	)

	d, err := NewResolver(nil).Resolve(path, problems.New(nil))
	require.NoError(t, err)

	sub, ok := d.Optional["a.xml"]
	require.True(t, ok)
	_, ok = sub.Optional["b.xml"]
	require.True(t, ok)

	found := false
	for _, h := range d.Hints {
		if h == "plugin has a recursive config dependency for descriptor a.xml" {
			found = true
		}
	}
	assert.True(t, found, "expected a recursive-config hint, got %v", d.Hints)
}

// TestResolver_Resolve_SelfReferencingConfig tests a descriptor naming itself
func TestResolver_Resolve_SelfReferencingConfig(t *testing.T) {
	dir := t.TempDir()
	path := testfixtures.WriteZip(t, dir, "self.zip",
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example", "1.0",
			`<depends optional="true" config-file="plugin.xml">com.example.self</depends>`)),
	)

	d, err := NewResolver(nil).Resolve(path, problems.New(nil))
	require.NoError(t, err)
	assert.Empty(t, d.Optional)
	assert.Contains(t, d.Hints, "plugin has a recursive config dependency for descriptor plugin.xml")
}

// TestResolver_Resolve_ParentRelativeConfig tests single-level ../ config paths
func TestResolver_Resolve_ParentRelativeConfig(t *testing.T) {
	dir := t.TempDir()
	path := testfixtures.WriteZip(t, dir, "rel.zip",
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example", "1.0",
			`<depends optional="true" config-file="/META-INF/../relocated.xml">com.example.rel</depends>`)),
		testfixtures.Text("relocated.xml", testfixtures.Manifest("", "")),
	)

	d, err := NewResolver(nil).Resolve(path, problems.New(nil))
	require.NoError(t, err)
	assert.Contains(t, d.Optional, "/META-INF/../relocated.xml")
	assert.Empty(t, d.Hints)
}

// TestResolver_Resolve_DoubleParentConfigNeverMatches tests that deeper ../
// chains resolve to nothing
func TestResolver_Resolve_DoubleParentConfigNeverMatches(t *testing.T) {
	dir := t.TempDir()
	path := testfixtures.WriteZip(t, dir, "rel2.zip",
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example", "1.0",
			`<depends optional="true" config-file="/META-INF/../../escape.xml">com.example.esc</depends>`)),
		testfixtures.Text("escape.xml", testfixtures.Manifest("", "")),
	)

	d, err := NewResolver(nil).Resolve(path, problems.New(nil))
	require.NoError(t, err)
	assert.Empty(t, d.Optional)
	require.Len(t, d.Hints, 1)
	assert.Contains(t, d.Hints[0], "config-file /META-INF/../../escape.xml")
}

// TestResolver_Resolve_DirectoryPlugin tests resolution from an unpacked directory
func TestResolver_Resolve_DirectoryPlugin(t *testing.T) {
	dir := t.TempDir()
	testfixtures.WriteTree(t, dir,
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example.dir", "4.0",
			`<depends optional="true" config-file="extra.xml">com.example.extra</depends>`)),
		testfixtures.Text("META-INF/extra.xml", testfixtures.Manifest("", "")),
	)

	d, err := NewResolver(nil).Resolve(dir, problems.New(nil))
	require.NoError(t, err)
	assert.Equal(t, "com.example.dir", d.ID)
	assert.Contains(t, d.Optional, "extra.xml")
}

// TestResolver_Resolve_DirectoryLibFallback tests the unpacked lib/ layout
func TestResolver_Resolve_DirectoryLibFallback(t *testing.T) {
	dir := t.TempDir()
	jar := testfixtures.ZipBytes(t,
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example.dirlib", "5.0")))
	testfixtures.WriteTree(t, dir,
		testfixtures.ZipEntry{Name: "lib/plugin.jar", Data: jar},
		testfixtures.Text("lib/helper.jar.txt", "not an archive"),
	)

	d, err := NewResolver(nil).Resolve(dir, problems.New(nil))
	require.NoError(t, err)
	assert.Equal(t, "com.example.dirlib", d.ID)
}

// TestResolver_Resolve_DirectoryWithoutLib tests the missing-lib outcome
func TestResolver_Resolve_DirectoryWithoutLib(t *testing.T) {
	dir := t.TempDir()
	testfixtures.WriteTree(t, dir, testfixtures.Text("readme.txt", "no manifest"))

	d, err := NewResolver(nil).Resolve(dir, problems.New(nil))
	require.Error(t, err)
	assert.Nil(t, d)
	assert.Contains(t, err.Error(), "plugin `lib` directory is not found")
}

// TestResolver_Resolve_DirectoryLibAmbiguous tests multiple descriptor carriers
// under lib/
func TestResolver_Resolve_DirectoryLibAmbiguous(t *testing.T) {
	dir := t.TempDir()
	jarA := testfixtures.ZipBytes(t,
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example.a", "1.0")))
	jarB := testfixtures.ZipBytes(t,
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example.b", "1.0")))
	testfixtures.WriteTree(t, dir,
		testfixtures.ZipEntry{Name: "lib/a.jar", Data: jarA},
		testfixtures.ZipEntry{Name: "lib/b.jar", Data: jarB},
	)

	d, err := NewResolver(nil).Resolve(dir, problems.New(nil))
	require.Error(t, err)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, errs.ErrStructural)
	assert.Contains(t, err.Error(), "multiple META-INF/plugin.xml found")
}

// TestResolver_Resolve_PrecedenceProperties drives random combinations of
// descriptor locations and checks the precedence rules hold regardless of
// archive entry order
func TestResolver_Resolve_PrecedenceProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		direct := rapid.Bool().Draw(rt, "direct")
		nested := rapid.Bool().Draw(rt, "nested")
		lib := rapid.Bool().Draw(rt, "lib")
		if !direct && !nested && !lib {
			lib = true
		}

		var entries []testfixtures.ZipEntry
		if direct {
			entries = append(entries,
				testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("id.direct", "1.0")))
		}
		if nested {
			entries = append(entries, testfixtures.ZipEntry{
				Name: "root.jar",
				Data: testfixtures.ZipBytes(t,
					testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("id.nested", "1.0"))),
			})
		}
		if lib {
			entries = append(entries, testfixtures.ZipEntry{
				Name: "lib/dep.jar",
				Data: testfixtures.ZipBytes(t,
					testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("id.lib", "1.0"))),
			})
		}
		rot := rapid.IntRange(0, len(entries)-1).Draw(rt, "rot")
		entries = append(entries[rot:], entries[:rot]...)

		path := testfixtures.WriteZip(t, t.TempDir(), "p.zip", entries...)
		d, err := NewResolver(nil).Resolve(path, problems.New(nil))

		switch {
		case direct && nested:
			if !errors.Is(err, errs.ErrStructural) {
				rt.Fatalf("dual root must be a structural failure, got d=%v err=%v", d, err)
			}
		case direct:
			if err != nil || d.ID != "id.direct" {
				rt.Fatalf("direct descriptor must win, got d=%v err=%v", d, err)
			}
		case nested:
			if err != nil || d.ID != "id.nested" {
				rt.Fatalf("nested root descriptor must win over lib, got d=%v err=%v", d, err)
			}
		default:
			if err != nil || d.ID != "id.lib" {
				rt.Fatalf("lib descriptor must be the fallback, got d=%v err=%v", d, err)
			}
		}
	})
}

// TestResolver_Resolve_ArchiveWithoutExtension tests descriptor resolution from
// a cache file with a hashed name
func TestResolver_Resolve_ArchiveWithoutExtension(t *testing.T) {
	dir := t.TempDir()
	data := testfixtures.ZipBytes(t,
		testfixtures.Text("META-INF/plugin.xml", testfixtures.Manifest("com.example.cached", "1.0")))
	testfixtures.WriteTree(t, dir, testfixtures.ZipEntry{Name: "0a1b2c3d.bin", Data: data})

	d, err := NewResolver(nil).Resolve(dir+"/0a1b2c3d.bin", problems.New(nil))
	require.NoError(t, err)
	assert.Equal(t, "com.example.cached", d.ID)
}
