package manifest

import (
	"encoding/xml"

	"plugincheck.dev/cli/internal/core/descriptor"
	"plugincheck.dev/cli/internal/core/problems"
)

// pluginBean mirrors the descriptor document structure. It stays private:
// the rest of the system sees only descriptor.Descriptor.
type pluginBean struct {
	XMLName     xml.Name      `xml:"idea-plugin"`
	ID          string        `xml:"id"`
	Name        string        `xml:"name"`
	Version     string        `xml:"version"`
	Description string        `xml:"description"`
	Vendor      vendorBean    `xml:"vendor"`
	Depends     []dependsBean `xml:"depends"`
}

type vendorBean struct {
	Name string `xml:",chardata"`
	URL  string `xml:"url,attr"`
	Logo string `xml:"logo,attr"`
}

type dependsBean struct {
	ID         string `xml:",chardata"`
	Optional   bool   `xml:"optional,attr"`
	ConfigFile string `xml:"config-file,attr"`
}

// rawDoc is a parsed descriptor document together with its origin,
// ephemeral within one resolution call.
type rawDoc struct {
	origin string
	bean   *pluginBean
}

func parseBean(data []byte) (*pluginBean, error) {
	var bean pluginBean
	if err := xml.Unmarshal(data, &bean); err != nil {
		return nil, err
	}
	return &bean, nil
}

// buildDescriptor turns a parsed document into a descriptor record,
// enforcing mandatory elements unless probs suppresses that class.
func buildDescriptor(doc rawDoc, probs problems.Problems) (*descriptor.Descriptor, error) {
	bean := doc.bean

	if bean.ID == "" && bean.Name == "" {
		if err := probs.MissingMandatory("descriptor " + doc.origin + " has neither id nor name element"); err != nil {
			return nil, err
		}
	}
	if bean.Version == "" {
		if err := probs.MissingMandatory("descriptor " + doc.origin + " has no version element"); err != nil {
			return nil, err
		}
	}

	id := bean.ID
	if id == "" {
		// Convention: a descriptor without an explicit id is identified
		// by its name.
		id = bean.Name
	}

	d := &descriptor.Descriptor{
		ID:          id,
		Name:        bean.Name,
		Version:     bean.Version,
		Description: bean.Description,
		Vendor: descriptor.Vendor{
			Name: bean.Vendor.Name,
			URL:  bean.Vendor.URL,
			Logo: bean.Vendor.Logo,
		},
		Origin: doc.origin,
	}
	for _, dep := range bean.Depends {
		d.Dependencies = append(d.Dependencies, descriptor.Dependency{
			ID:         dep.ID,
			Optional:   dep.Optional,
			ConfigFile: dep.ConfigFile,
		})
	}
	return d, nil
}
