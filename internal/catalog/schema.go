package catalog

// FactorEntry points one factor at its portal app item.
type FactorEntry struct {
	Item  string `yaml:"item"`
	Label string `yaml:"label"`
}

// BasemapEntry names the export endpoints drawn under every factor overlay.
type BasemapEntry struct {
	Base      string `yaml:"base"`
	Reference string `yaml:"reference"`
}

// File is the root structure of the catalog yaml.
// The structure is:
//
//	portal: https://host/portal
//	factors:
//	  LS: { item: <id>, label: Length-Slope }
//	  K:  { item: <id>, label: Soil Erodibility }
//	basemap:
//	  base: https://.../MapServer/export
//	  reference: https://.../MapServer/export
type File struct {
	Portal  string                 `yaml:"portal"`
	Factors map[string]FactorEntry `yaml:"factors"`
	Basemap BasemapEntry           `yaml:"basemap"`
}
