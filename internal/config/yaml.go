package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a kernel.yaml-style manifest and overlays it onto
// Default(): any field absent from the document keeps its default
// value. This is the hosted bring-up harness's (cmd/bringupsim)
// equivalent of recompiling with different linker symbols, grounded
// on tinyrange-cc's own YAML-configured VM boot manifests (SPEC_FULL
// §11's domain-stack wiring table).
func LoadYAML(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}
