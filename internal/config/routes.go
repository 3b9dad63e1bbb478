package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Destination is one DICOM node a route forwards to.
type Destination struct {
	Name    string `yaml:"name"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	AETitle string `yaml:"ae_title"`
}

// Route maps one receiving AE title to its processing rules and
// destinations. The AE title doubles as the route's directory name under
// the data root.
type Route struct {
	AETitle             string        `yaml:"ae_title"`
	Description         string        `yaml:"description,omitempty"`
	Destinations        []Destination `yaml:"destinations"`
	AnonymizationScript string        `yaml:"anonymization_script,omitempty"`
	RequireReview       bool          `yaml:"require_review,omitempty"`
	HashUIDs            bool          `yaml:"hash_uids,omitempty"`
}

type routesFile struct {
	Routes []Route `yaml:"routes"`
}

// LoadRoutes reads and validates the YAML routing table.
func LoadRoutes(path string) ([]Route, error) {
	data, err := os.ReadFile(path) // #nosec G304 - controlled path from config
	if err != nil {
		return nil, fmt.Errorf("reading routes file: %w", err)
	}

	var rf routesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing routes file: %w", err)
	}
	if err := validateRoutes(rf.Routes); err != nil {
		return nil, err
	}
	return rf.Routes, nil
}

func validateRoutes(routes []Route) error {
	if len(routes) == 0 {
		return fmt.Errorf("routes file defines no routes")
	}
	seen := make(map[string]bool, len(routes))
	for i, r := range routes {
		if r.AETitle == "" {
			return fmt.Errorf("route %d: ae_title is required", i)
		}
		if r.AETitle == "scripts" {
			return fmt.Errorf("route %q: name is reserved", r.AETitle)
		}
		if seen[r.AETitle] {
			return fmt.Errorf("route %q: duplicate ae_title", r.AETitle)
		}
		seen[r.AETitle] = true

		if len(r.Destinations) == 0 {
			return fmt.Errorf("route %q: at least one destination is required", r.AETitle)
		}
		for _, d := range r.Destinations {
			if d.Name == "" || d.Host == "" || d.AETitle == "" {
				return fmt.Errorf("route %q: destination needs name, host and ae_title", r.AETitle)
			}
			if d.Port <= 0 || d.Port > 65535 {
				return fmt.Errorf("route %q: destination %q: invalid port %d", r.AETitle, d.Name, d.Port)
			}
		}
	}
	return nil
}

// FindRoute returns the route with the given AE title, or nil.
func FindRoute(routes []Route, aeTitle string) *Route {
	for i := range routes {
		if routes[i].AETitle == aeTitle {
			return &routes[i]
		}
	}
	return nil
}
