// Package siteinfo loads the YAML description of storage sites and the
// users who write to them: per-user storage prefixes by site, and the SRM
// endpoint of each site.
package siteinfo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// User describes one storage user: their account name and the LFN prefixes
// they write under, grouped by site.
type User struct {
	Username string              `yaml:"username"`
	Prefix   map[string][]string `yaml:"prefix"`
}

// SiteInfo is the full site configuration file.
type SiteInfo struct {
	SRMs  map[string]string `yaml:"srms"`
	Users map[string]User   `yaml:"users"`
}

// Load reads and parses a site configuration file.
func Load(path string) (*SiteInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site info: %w", err)
	}
	var info SiteInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse site info %s: %w", path, err)
	}
	return &info, nil
}

// User looks up a user by the name samples refer to them as.
func (s *SiteInfo) User(name string) (User, error) {
	user, found := s.Users[name]
	if !found {
		return User{}, fmt.Errorf("unknown user %q in site info", name)
	}
	return user, nil
}

// SRM returns the SRM endpoint of a site.
func (s *SiteInfo) SRM(site string) (string, error) {
	srm, found := s.SRMs[site]
	if !found {
		return "", fmt.Errorf("no SRM endpoint for site %q in site info", site)
	}
	return srm, nil
}

// SiteByPrefix inverts a user's prefix lists to a prefix → site map. The
// same prefix appearing under two sites would make LFN placement ambiguous,
// so it is a configuration error.
func (u User) SiteByPrefix() (map[string]string, error) {
	siteByPrefix := make(map[string]string)
	for site, prefixes := range u.Prefix {
		for _, prefix := range prefixes {
			if other, seen := siteByPrefix[prefix]; seen {
				return nil, fmt.Errorf("prefix %q configured twice (%s and %s)", prefix, other, site)
			}
			siteByPrefix[prefix] = site
		}
	}
	return siteByPrefix, nil
}
