package depsync

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Profile is an enrollment profile definition sent to POST /profile.
type Profile struct {
	ProfileName           string   `json:"profile_name" yaml:"profile_name"`
	URL                   string   `json:"url" yaml:"url"`
	AllowPairing          *bool    `json:"allow_pairing,omitempty" yaml:"allow_pairing,omitempty"`
	IsSupervised          *bool    `json:"is_supervised,omitempty" yaml:"is_supervised,omitempty"`
	IsMultiUser           *bool    `json:"is_multi_user,omitempty" yaml:"is_multi_user,omitempty"`
	IsMandatory           *bool    `json:"is_mandatory,omitempty" yaml:"is_mandatory,omitempty"`
	AwaitDeviceConfigured *bool    `json:"await_device_configured,omitempty" yaml:"await_device_configured,omitempty"`
	IsMDMRemovable        *bool    `json:"is_mdm_removable,omitempty" yaml:"is_mdm_removable,omitempty"`
	AutoAdvanceSetup      *bool    `json:"auto_advance_setup,omitempty" yaml:"auto_advance_setup,omitempty"`
	SupportPhoneNumber    string   `json:"support_phone_number,omitempty" yaml:"support_phone_number,omitempty"`
	SupportEmailAddress   string   `json:"support_email_address,omitempty" yaml:"support_email_address,omitempty"`
	OrgMagic              string   `json:"org_magic,omitempty" yaml:"org_magic,omitempty"`
	Department            string   `json:"department,omitempty" yaml:"department,omitempty"`
	Language              string   `json:"language,omitempty" yaml:"language,omitempty"`
	Region                string   `json:"region,omitempty" yaml:"region,omitempty"`
	AnchorCerts           []string `json:"anchor_certs,omitempty" yaml:"anchor_certs,omitempty"`
	SupervisingHostCerts  []string `json:"supervising_host_certs,omitempty" yaml:"supervising_host_certs,omitempty"`
	SkipSetupItems        []string `json:"skip_setup_items,omitempty" yaml:"skip_setup_items,omitempty"`
	Devices               []string `json:"devices,omitempty" yaml:"devices,omitempty"`
}

// Validate checks the fields the service requires.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.ProfileName) == "" {
		return errors.New("depsync: profile_name is required")
	}
	if strings.TrimSpace(p.URL) == "" {
		return errors.New("depsync: profile url is required")
	}
	return nil
}

// LoadProfile reads a profile definition from a .json file or, for any other
// extension, a YAML file.
func LoadProfile(path string) (Profile, error) {
	var profile Profile
	raw, err := os.ReadFile(path)
	if err != nil {
		return profile, errors.Wrapf(err, "read profile file %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &profile)
	default:
		err = yaml.Unmarshal(raw, &profile)
	}
	if err != nil {
		return profile, errors.Wrapf(err, "decode profile file %s", path)
	}
	if err := profile.Validate(); err != nil {
		return profile, err
	}
	return profile, nil
}
