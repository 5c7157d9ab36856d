package profile

import (
	"os"

	"gopkg.in/yaml.v3"

	appErr "agentbox/pkg/errors"
)

// SeccompProfile is the syscall filter format consumed by the init helper.
// The JSON form rides inside the request artifact; the YAML form is what
// operators write on disk. Applied only on linux, only when configured.
type SeccompProfile struct {
	DefaultAction string        `json:"defaultAction" yaml:"defaultAction"`
	Syscalls      []SeccompRule `json:"syscalls" yaml:"syscalls"`
}

// SeccompRule applies one action to a list of syscall names.
type SeccompRule struct {
	Names  []string `json:"names" yaml:"names"`
	Action string   `json:"action" yaml:"action"`
}

// LoadSeccompProfile reads a YAML profile from disk.
func LoadSeccompProfile(path string) (*SeccompProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.NotFound, "read seccomp profile %s failed", path)
	}
	var p SeccompProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidFormat, "parse seccomp profile %s failed", path)
	}
	if p.DefaultAction == "" {
		return nil, appErr.ValidationError("defaultAction", "required")
	}
	return &p, nil
}
