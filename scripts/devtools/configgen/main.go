package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Profile drives starter config generation. Overrides are merged over the
// built-in templates, keyed by template name.
type Profile struct {
	OutputDir string                            `yaml:"outputDir"`
	Templates map[string]map[string]interface{} `yaml:"templates"`
}

func main() {
	profilePath := flag.String("profile", "", "Path to generation profile (optional)")
	outputDir := flag.String("output-dir", "configs", "Output directory")
	flag.Parse()

	profile := &Profile{OutputDir: *outputDir}
	if *profilePath != "" {
		loaded, err := loadProfile(*profilePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load profile failed: %v\n", err)
			os.Exit(1)
		}
		profile = loaded
		if profile.OutputDir == "" {
			profile.OutputDir = *outputDir
		}
	}

	if err := os.MkdirAll(profile.OutputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output directory failed: %v\n", err)
		os.Exit(1)
	}

	templates := builtinTemplates()
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := normalizeValue(templates[name])
		if override, ok := profile.Templates[name]; ok {
			merged, err := mergeMap(value, normalizeValue(override))
			if err != nil {
				fmt.Fprintf(os.Stderr, "merge overrides for %q failed: %v\n", name, err)
				os.Exit(1)
			}
			value = merged
		}
		outputPath := filepath.Join(profile.OutputDir, name)
		if err := writeYAML(outputPath, value); err != nil {
			fmt.Fprintf(os.Stderr, "write config for %q failed: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", outputPath)
	}
}

// builtinTemplates returns the starter files keyed by output file name.
func builtinTemplates() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		"agentbox.yaml": {
			"logger": map[string]interface{}{
				"level":      "info",
				"format":     "console",
				"outputpath": "stderr",
			},
			"sandbox": map[string]interface{}{
				"workspace":      "",
				"isolation":      "",
				"python":         "python3",
				"cpuTimeSeconds": 30,
				"memoryMB":       512,
			},
			"repl": map[string]interface{}{
				"statePath": "configs/agentbox_state.json",
			},
		},
		"seccomp-block-net.yaml": {
			"defaultAction": "allow",
			"syscalls": []interface{}{
				map[string]interface{}{
					"names":  []interface{}{"socket", "connect", "accept", "accept4", "bind", "listen"},
					"action": "kill",
				},
			},
		},
	}
}

func loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile failed: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile failed: %w", err)
	}
	return &profile, nil
}

func writeYAML(path string, value interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir failed: %w", err)
	}
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal yaml failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write yaml failed: %w", err)
	}
	return nil
}

func normalizeValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			out[k] = normalizeValue(v)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprintf("%v", k)
			}
			out[key] = normalizeValue(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(typed))
		for _, item := range typed {
			out = append(out, normalizeValue(item))
		}
		return out
	default:
		return value
	}
}

func mergeMap(base interface{}, override interface{}) (interface{}, error) {
	baseMap, ok := base.(map[string]interface{})
	if !ok {
		return nil, errors.New("base config is not a map")
	}
	overrideMap, ok := override.(map[string]interface{})
	if !ok {
		return nil, errors.New("override config is not a map")
	}

	merged := make(map[string]interface{}, len(baseMap))
	for k, v := range baseMap {
		merged[k] = v
	}

	for key, overrideValue := range overrideMap {
		baseValue, exists := merged[key]
		if !exists {
			merged[key] = overrideValue
			continue
		}

		baseChild, baseIsMap := baseValue.(map[string]interface{})
		overrideChild, overrideIsMap := overrideValue.(map[string]interface{})
		if baseIsMap && overrideIsMap {
			combined, err := mergeMap(baseChild, overrideChild)
			if err != nil {
				return nil, err
			}
			merged[key] = combined
			continue
		}
		merged[key] = overrideValue
	}
	return merged, nil
}
