package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"gopkg.in/yaml.v3"

	"rezgo/internal/model/pyspec"
)

// Package is an immutable record once published: once constructed by LoadPackage
// and Validate, callers must treat it as read-only and share it by value
// or pointer-to-const across readers.
type Package struct {
	Name        string
	Version     Version
	HasVersion  bool
	Description string
	Authors     []string

	Requires             []PackageRequirement
	BuildRequires        []PackageRequirement
	PrivateBuildRequires []PackageRequirement
	Variants             [][]PackageRequirement

	Tools    []string
	Commands string
	Tests    map[string]string

	UUID      string
	Timestamp int64
	Revision  string
	VCS       string
	Changelog string

	Extras map[string]interface{}
}

// packageDoc is the on-disk shape shared by the YAML, JSON, and Python
// dialects; unknown keys fall through to Extras.
type packageDoc struct {
	Name                 string            `yaml:"name" json:"name"`
	Version              string            `yaml:"version" json:"version"`
	Description          string            `yaml:"description" json:"description"`
	Authors              []string          `yaml:"authors" json:"authors"`
	Requires             []string          `yaml:"requires" json:"requires"`
	BuildRequires        []string          `yaml:"build_requires" json:"build_requires"`
	PrivateBuildRequires []string          `yaml:"private_build_requires" json:"private_build_requires"`
	Variants             [][]string        `yaml:"variants" json:"variants"`
	Tools                []string          `yaml:"tools" json:"tools"`
	Commands             string            `yaml:"commands" json:"commands"`
	Tests                map[string]string `yaml:"tests" json:"tests"`
	UUID                 string            `yaml:"uuid" json:"uuid"`
	Timestamp            int64             `yaml:"timestamp" json:"timestamp"`
	Revision             string            `yaml:"revision" json:"revision"`
	VCS                  string            `yaml:"vcs" json:"vcs"`
	Changelog            string            `yaml:"changelog" json:"changelog"`
}

// LoadPackage selects a loader by file extension: .yaml/.yml, .json, or
// .py (the assignment-only Python dialect), then builds and validates a
// single canonical Package record.
func LoadPackage(path string) (Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Package{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("reading package definition: " + path).
			WithCause(err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var doc packageDoc
	var extras map[string]interface{}

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Package{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("parsing YAML package: " + path).
				WithCause(err)
		}
		var raw map[string]interface{}
		if err := yaml.Unmarshal(data, &raw); err == nil {
			extras = extraFields(raw)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return Package{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("parsing JSON package: " + path).
				WithCause(err)
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(data, &raw); err == nil {
			extras = extraFields(raw)
		}
	case ".py":
		result, err := pyspec.Parse(string(data))
		if err != nil {
			return Package{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("parsing Python package dialect: " + path).
				WithCause(err)
		}
		doc = packageDoc{
			Name:                 result.Name,
			Version:              result.Version,
			Description:          result.Description,
			Authors:              result.Authors,
			Requires:             result.Requires,
			BuildRequires:        result.BuildRequires,
			PrivateBuildRequires: result.PrivateBuildRequires,
			Variants:             result.Variants,
			Tools:                result.Tools,
			Commands:             result.Commands,
			Tests:                result.Tests,
			UUID:                 result.UUID,
			Timestamp:            result.Timestamp,
			Revision:             result.Revision,
			VCS:                  result.VCS,
			Changelog:            result.Changelog,
		}
		extras = result.Extras
		if result.Preprocess != "" {
			// The preprocess hook stays opaque text; it is never executed.
			if extras == nil {
				extras = map[string]interface{}{}
			}
			extras["preprocess"] = result.Preprocess
		}
	default:
		return Package{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("unrecognized package definition extension: " + ext)
	}

	return buildPackage(doc, extras)
}

func extraFields(raw map[string]interface{}) map[string]interface{} {
	known := map[string]bool{
		"name": true, "version": true, "description": true, "authors": true,
		"requires": true, "build_requires": true, "private_build_requires": true,
		"variants": true, "tools": true, "commands": true, "tests": true,
		"uuid": true, "timestamp": true, "revision": true, "vcs": true, "changelog": true,
	}
	out := map[string]interface{}{}
	for k, v := range raw {
		if !known[k] {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func buildPackage(doc packageDoc, extras map[string]interface{}) (Package, error) {
	p := Package{
		Name:        doc.Name,
		Description: doc.Description,
		Authors:     doc.Authors,
		Tools:       doc.Tools,
		Commands:    doc.Commands,
		Tests:       doc.Tests,
		UUID:        doc.UUID,
		Timestamp:   doc.Timestamp,
		Revision:    doc.Revision,
		VCS:         doc.VCS,
		Changelog:   doc.Changelog,
		Extras:      extras,
	}

	if doc.Version != "" {
		v, err := ParseVersion(doc.Version)
		if err != nil {
			return Package{}, err
		}
		p.Version = v
		p.HasVersion = true
	}

	var err error
	if p.Requires, err = parseRequirementList(doc.Requires); err != nil {
		return Package{}, err
	}
	if p.BuildRequires, err = parseRequirementList(doc.BuildRequires); err != nil {
		return Package{}, err
	}
	if p.PrivateBuildRequires, err = parseRequirementList(doc.PrivateBuildRequires); err != nil {
		return Package{}, err
	}
	for _, variant := range doc.Variants {
		reqs, err := parseRequirementList(variant)
		if err != nil {
			return Package{}, err
		}
		p.Variants = append(p.Variants, reqs)
	}

	if err := p.Validate(); err != nil {
		return Package{}, err
	}
	return p, nil
}

func parseRequirementList(raw []string) ([]PackageRequirement, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]PackageRequirement, 0, len(raw))
	for _, s := range raw {
		req, err := ParseRequirement(s)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// Validate checks the package name's character set and that every
// variant sublist is non-empty. Version and requirement strings are
// checked when the definition is parsed, not here.
func (p Package) Validate() error {
	if !isValidPackageName(p.Name) {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid package name: " + p.Name)
	}
	for i, variant := range p.Variants {
		if len(variant) == 0 {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("variant sublist must be non-empty: index " + strconv.Itoa(i))
		}
	}
	return nil
}

func isValidPackageName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}
