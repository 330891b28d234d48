package envctx

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"rezgo/internal/model"
)

// SBOMWriter emits an SPDX-style JSON document describing a resolved
// context's package set, named by the context fingerprint so repeated
// resolutions overwrite their own document.
type SBOMWriter struct{}

func NewSBOMWriter() SBOMWriter {
	return SBOMWriter{}
}

type spdxCreationInfo struct {
	Created  string   `json:"created"`
	Creators []string `json:"creators"`
}

type spdxPackage struct {
	SPDXID           string `json:"SPDXID"`
	Name             string `json:"name"`
	VersionInfo      string `json:"versionInfo"`
	DownloadLocation string `json:"downloadLocation"`
	LicenseConcluded string `json:"licenseConcluded"`
	Supplier         string `json:"supplier"`
}

type spdxDocument struct {
	SPDXVersion  string           `json:"spdxVersion"`
	DataLicense  string           `json:"dataLicense"`
	SPDXID       string           `json:"SPDXID"`
	Name         string           `json:"name"`
	DocumentNS   string           `json:"documentNamespace"`
	CreationInfo spdxCreationInfo `json:"creationInfo"`
	Packages     []spdxPackage    `json:"packages"`
}

// WriteSBOM writes the document under outDir and returns its path.
func (w SBOMWriter) WriteSBOM(outDir string, resolved model.ResolvedContext, createdAt time.Time) (string, error) {
	if strings.TrimSpace(outDir) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("sbom output directory is empty")
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create sbom directory").
			WithCause(err)
	}

	ordered := append([]model.ResolvedPackage(nil), resolved.Resolved...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Package.Name < ordered[j].Package.Name
	})

	fingerprint := resolved.Fingerprint()
	doc := spdxDocument{
		SPDXVersion: "SPDX-2.3",
		DataLicense: "CC0-1.0",
		SPDXID:      "SPDXRef-DOCUMENT",
		Name:        "resolved-context-" + shortHash(fingerprint),
		DocumentNS:  "urn:rezgo:context:" + fingerprint,
		CreationInfo: spdxCreationInfo{
			Created:  createdAt.UTC().Format(time.RFC3339),
			Creators: []string{"Tool: rezgo"},
		},
	}
	for _, rp := range ordered {
		version := "NOASSERTION"
		if rp.Package.HasVersion {
			version = rp.Package.Version.Render()
		}
		doc.Packages = append(doc.Packages, spdxPackage{
			SPDXID:           fmt.Sprintf("SPDXRef-Package-%s", rp.Package.Name),
			Name:             rp.Package.Name,
			VersionInfo:      version,
			DownloadLocation: "NOASSERTION",
			LicenseConcluded: "NOASSERTION",
			Supplier:         "NOASSERTION",
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to serialize sbom").
			WithCause(err)
	}
	path := filepath.Join(outDir, "sbom-"+shortHash(fingerprint)+".spdx.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write sbom").
			WithCause(err)
	}
	return path, nil
}

func shortHash(value string) string {
	if len(value) >= 12 {
		return value[:12]
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:12]
}
