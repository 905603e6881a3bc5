package config

import (
	"fmt"
	"io"
	"sort"
)

// Default images for the tools the standard graph-alignment pipelines invoke.
// A tool can be pinned to a different image, or to "None" to force native
// execution, by editing the generated config.
var defaultTools = map[string]string{
	"vg":               "quay.io/vgteam/vg:v1.34.0",
	"bcftools":         "quay.io/biocontainers/bcftools:1.9--h4da6232_0",
	"tabix":            "quay.io/biocontainers/tabix:0.2.6--ha92aebf_0",
	"bgzip":            "quay.io/biocontainers/tabix:0.2.6--ha92aebf_0",
	"jq":               "celfring/jq",
	"rtg":              "realtimegenomics/rtg-tools:3.8.4",
	"pigz":             "quay.io/glennhickey/pigz:2.3.1",
	"samtools":         "quay.io/biocontainers/samtools:1.9--h8571acd_11",
	"bwa":              "quay.io/biocontainers/bwa:0.7.17--ha92aebf_3",
	"Rscript":          "rocker/tidyverse:3.5.1",
	"vcfremovesamples": "quay.io/biocontainers/vcflib:1.0.0_rc1--0",
	"freebayes":        "quay.io/biocontainers/freebayes:1.2.0--py36_2",
	"Platypus.py":      "quay.io/biocontainers/platypus-variant:0.8.1.1--htslib1.7_1",
	"hap.py":           "quay.io/biocontainers/hap.py:0.3.9--py27_0",
	"bedtools":         "quay.io/biocontainers/bedtools:2.27.1--he941832_2",
	"bedops":           "quay.io/biocontainers/bedops:2.4.35--h6bb024c_2",
	"R":                "jmonlong/sveval:version-1.0.0",
}

// Default returns the built-in configuration: native execution with the
// stock tool table.
func Default() *Config {
	tools := make(map[string]string, len(defaultTools))
	for name, ref := range defaultTools {
		tools[name] = ref
	}
	return &Config{Container: "None", Tools: tools}
}

// WriteDefault renders the default configuration as commented YAML, for the
// "vgrun config" subcommand.
func WriteDefault(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "# vgrun tool-map configuration"); err != nil {
		return err
	}
	fmt.Fprintln(w, "# container selects the execution engine: Docker, Singularity or None.")
	fmt.Fprintln(w, "# A tool with image \"None\" always runs natively.")
	fmt.Fprintln(w, "container: None")
	fmt.Fprintln(w, "tools:")

	names := make([]string, 0, len(defaultTools))
	for name := range defaultTools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "  %s: %s\n", name, defaultTools[name]); err != nil {
			return err
		}
	}
	return nil
}
