// Command depscheck fails when a core simulation package imports one of the
// outer layers (match, transport, app wiring). Run it from the module root.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

const modulePath = "hunt-arena/server"

type packageInfo struct {
	ImportPath string
	Imports    []string
}

type rule struct {
	// Packages is the import-path prefix the rule applies to.
	Packages  string
	Forbidden []string
}

var rules = []rule{
	{Packages: modulePath + "/internal/geom", Forbidden: outerLayers("internal/pathing", "internal/orders")},
	{Packages: modulePath + "/internal/spatial", Forbidden: outerLayers("internal/pathing", "internal/orders")},
	{Packages: modulePath + "/internal/pathing", Forbidden: outerLayers("internal/orders", "internal/terrain")},
	{Packages: modulePath + "/internal/orders", Forbidden: outerLayers("internal/terrain")},
	{Packages: modulePath + "/internal/terrain", Forbidden: outerLayers()},
	{Packages: modulePath + "/logging", Forbidden: outerLayers("internal/pathing", "internal/orders", "internal/terrain")},
}

func outerLayers(extra ...string) []string {
	layers := []string{"internal/match", "internal/net", "internal/app", "internal/config"}
	layers = append(layers, extra...)
	for i, layer := range layers {
		layers[i] = modulePath + "/" + layer
	}
	return layers
}

func main() {
	cmd := exec.Command("go", "list", "-json", "./...")
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	packages, err := decodePackages(bytes.NewReader(output))
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscheck: failed to decode package info: %v\n", err)
		os.Exit(1)
	}

	if violations := check(packages, rules); len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

func decodePackages(r io.Reader) ([]packageInfo, error) {
	decoder := json.NewDecoder(r)
	var packages []packageInfo
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				return packages, nil
			}
			return nil, err
		}
		packages = append(packages, pkg)
	}
}

func check(packages []packageInfo, rules []rule) []string {
	var violations []string
	for _, pkg := range packages {
		for _, r := range rules {
			if !hasPathPrefix(pkg.ImportPath, r.Packages) {
				continue
			}
			for _, imp := range pkg.Imports {
				for _, forbidden := range r.Forbidden {
					if hasPathPrefix(imp, forbidden) {
						violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
					}
				}
			}
		}
	}
	sort.Strings(violations)
	return violations
}

func hasPathPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
