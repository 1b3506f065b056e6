// internal/cli/info.go
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [package-id]",
	Short: "Show a package's descriptor: name, releases and targets",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	id := args[0]
	key, pkg, ok := engine.FindPackageByID(id)
	if !ok {
		return fmt.Errorf("package not found: %s", id)
	}
	if pkg.Concrete == nil {
		return fmt.Errorf("package %s has no concrete descriptor", id)
	}

	d := pkg.Concrete
	fmt.Printf("ID:   %s\n", d.ID)
	fmt.Printf("Key:  %s\n", key.String())
	if name, ok := d.Name["en"]; ok {
		fmt.Printf("Name: %s\n", name)
	}
	if desc, ok := d.Description["en"]; ok {
		fmt.Printf("Description: %s\n", desc)
	}
	if len(d.Tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(d.Tags, ", "))
	}

	fmt.Printf("\nReleases (newest first):\n")
	for _, r := range d.Releases {
		fmt.Printf("  %s  channel=%s\n", r.Version.String(), releaseChannel(r.Channel))
		for _, t := range r.Targets {
			fmt.Printf("    target %s/%s: %s (%d bytes)\n", t.Platform, targetArch(t.Arch), t.Payload.Kind, t.Payload.Size)
			if len(t.Dependencies) > 0 {
				deps := make([]string, 0, len(t.Dependencies))
				for dep, spec := range t.Dependencies {
					deps = append(deps, fmt.Sprintf("%s %s", dep, spec))
				}
				fmt.Printf("      depends on: %s\n", strings.Join(deps, ", "))
			}
		}
	}

	return nil
}

func releaseChannel(c string) string {
	if c == "" {
		return "stable"
	}
	return c
}

func targetArch(a string) string {
	if a == "" {
		return "any"
	}
	return a
}
