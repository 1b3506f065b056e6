// internal/cli/status.go
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/divvun/pahkat/pkg/version"
)

var statusCmd = &cobra.Command{
	Use:   "status [package-id]",
	Short: "Show a package's install status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	id := args[0]
	key, pkg, ok := engine.FindPackageByID(id)
	if !ok {
		return fmt.Errorf("package not found: %s", id)
	}

	result, err := engine.Status(key, scope())
	if err != nil {
		return fmt.Errorf("checking status of %s: %w", id, err)
	}

	fmt.Printf("%s: %s\n", id, statusString(result))
	if pkg.Concrete != nil && len(pkg.Concrete.Releases) > 0 {
		fmt.Printf("  latest: %s\n", pkg.Concrete.Releases[0].Version.String())
	}
	return nil
}

func statusString(r version.Result) string {
	switch r {
	case version.NotInstalled:
		return "not installed"
	case version.UpToDate:
		return "up to date"
	case version.RequiresUpdate:
		return "requires update"
	default:
		return "unknown"
	}
}
