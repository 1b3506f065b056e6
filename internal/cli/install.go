// internal/cli/install.go
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/divvun/pahkat/pkg/event"
	"github.com/divvun/pahkat/pkg/pahkat"
)

var installCmd = &cobra.Command{
	Use:   "install [package-id...]",
	Short: "Install one or more packages",
	Long: `Resolve each package id against the loaded repositories and install it,
expanding dependencies and filtering out packages that are already
up to date.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall [package-id...]",
	Short: "Uninstall one or more packages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUninstall,
}

func runInstall(cmd *cobra.Command, args []string) error {
	return runTransaction(args, pahkat.ActionInstall)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	return runTransaction(args, pahkat.ActionUninstall)
}

func runTransaction(ids []string, actionType pahkat.ActionType) error {
	actions := make([]pahkat.PackageAction, 0, len(ids))
	for _, id := range ids {
		key, _, ok := engine.FindPackageByID(id)
		if !ok {
			return fmt.Errorf("package not found: %s", id)
		}
		actions = append(actions, pahkat.PackageAction{Key: key, Action: actionType, Scope: scope()})
	}

	err := engine.RunTransaction(actions, func(e pahkat.Event) bool {
		switch e.Kind {
		case event.KindInstalling:
			fmt.Printf("Installing %s...\n", e.PackageKey.ID)
		case event.KindUninstalling:
			fmt.Printf("Uninstalling %s...\n", e.PackageKey.ID)
		case event.KindError:
			fmt.Fprintf(os.Stderr, "Error on %s: %v\n", e.PackageKey.ID, e.Err)
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	fmt.Println("Done.")
	return nil
}
