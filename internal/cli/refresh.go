// internal/cli/refresh.go
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload every configured repository index",
	Args:  cobra.NoArgs,
	RunE:  runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	errs := engine.RefreshRepos()
	if len(errs) == 0 {
		fmt.Println("All repositories up to date.")
		return nil
	}

	failed := 0
	for url, err := range errs {
		if err == nil {
			continue
		}
		failed++
		fmt.Fprintf(os.Stderr, "%s: %v\n", url, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d repositories failed to refresh", failed)
	}
	fmt.Println("All repositories up to date.")
	return nil
}
