// internal/cli/list.go
package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/divvun/pahkat/pkg/model"
)

var listInstalled bool

var listCmd = &cobra.Command{
	Use:   "list [repo-url]",
	Short: "List configured repositories, or packages within one",
	Long: `With no argument, list every repository configured in config.toml.
With a repo-url argument, list the packages that repository's loaded index
currently holds, alongside each one's install status. --installed instead
lists every package tracked in the store's own install database, where the
backend supports that (currently the prefix backend only).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listInstalled, "installed", false, "list installed packages from the store's own database instead")
}

func runList(cmd *cobra.Command, args []string) error {
	if listInstalled {
		return listInstalledPackages(cmd)
	}
	if len(args) == 0 {
		return listRepos()
	}
	return listPackages(args[0])
}

func listInstalledPackages(cmd *cobra.Command) error {
	installed, supported, err := engine.InstalledPackages(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing installed packages: %w", err)
	}
	if !supported {
		return fmt.Errorf("the current store backend has no installed-package database to enumerate")
	}
	if len(installed) == 0 {
		fmt.Println("No packages installed.")
		return nil
	}

	urls := make([]string, 0, len(installed))
	for url := range installed {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	for _, url := range urls {
		fmt.Printf("%-60s %s\n", url, installed[url])
	}
	return nil
}

func listRepos() error {
	repos := engine.ConfiguredRepos()
	if len(repos) == 0 {
		fmt.Println("No repositories configured.")
		return nil
	}
	for _, r := range repos {
		fmt.Printf("%s  (channel: %s)\n", r.URL, r.Channel)
	}
	return nil
}

func listPackages(repoURL string) error {
	statuses := engine.AllStatuses(model.NormalizeRepoURL(repoURL), scope())
	if len(statuses) == 0 {
		fmt.Println("No packages found in that repository.")
		return nil
	}

	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		r := statuses[id]
		if r.Err != nil {
			fmt.Printf("%-40s error: %v\n", id, r.Err)
			continue
		}
		fmt.Printf("%-40s %s\n", id, statusString(r.Status))
	}
	return nil
}
