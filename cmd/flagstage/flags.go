package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cuemby/flagstage/pkg/config"
	"github.com/cuemby/flagstage/pkg/deviceconfig"
)

var getCmd = &cobra.Command{
	Use:   "get NAMESPACE [KEY...]",
	Short: "Print the values of a namespace",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withService(cmd, func(_ *config.Config, svc *deviceconfig.Service) error {
			values := svc.GetProperties(args[0], args[1:]...)
			return printValues(cmd.OutOrStdout(), values, asJSON)
		})
	},
}

var setCmd = &cobra.Command{
	Use:   "set NAMESPACE KEY VALUE",
	Short: "Set a value, effective immediately",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ *config.Config, svc *deviceconfig.Service) error {
			if !svc.SetProperty(args[0], args[1], args[2], false) {
				return fmt.Errorf("failed to set %s/%s", args[0], args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s/%s=%s\n", args[0], args[1], args[2])
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete NAMESPACE KEY",
	Short: "Delete a value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ *config.Config, svc *deviceconfig.Service) error {
			if !svc.DeleteProperty(args[0], args[1]) {
				return fmt.Errorf("%s/%s not found", args[0], args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s/%s\n", args[0], args[1])
			return nil
		})
	},
}

var namespacesCmd = &cobra.Command{
	Use:   "namespaces",
	Short: "List namespaces holding values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(_ *config.Config, svc *deviceconfig.Service) error {
			for _, ns := range svc.Namespaces() {
				fmt.Fprintln(cmd.OutOrStdout(), ns)
			}
			return nil
		})
	},
}

func init() {
	getCmd.Flags().Bool("json", false, "Print as a JSON object")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(namespacesCmd)
}

func printValues(w io.Writer, values map[string]string, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(values)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s=%s\n", k, values[k])
	}
	return nil
}
