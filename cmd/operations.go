/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/moamenhredeen/oasplugin/internal/kernel"
	"github.com/moamenhredeen/oasplugin/internal/plugin"
	"github.com/spf13/cobra"
)

var (
	filter       string
	tags         []string
	declarations bool
	opsPlugin    pluginFlags
)

// operationsCmd represents the operations command
var operationsCmd = &cobra.Command{
	Use:   "operations [openapi-spec-file]",
	Short: "List the functions a document exposes",
	Long: `List every operation of an OpenAPI document as a plugin function.

With --json the functions are printed as function calling declarations
(name, description and a JSON schema of the arguments).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		k, p, err := opsPlugin.loadPlugin(cmd.Context(), args[0], cfg.HTTPClient(nil))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading plugin: %v\n", err)
			os.Exit(1)
		}

		functions := filterFunctions(p.Functions(), filter, tags)
		if len(functions) == 0 {
			fmt.Println("No operations found matching the criteria")
			os.Exit(0)
		}

		if declarations {
			names := make([]string, 0, len(functions))
			for _, fn := range functions {
				names = append(names, fn.FullyQualifiedName())
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(k.Functions(kernel.Filter{IncludeFunctions: names})); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding declarations: %v\n", err)
				os.Exit(1)
			}
			return
		}

		displayFunctions(p, functions)
	},
}

func filterFunctions(functions []*plugin.Function, filterStr string, tagFilters []string) []*plugin.Function {
	var filtered []*plugin.Function

	for _, fn := range functions {
		op := fn.Operation()

		// Filter by path pattern, operation ID or function name
		if filterStr != "" {
			if !strings.Contains(op.Path, filterStr) &&
				!strings.Contains(op.ID, filterStr) &&
				!strings.Contains(fn.Name(), filterStr) {
				continue
			}
		}

		// Filter by tags
		if len(tagFilters) > 0 && !slices.ContainsFunc(op.Tags, func(tag string) bool {
			return slices.Contains(tagFilters, tag)
		}) {
			continue
		}

		filtered = append(filtered, fn)
	}

	return filtered
}

func displayFunctions(p *plugin.Plugin, functions []*plugin.Function) {
	fmt.Printf("\n%s\n", white("=== "+p.Name()+" ==="))
	if p.Description() != "" {
		fmt.Println(p.Description())
	}
	fmt.Printf("Functions: %d\n\n", len(functions))

	for _, fn := range functions {
		op := fn.Operation()
		fmt.Printf("%-8s %-40s %s\n", op.Method, op.Path, cyan(fn.FullyQualifiedName()))
		if verbose {
			if fn.Description() != "" {
				fmt.Printf("  %s\n", fn.Description())
			}
			fmt.Printf("  Server: %s\n", op.ServerURL)
			for _, arg := range fn.Arguments() {
				marker := " "
				if arg.Required {
					marker = red("*")
				}
				fmt.Printf("  %s %-24s %-7s %s\n", marker, arg.Name, arg.Location, arg.Description)
			}
			fmt.Println()
		}
	}
}

func init() {
	rootCmd.AddCommand(operationsCmd)

	opsPlugin.register(operationsCmd)
	operationsCmd.Flags().StringVar(&filter, "filter", "", "Filter by path pattern, operation ID or function name")
	operationsCmd.Flags().StringSliceVar(&tags, "tags", []string{}, "Filter by OpenAPI tags (can be specified multiple times)")
	operationsCmd.Flags().BoolVar(&declarations, "json", false, "Print function calling declarations as JSON")
}
