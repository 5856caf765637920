/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/moamenhredeen/oasplugin/internal/generator"
	"github.com/moamenhredeen/oasplugin/internal/output"
	"github.com/moamenhredeen/oasplugin/internal/plugin"
	"github.com/spf13/cobra"
)

var (
	runArgs        []string
	runHeaders     []string
	runPayload     string
	runContentType string
	runExample     bool
	runOutput      string
	runOutputFile  string
	runPlugin      pluginFlags
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [openapi-spec-file] [function]",
	Short: "Call one function",
	Long: `Call a single operation with flat arguments.

Arguments are given as name=value pairs and are matched to path, query,
header and cookie parameters by name. The request body is passed with
--payload, or built from flat arguments with --dynamic-payload.

Examples:
  # Fetch one todo
  oasplugin run openapi.yaml getTodoById --arg id=3 --arg Authorization="Bearer t"

  # Create a todo from a file
  oasplugin run openapi.yaml addTodo --payload @todo.json

  # Fill missing required arguments with generated samples
  oasplugin run openapi.yaml addTodo --example -o json`,
	Args: cobra.ExactArgs(2),
	Run:  runFunction,
}

func runFunction(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()

	callArgs, err := parseKeyValues(runArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	headers, err := parseHeaders(runHeaders)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string, len(headers))
	}
	for k, val := range headers {
		cfg.Headers[k] = val
	}

	payload, err := readPayload(runPayload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if payload != nil {
		callArgs[plugin.PayloadArgument] = payload
	}
	if runContentType != "" {
		callArgs[plugin.ContentTypeArgument] = runContentType
	}

	_, p, err := runPlugin.loadPlugin(ctx, args[0], cfg.HTTPClient(nil))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading plugin: %v\n", err)
		os.Exit(1)
	}

	fn, ok := p.Function(args[1])
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: function %q not found in plugin %s\n", args[1], p.Name())
		os.Exit(1)
	}

	if runExample {
		if err := fillExamples(fn, callArgs, generator.NewGenerator()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	var s *spinner.Spinner
	if isTTY && runOutput == "" {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = fmt.Sprintf(" %s %s", fn.Operation().Method, fn.Operation().Path)
		s.Start()
	}
	result, err := fn.Invoke(ctx, callArgs)
	if s != nil {
		s.Stop()
	}

	record := output.NewRunRecord(fn.FullyQualifiedName(), result, err)

	if runOutput != "" {
		format, ferr := output.ParseFormat(runOutput)
		if ferr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ferr)
			os.Exit(1)
		}
		if ferr := output.ExportRunRecords([]output.RunRecord{record}, format, runOutputFile); ferr != nil {
			fmt.Fprintf(os.Stderr, "Error exporting results: %v\n", ferr)
			os.Exit(1)
		}
		if runOutputFile != "" {
			fmt.Printf("Results exported to: %s\n", runOutputFile)
		}
	} else {
		displayRecord(fn, record)
	}

	if err != nil {
		os.Exit(1)
	}
}

func displayRecord(fn *plugin.Function, rec output.RunRecord) {
	op := fn.Operation()
	status := green("✓")
	if rec.Error != "" {
		status = red("✗")
	}

	fmt.Printf("%s %s %s", status, op.Method, op.Path)
	if rec.StatusCode > 0 {
		fmt.Printf(" %s %d", cyan("→"), rec.StatusCode)
	}
	if rec.DurationMS > 0 {
		fmt.Printf(" (%.2fms)", rec.DurationMS)
	}
	fmt.Println()

	if rec.Error != "" {
		fmt.Printf("  Error: %s\n", red(rec.Error))
	}
	if verbose && rec.ContentType != "" {
		fmt.Printf("  Content-Type: %s\n", rec.ContentType)
	}

	switch {
	case rec.Content != nil:
		data, err := json.MarshalIndent(rec.Content, "", "  ")
		if err != nil {
			fmt.Println(rec.Content)
			return
		}
		fmt.Println(string(data))
	case rec.Body != "":
		fmt.Println(rec.Body)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runPlugin.register(runCmd)
	runCmd.Flags().StringArrayVarP(&runArgs, "arg", "a", nil, "Function argument as name=value (repeatable)")
	runCmd.Flags().StringArrayVarP(&runHeaders, "header", "H", nil, "Extra request header as name=value (repeatable)")
	runCmd.Flags().StringVarP(&runPayload, "payload", "p", "", "Request body as JSON, or @file")
	runCmd.Flags().StringVar(&runContentType, "content-type", "", "Request body content type (default: first declared)")
	runCmd.Flags().BoolVar(&runExample, "example", false, "Generate sample values for missing required arguments")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Output format: json, csv")
	runCmd.Flags().StringVar(&runOutputFile, "output-file", "", "Write output to file (default: stdout)")
}
