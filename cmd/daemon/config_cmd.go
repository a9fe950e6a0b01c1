// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ManuGH/livewatch/internal/config"
	"github.com/ManuGH/livewatch/internal/version"
	"gopkg.in/yaml.v3"
)

func runConfigCLI(args []string) int {
	return configCLI(args, os.Stdout, os.Stderr)
}

func configCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stderr)
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  livewatch config validate [--file|-f config.yaml]")
	fmt.Fprintln(w, "  livewatch config dump [--file|-f config.yaml] [--format=yaml|json]")
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("livewatch config validate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := resolveConfigPath(file)
	if configPath == "" {
		fmt.Fprintf(stderr, "Error: --file is required (or set %s)\n", envConfigPath)
		return 2
	}

	if _, err := config.NewLoader(configPath, version.Version).Load(); err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", configPath, err)
		return 1
	}

	fmt.Fprintf(stdout, "%s is valid\n", configPath)
	return 0
}

// runConfigDump prints the effective configuration (defaults + file + env).
func runConfigDump(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("livewatch config dump", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file, format string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	fs.StringVar(&format, "format", "yaml", "output format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.NewLoader(resolveConfigPath(file), version.Version).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			fmt.Fprintf(stderr, "Error encoding config: %v\n", err)
			return 1
		}
	case "yaml", "yml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			fmt.Fprintf(stderr, "Error encoding config: %v\n", err)
			return 1
		}
		_ = enc.Close()
	default:
		fmt.Fprintf(stderr, "Unknown format: %s\n", format)
		return 2
	}
	return 0
}
