package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/datagrade/datagrade/pkg/analyzer"
	"github.com/datagrade/datagrade/pkg/config"
)

var analyzersCmd = &cobra.Command{
	Use:   "analyzers",
	Short: "List the built-in analyzers",
	RunE:  runAnalyzers,
}

func runAnalyzers(cmd *cobra.Command, args []string) error {
	fmt.Printf("%-18s %-10s %-14s %s\n", "Name", "Tier", "Category", "Needs")
	fmt.Printf("%-18s %-10s %-14s %s\n",
		strings.Repeat("-", 18), strings.Repeat("-", 10), strings.Repeat("-", 14), strings.Repeat("-", 8))
	for _, a := range analyzer.Builtins() {
		needs := "-"
		switch a.Requires() {
		case analyzer.CapabilityModel:
			needs = "model"
		case analyzer.CapabilityNetwork:
			needs = "network"
		}
		fmt.Printf("%-18s %-10s %-14s %s\n", a.Name(), a.Tier(), a.Category(), needs)
	}
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE:  runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	m := config.Global()
	data, err := yaml.Marshal(m.Get())
	if err != nil {
		return err
	}
	if paths := m.GetPaths(); len(paths) > 0 {
		fmt.Println("# Loaded from:")
		for _, p := range paths {
			fmt.Printf("#   %s\n", p)
		}
	}
	fmt.Print(string(data))
	return nil
}
