// Command underfs-config prints the effective adapter configuration as
// YAML: file and environment sources merged, defaults applied, validation
// skipped so partial configurations can be inspected while being written.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/underfs/underfs/pkg/config"
	"gopkg.in/yaml.v3"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	output := flag.String("output", "", "Write to file instead of stdout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Fall back to pure defaults so the template is still printable.
		fmt.Fprintf(os.Stderr, "Warning: %v (printing defaults)\n", err)
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling config: %v\n", err)
		os.Exit(1)
	}

	if *output == "" {
		os.Stdout.Write(data)
		return
	}

	if err := os.WriteFile(*output, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Configuration written to %s\n", *output)
}
