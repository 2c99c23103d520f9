// bestinstancectl - CLI tool for the bestinstance service
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	serverURL string
	output    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "bestinstancectl",
		Short:   "bestinstance CLI - Pick the cheapest EC2 instance types for your workload",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "bestinstance server URL")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")

	selectCmd := &cobra.Command{
		Use:   "select",
		Short: "Select the instance types matching the given requirements",
		RunE:  runSelect,
	}
	selectCmd.Flags().StringP("file", "f", "", "Selection request file (YAML or JSON)")
	selectCmd.Flags().Int("vcpu", 0, "Minimum vCPU count")
	selectCmd.Flags().Float64("memory-gb", 0, "Minimum memory in GiB")
	selectCmd.Flags().String("usage-class", "", "Usage class (on-demand, spot)")
	selectCmd.Flags().Bool("burstable", false, "Require (or with =false forbid) burstable instance types")
	selectCmd.Flags().String("architecture", "", "Required architecture (default x86_64)")
	selectCmd.Flags().StringSlice("product-description", nil, "Product descriptions (default Linux/UNIX)")
	selectCmd.Flags().StringSlice("availability-zone", nil, "Availability zones for spot price lookups")
	selectCmd.Flags().String("spot-price-strategy", "", "Spot price aggregation strategy (min, max, average)")
	selectCmd.Flags().Bool("current-generation", false, "Require (or with =false forbid) current generation types")
	selectCmd.Flags().Bool("instance-storage", false, "Require (or with =false forbid) instance storage support")
	selectCmd.Flags().Bool("best-price", false, "Resolve prices and rank results cheapest first")
	selectCmd.Flags().Int("max-interruption", 0, "Maximum spot interruption frequency in percent")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show selector statistics",
		RunE:  runStats,
	}

	storageCmd := &cobra.Command{
		Use:   "storage [instance-type]",
		Short: "Check whether an instance type has local instance storage",
		Args:  cobra.ExactArgs(1),
		RunE:  runStorage,
	}

	rootCmd.AddCommand(selectCmd, statsCmd, storageCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// API client

func apiRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	url := serverURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	// Cold-cache selections can take minutes
	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if success, ok := result["success"].(bool); !ok || !success {
		if errInfo, ok := result["error"].(map[string]interface{}); ok {
			return nil, fmt.Errorf("%s: %s", errInfo["code"], errInfo["message"])
		}
		return nil, fmt.Errorf("request failed")
	}

	return result, nil
}

// Output helpers

func printOutput(data interface{}) {
	switch output {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(data)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.Encode(data)
	default:
		// Table format handled by specific commands
	}
}

func printOptionsTable(options []interface{}) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE TYPE\tPRICE\tINTERRUPTION\tAZ PRICES")

	for _, o := range options {
		opt, ok := o.(map[string]interface{})
		if !ok {
			continue
		}

		price := "-"
		if p, ok := opt["price"].(float64); ok && p > 0 {
			price = strconv.FormatFloat(p, 'f', 4, 64)
		}

		interruption := "-"
		if freq, ok := opt["interruption_frequency"].(map[string]interface{}); ok {
			if label, ok := freq["label"].(string); ok && label != "" {
				interruption = label
			}
		}

		azPrices := "-"
		if az, ok := opt["az_price"].(map[string]interface{}); ok && len(az) > 0 {
			zones := make([]string, 0, len(az))
			for zone := range az {
				zones = append(zones, zone)
			}
			sort.Strings(zones)

			pairs := make([]string, 0, len(zones))
			for _, zone := range zones {
				if p, ok := az[zone].(float64); ok {
					pairs = append(pairs, fmt.Sprintf("%s=%s", zone, strconv.FormatFloat(p, 'f', 4, 64)))
				}
			}
			azPrices = strings.Join(pairs, " ")
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", opt["instance_type"], price, interruption, azPrices)
	}
	w.Flush()
}

// Commands

func runSelect(cmd *cobra.Command, args []string) error {
	body, err := selectionRequest(cmd)
	if err != nil {
		return err
	}

	var s *spinner.Spinner
	if output == "table" {
		s = spinner.New(spinner.CharSets[9], 200*time.Millisecond)
		s.Suffix = " Selecting instance types ..."
		s.Start()
	}

	result, err := apiRequest("POST", "/api/v1/selections", body)
	if s != nil {
		s.Stop()
	}
	if err != nil {
		return err
	}

	data := result["data"].(map[string]interface{})
	options, _ := data["instance_types"].([]interface{})

	if output == "table" {
		fmt.Printf("Matched: %d instance types\n\n", len(options))
		printOptionsTable(options)
	} else {
		printOutput(options)
	}

	return nil
}

// selectionRequest assembles the request body from -f or from option flags.
func selectionRequest(cmd *cobra.Command) (map[string]interface{}, error) {
	file, _ := cmd.Flags().GetString("file")
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}

		var req map[string]interface{}
		if strings.HasSuffix(file, ".yaml") || strings.HasSuffix(file, ".yml") {
			if err := yaml.Unmarshal(data, &req); err != nil {
				return nil, fmt.Errorf("failed to parse YAML: %w", err)
			}
		} else {
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, fmt.Errorf("failed to parse JSON: %w", err)
			}
		}
		return req, nil
	}

	if !cmd.Flags().Changed("vcpu") || !cmd.Flags().Changed("memory-gb") {
		return nil, fmt.Errorf("either --file or both --vcpu and --memory-gb are required")
	}

	vcpu, _ := cmd.Flags().GetInt("vcpu")
	memoryGB, _ := cmd.Flags().GetFloat64("memory-gb")

	req := map[string]interface{}{
		"vcpu":      vcpu,
		"memory_gb": memoryGB,
	}

	if v, _ := cmd.Flags().GetString("usage-class"); v != "" {
		req["usage_class"] = v
	}
	if cmd.Flags().Changed("burstable") {
		v, _ := cmd.Flags().GetBool("burstable")
		req["burstable"] = v
	}
	if v, _ := cmd.Flags().GetString("architecture"); v != "" {
		req["architecture"] = v
	}
	if v, _ := cmd.Flags().GetStringSlice("product-description"); len(v) > 0 {
		req["product_descriptions"] = v
	}
	if v, _ := cmd.Flags().GetStringSlice("availability-zone"); len(v) > 0 {
		req["availability_zones"] = v
	}
	if v, _ := cmd.Flags().GetString("spot-price-strategy"); v != "" {
		req["final_spot_price_determination_strategy"] = v
	}
	if cmd.Flags().Changed("current-generation") {
		v, _ := cmd.Flags().GetBool("current-generation")
		req["is_current_generation"] = v
	}
	if cmd.Flags().Changed("instance-storage") {
		v, _ := cmd.Flags().GetBool("instance-storage")
		req["is_instance_storage_supported"] = v
	}
	if v, _ := cmd.Flags().GetBool("best-price"); v {
		req["is_best_price"] = true
	}
	if cmd.Flags().Changed("max-interruption") {
		v, _ := cmd.Flags().GetInt("max-interruption")
		req["max_interruption_frequency"] = v
	}

	return req, nil
}

func runStats(cmd *cobra.Command, args []string) error {
	result, err := apiRequest("GET", "/api/v1/stats", nil)
	if err != nil {
		return err
	}

	data := result["data"]

	if output == "table" {
		stats := data.(map[string]interface{})
		fmt.Printf("Selections:            %.0f\n", stats["selections"])
		fmt.Printf("Failures:              %.0f\n", stats["failures"])
		fmt.Printf("Cache Hits:            %.0f\n", stats["cache_hits"])
		fmt.Printf("Cache Misses:          %.0f\n", stats["cache_misses"])
		fmt.Printf("Cached Requests:       %.0f / %.0f\n", stats["cached_requests"], stats["cache_capacity"])
		fmt.Printf("Dropped (no price):    %.0f\n", stats["dropped_no_price"])
		fmt.Printf("Dropped (no history):  %.0f\n", stats["dropped_no_history"])
		fmt.Printf("Dropped (no advisor):  %.0f\n", stats["dropped_no_frequency"])
	} else {
		printOutput(data)
	}

	return nil
}

func runStorage(cmd *cobra.Command, args []string) error {
	result, err := apiRequest("GET", "/api/v1/instance-types/"+args[0]+"/instance-storage", nil)
	if err != nil {
		return err
	}

	data := result["data"]

	if output == "table" {
		probe := data.(map[string]interface{})
		fmt.Printf("Instance Type:     %s\n", probe["instance_type"])
		fmt.Printf("Instance Storage:  %v\n", probe["instance_storage_supported"])
	} else {
		printOutput(data)
	}

	return nil
}
