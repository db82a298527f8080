package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skimworks/skim/pricing"
	"github.com/skimworks/skim/rules"
)

var (
	validateRulesPath   string
	validatePricingPath string
)

// rulesCmd groups rule catalogue operations
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Work with the rule catalogue",
}

// rulesValidateCmd checks a catalogue file without running a scan
var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a rule catalogue file",
	Long: `Parse and validate a rule catalogue, and optionally the pricing
table it prices against. Exits non-zero on the first problem, so the
command fits into a pre-deploy check.`,
	Example: `  skim rules validate --rules rules.yaml
  skim rules validate --rules rules.yaml --pricing pricing.yaml`,
	RunE: runRulesValidate,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd)

	rulesValidateCmd.Flags().StringVar(&validateRulesPath, "rules", "rules.yaml", "Rule catalogue file to validate")
	rulesValidateCmd.Flags().StringVar(&validatePricingPath, "pricing", "", "Pricing table to validate the catalogue against")
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	catalog, err := rules.LoadCatalog(validateRulesPath)
	if err != nil {
		return fmt.Errorf("catalogue invalid: %w", err)
	}
	fmt.Printf("catalogue %s: %d rules OK\n", catalog.Version, len(catalog.Rules))

	if validatePricingPath == "" {
		return nil
	}

	table, err := pricing.LoadTable(validatePricingPath)
	if err != nil {
		return fmt.Errorf("pricing table invalid: %w", err)
	}

	// Every family the catalogue detects against must carry rates, or
	// findings would be rejected at scan time instead of review time
	for _, rule := range catalog.Rules {
		if len(table.Rates[rule.Family]) == 0 {
			return fmt.Errorf("rule %s: no pricing for family %s", rule.RuleID, rule.Family)
		}
	}
	fmt.Printf("pricing: %d families priced OK\n", len(table.Rates))
	return nil
}
