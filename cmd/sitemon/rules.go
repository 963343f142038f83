package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/policy"
	"github.com/eliteGoblin/focusd/site_mon/internal/usecase"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage blocked sites",
	Long: `Manage the list of blocked sites. A pattern is a hostname (facebook.com) or a
wildcard (*.facebook.com) that also covers every subdomain.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blocked sites",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesAddCmd = &cobra.Command{
	Use:   "add <pattern>...",
	Short: "Block one or more sites",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRulesAdd,
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove <pattern>",
	Short: "Stop blocking a site",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesRemove,
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable <pattern>",
	Short: "Re-enable a disabled rule",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setRuleEnabled(cmd, args[0], true) },
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable <pattern>",
	Short: "Disable a rule without removing it",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setRuleEnabled(cmd, args[0], false) },
}

var assumeYes bool

func init() {
	rulesRemoveCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")

	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesRemoveCmd, rulesEnableCmd, rulesDisableCmd)
	rootCmd.AddCommand(rulesCmd)
}

func fetchRules(cmd *cobra.Command) ([]domain.BlockRule, error) {
	c, err := newClient()
	if err != nil {
		return nil, err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()
	resp, err := c.Send(ctx, usecase.Request{Action: usecase.ActionGetBlockedDomains})
	if err != nil {
		return nil, err
	}
	return resp.BlockedDomains, nil
}

func saveRules(cmd *cobra.Command, rules []domain.BlockRule) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()
	_, err = c.Send(ctx, usecase.Request{Action: usecase.ActionUpdateBlockedDomains, BlockedDomains: rules})
	return err
}

func runRulesList(cmd *cobra.Command, args []string) error {
	rules, err := fetchRules(cmd)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		fmt.Println("No sites are blocked. Add one with 'sitemon rules add <pattern>'.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATTERN\tSTATUS")
	for _, r := range rules {
		status := "enabled"
		if !r.Enabled {
			status = "disabled"
		}
		fmt.Fprintf(w, "%s\t%s\n", r.Pattern, status)
	}
	return w.Flush()
}

func runRulesAdd(cmd *cobra.Command, args []string) error {
	rules, err := fetchRules(cmd)
	if err != nil {
		return err
	}
	for _, raw := range args {
		p, err := policy.NormalizePattern(raw)
		if err != nil {
			return err
		}
		if indexOfRule(rules, p) >= 0 {
			fmt.Printf("%s is already on the list\n", p)
			continue
		}
		rules = append(rules, domain.BlockRule{Pattern: p, Enabled: true})
		fmt.Printf("Blocking %s\n", p)
	}
	return saveRules(cmd, rules)
}

func runRulesRemove(cmd *cobra.Command, args []string) error {
	p, err := policy.NormalizePattern(args[0])
	if err != nil {
		return err
	}
	rules, err := fetchRules(cmd)
	if err != nil {
		return err
	}
	i := indexOfRule(rules, p)
	if i < 0 {
		return fmt.Errorf("%s is not on the list", p)
	}

	if !assumeYes {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("Stop blocking %s", p),
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
				fmt.Println("Kept.")
				return nil
			}
			return fmt.Errorf("confirmation failed: %w", err)
		}
	}

	rules = append(rules[:i], rules[i+1:]...)
	if err := saveRules(cmd, rules); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", p)
	return nil
}

func setRuleEnabled(cmd *cobra.Command, raw string, enabled bool) error {
	p, err := policy.NormalizePattern(raw)
	if err != nil {
		return err
	}
	rules, err := fetchRules(cmd)
	if err != nil {
		return err
	}
	i := indexOfRule(rules, p)
	if i < 0 {
		return fmt.Errorf("%s is not on the list", p)
	}
	rules[i].Enabled = enabled
	if err := saveRules(cmd, rules); err != nil {
		return err
	}
	if enabled {
		fmt.Printf("Enabled %s\n", p)
	} else {
		fmt.Printf("Disabled %s\n", p)
	}
	return nil
}

func indexOfRule(rules []domain.BlockRule, pattern string) int {
	for i, r := range rules {
		if r.Pattern == pattern {
			return i
		}
	}
	return -1
}
