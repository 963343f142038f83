package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/humanize"
	"github.com/eliteGoblin/focusd/site_mon/internal/policy"
	"github.com/eliteGoblin/focusd/site_mon/internal/usecase"
)

var checkCmd = &cobra.Command{
	Use:   "check <url-or-domain>",
	Short: "Show whether a URL would be blocked right now",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var grantCmd = &cobra.Command{
	Use:   "grant <domain-or-url>",
	Short: "Open a justified session for a blocked site",
	Long: `Opens a session for a blocked site. You must say why you need it; the reason
is kept in the usage log. When the session ends the site stays locked for the
configured cooldown.`,
	Args: cobra.ExactArgs(1),
	RunE: runGrant,
}

var overrideCmd = &cobra.Command{
	Use:   "override <domain-or-url>",
	Short: "Open a session with the emergency code",
	Long: `Opens a session of the default length, even during a cooldown, if you enter
the emergency code. Overrides are marked in the usage log.`,
	Args: cobra.ExactArgs(1),
	RunE: runOverride,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show granted sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize granted sessions",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var attemptsCmd = &cobra.Command{
	Use:   "attempts <domain>",
	Short: "Show today's blocked attempts for a site",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttempts,
}

var (
	grantMinutes int
	grantReason  string
	logsLimit    int
)

func init() {
	grantCmd.Flags().IntVarP(&grantMinutes, "minutes", "m", 0, "Session length in minutes (default: configured default)")
	grantCmd.Flags().StringVarP(&grantReason, "reason", "r", "", "Why you need the site (prompted if omitted)")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 20, "Maximum entries to show (0 for all)")

	rootCmd.AddCommand(checkCmd, grantCmd, overrideCmd, logsCmd, statsCmd, attemptsCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	target := args[0]
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}
	resp, err := c.Send(ctx, usecase.Request{Action: usecase.ActionEvaluateURL, URL: target})
	if err != nil {
		return err
	}
	dec := resp.Decision
	if dec == nil {
		return fmt.Errorf("daemon returned no decision")
	}
	if !dec.Blocked {
		fmt.Println("ALLOWED")
		return nil
	}

	switch dec.Reason {
	case domain.ReasonCooldown:
		fmt.Printf("BLOCKED: %s is cooling down", dec.Domain)
		if dec.CooldownUntil != nil {
			fmt.Printf(", available in %s", humanize.Remaining(time.Until(*dec.CooldownUntil)))
		}
		fmt.Println()
	default:
		fmt.Printf("BLOCKED: %s needs a justified session (sitemon grant %s)\n", dec.Domain, dec.Domain)
	}
	return nil
}

func runGrant(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	target := args[0]

	minutes := grantMinutes
	if minutes == 0 {
		ctx, cancel := requestContext(cmd)
		resp, err := c.Send(ctx, usecase.Request{Action: usecase.ActionGetSettings})
		cancel()
		if err != nil {
			return err
		}
		minutes = resp.Settings.DefaultMinutes
		if minutes == 0 {
			return fmt.Errorf("no default session length configured, pass --minutes")
		}
	}

	reason := strings.TrimSpace(grantReason)
	if reason == "" {
		prompt := promptui.Prompt{
			Label: fmt.Sprintf("Why do you need %s for %s", target, humanize.Minutes(minutes)),
			Validate: func(s string) error {
				return policy.ValidateJustification(strings.TrimSpace(s))
			},
		}
		reason, err = prompt.Run()
		if err != nil {
			return fmt.Errorf("no justification given: %w", err)
		}
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()
	resp, err := c.Send(ctx, withTarget(usecase.Request{
		Action:        usecase.ActionSavePermission,
		Justification: reason,
		Minutes:       minutes,
	}, target))
	if err != nil {
		return err
	}
	printSession(resp)
	return nil
}

func runOverride(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	code, err := readSecret("Emergency code: ")
	if err != nil {
		return err
	}
	if code == "" {
		return fmt.Errorf("no code entered")
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()
	resp, err := c.Send(ctx, withTarget(usecase.Request{
		Action: usecase.ActionCheckEmergencyCode,
		Code:   code,
	}, args[0]))
	if err != nil {
		return err
	}
	fmt.Println("Emergency override accepted.")
	printSession(resp)
	return nil
}

// withTarget sets the request's URL or domain from a command-line argument.
func withTarget(req usecase.Request, arg string) usecase.Request {
	if strings.Contains(arg, "://") {
		req.URL = arg
	} else {
		req.Domain = arg
	}
	return req
}

// readSecret reads a line without echo when stdin is a terminal.
func readSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, label)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read code: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read code: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func printSession(resp usecase.Response) {
	if resp.ExpiresAt != nil {
		fmt.Printf("Session open for %s (until %s).\n",
			humanize.Remaining(time.Until(*resp.ExpiresAt)),
			resp.ExpiresAt.Local().Format(time.Kitchen))
	}
	if resp.CooldownUntil != nil {
		fmt.Printf("Locked again until %s.\n", resp.CooldownUntil.Local().Format(time.Kitchen))
	}
}

func runLogs(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	resp, err := c.Send(ctx, usecase.Request{Action: usecase.ActionGetUsageLogs, Limit: logsLimit})
	if err != nil {
		return err
	}
	if len(resp.UsageLogs) == 0 {
		fmt.Println("No sessions yet.")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tDOMAIN\tLENGTH\tREASON")
	for _, e := range resp.UsageLogs {
		reason := e.Justification
		if e.WasEmergencyOverride {
			reason = "[emergency] " + reason
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			humanize.DateTime(e.GrantedAt, now), e.Domain, humanize.Minutes(e.Duration), reason)
	}
	return w.Flush()
}

func runStats(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	resp, err := c.Send(ctx, usecase.Request{Action: usecase.ActionGetUsageStats})
	if err != nil {
		return err
	}
	s := resp.Stats
	if s == nil {
		return fmt.Errorf("daemon returned no stats")
	}

	fmt.Println("\n=== Usage ===")
	fmt.Printf("Sessions: %d\n", s.TotalSessions)
	fmt.Printf("Time granted: %s\n", humanize.Minutes(s.TotalMinutes))
	fmt.Printf("Emergency overrides: %d\n", s.Emergency)
	if s.MostAccessed != "" {
		fmt.Printf("Most accessed: %s\n", s.MostAccessed)
	}
	if len(s.TopDomains) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DOMAIN\tSESSIONS\tTIME")
		for _, d := range s.TopDomains {
			fmt.Fprintf(w, "%s\t%d\t%s\n", d.Domain, d.Sessions, humanize.Minutes(d.TotalMinutes))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	fmt.Println("=============")
	return nil
}

func runAttempts(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	resp, err := c.Send(ctx, withTarget(usecase.Request{Action: usecase.ActionGetAccessAttempts}, args[0]))
	if err != nil {
		return err
	}
	printAttempts(resp)
	return nil
}

func printAttempts(resp usecase.Response) {
	n := 0
	if resp.Count != nil {
		n = *resp.Count
	}
	switch {
	case n == 0:
		fmt.Println("No blocked attempts today.")
	case resp.LastAttempt != nil:
		fmt.Printf("%d blocked attempts today, last %s.\n", n, humanize.Ago(*resp.LastAttempt, time.Now()))
	default:
		fmt.Printf("%d blocked attempts today.\n", n)
	}
}

