package main

import (
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/humanize"
	"github.com/eliteGoblin/focusd/site_mon/internal/storage"
	"github.com/eliteGoblin/focusd/site_mon/internal/usecase"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change cooldown and default session length",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change settings",
	Example: `  sitemon settings set --cooldown 60
  sitemon settings set --default 10`,
	Args: cobra.NoArgs,
	RunE: runSettingsSet,
}

var emergencyCodeCmd = &cobra.Command{
	Use:   "emergency-code",
	Short: "Print the emergency override code",
	Long: `Prints the emergency code. Write it down somewhere inconvenient (or scan the
--qr output with a phone you keep in another room) so overriding takes effort.`,
	Args: cobra.NoArgs,
	RunE: runEmergencyCode,
}

var (
	cooldownFlag   int
	defaultFlag    int
	showQR         bool
	regenerateCode bool
)

func init() {
	settingsSetCmd.Flags().IntVar(&cooldownFlag, "cooldown", 0, "Cooldown after each session, in minutes")
	settingsSetCmd.Flags().IntVar(&defaultFlag, "default", 0, "Default session length in minutes (0 to always ask)")
	emergencyCodeCmd.Flags().BoolVar(&showQR, "qr", false, "Also print the code as a QR code")
	emergencyCodeCmd.Flags().BoolVar(&regenerateCode, "regenerate", false, "Replace the code with a new random one")

	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd, emergencyCodeCmd)
}

func fetchSettings(cmd *cobra.Command) (domain.Settings, error) {
	c, err := newClient()
	if err != nil {
		return domain.Settings{}, err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	resp, err := c.Send(ctx, usecase.Request{Action: usecase.ActionGetSettings})
	if err != nil {
		return domain.Settings{}, err
	}
	if resp.Settings == nil {
		return domain.Settings{}, fmt.Errorf("daemon returned no settings")
	}
	return *resp.Settings, nil
}

func saveSettings(cmd *cobra.Command, st domain.Settings) (domain.Settings, error) {
	c, err := newClient()
	if err != nil {
		return domain.Settings{}, err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	resp, err := c.Send(ctx, usecase.Request{Action: usecase.ActionUpdateSettings, Settings: &st})
	if err != nil {
		return domain.Settings{}, err
	}
	return *resp.Settings, nil
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	st, err := fetchSettings(cmd)
	if err != nil {
		return err
	}
	printSettings(st)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if !flags.Changed("cooldown") && !flags.Changed("default") {
		return fmt.Errorf("nothing to change, pass --cooldown and/or --default")
	}

	st, err := fetchSettings(cmd)
	if err != nil {
		return err
	}
	if flags.Changed("cooldown") {
		st.CooldownMinutes = cooldownFlag
	}
	if flags.Changed("default") {
		st.DefaultMinutes = defaultFlag
	}
	// empty code keeps the stored one
	st.EmergencyCode = ""

	saved, err := saveSettings(cmd, st)
	if err != nil {
		return err
	}
	fmt.Println("Settings updated.")
	printSettings(saved)
	return nil
}

func printSettings(st domain.Settings) {
	fmt.Println("\n=== sitemon Settings ===")
	fmt.Printf("Cooldown:        %s\n", humanize.Minutes(st.CooldownMinutes))
	if st.DefaultMinutes > 0 {
		fmt.Printf("Default session: %s\n", humanize.Minutes(st.DefaultMinutes))
	} else {
		fmt.Println("Default session: ask every time")
	}
	fmt.Printf("Emergency code:  %s\n", maskCode(st.EmergencyCode))
	fmt.Println("========================")
}

// maskCode keeps the last four characters.
func maskCode(code string) string {
	if len(code) <= 4 {
		return strings.Repeat("*", len(code))
	}
	return strings.Repeat("*", len(code)-4) + code[len(code)-4:]
}

func runEmergencyCode(cmd *cobra.Command, args []string) error {
	st, err := fetchSettings(cmd)
	if err != nil {
		return err
	}

	if regenerateCode {
		code, err := storage.GenerateEmergencyCode()
		if err != nil {
			return err
		}
		st.EmergencyCode = code
		if st, err = saveSettings(cmd, st); err != nil {
			return err
		}
		fmt.Println("New emergency code generated. The old one no longer works.")
	}

	fmt.Printf("Emergency code: %s\n", st.EmergencyCode)
	if showQR {
		qr, err := qrcode.New(st.EmergencyCode, qrcode.Medium)
		if err != nil {
			return fmt.Errorf("failed to encode QR code: %w", err)
		}
		fmt.Println(qr.ToSmallString(false))
	}
	return nil
}
