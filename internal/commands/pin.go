package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newPinCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Manage your transfer PIN",
	}
	cmd.AddCommand(newPinSetCommand(a), newPinChangeCommand(a), newPinResetCommand(a))
	return cmd
}

func newPinSetCommand(a *app) *cobra.Command {
	var pin string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set your transfer PIN for the first time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			store, closeBank, err := a.openBank()
			if err != nil {
				return err
			}
			defer closeBank()

			has, err := store.HasPin(a.cfg.Member.ID)
			if err != nil {
				return err
			}
			if has {
				return errors.New("a PIN is already set; use `splitpay pin change` or `splitpay pin reset`")
			}
			if err := store.SetPin(cmd.Context(), a.cfg.Member.ID, pin); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Transfer PIN set.")
			return nil
		},
	}
	cmd.Flags().StringVar(&pin, "pin", "", "new 6-digit PIN (required)")
	_ = cmd.MarkFlagRequired("pin")
	return cmd
}

func newPinChangeCommand(a *app) *cobra.Command {
	var oldPin, newPin string

	cmd := &cobra.Command{
		Use:   "change",
		Short: "Change your transfer PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			store, closeBank, err := a.openBank()
			if err != nil {
				return err
			}
			defer closeBank()

			if err := store.ChangePin(cmd.Context(), a.cfg.Member.ID, oldPin, newPin); err != nil {
				return fmt.Errorf("changing pin: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Transfer PIN changed.")
			return nil
		},
	}
	cmd.Flags().StringVar(&oldPin, "old", "", "current PIN (required)")
	cmd.Flags().StringVar(&newPin, "new", "", "new PIN (required)")
	_ = cmd.MarkFlagRequired("old")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

func newPinResetCommand(a *app) *cobra.Command {
	var verification, pin string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset a locked PIN after identity re-verification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			store, closeBank, err := a.openBank()
			if err != nil {
				return err
			}
			defer closeBank()

			sess := a.session(cmd.Context())
			defer sess.Logout()

			if err := a.flow(store).ResetPin(sess, verification, pin); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Transfer PIN reset.")
			return nil
		},
	}
	cmd.Flags().StringVar(&verification, "verification", "", "identity verification token (required)")
	cmd.Flags().StringVar(&pin, "pin", "", "new 6-digit PIN (required)")
	_ = cmd.MarkFlagRequired("verification")
	_ = cmd.MarkFlagRequired("pin")
	return cmd
}
