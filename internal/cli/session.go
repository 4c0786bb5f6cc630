package cli

import (
	"errors"
	"fmt"
	"sort"

	"drivingschool-console/internal/domain"
	"github.com/spf13/cobra"
)

// NewLoginCmd stores a session for later commands.
func NewLoginCmd(configPath *string) *cobra.Command {
	var phone, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with phone and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			res, err := rt.session.Login(cmd.Context(), rt.client, phone, password)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", res.Phone)
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "account phone number")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// NewLogoutCmd clears the stored session.
func NewLogoutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

// describe renders a classified error with its field messages.
func describe(err error) error {
	var de *domain.Error
	if !errors.As(err, &de) || len(de.Fields) == 0 {
		return err
	}
	names := make([]string, 0, len(de.Fields))
	for name := range de.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	msg := de.Message
	for _, name := range names {
		for _, fieldMsg := range de.Fields[name] {
			msg += fmt.Sprintf("\n  %s: %s", name, fieldMsg)
		}
	}
	return errors.New(msg)
}
