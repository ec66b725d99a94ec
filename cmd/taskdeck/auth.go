package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dori/taskdeck/internal/api"
	"github.com/dori/taskdeck/internal/app"
	"github.com/dori/taskdeck/internal/session"
)

var stdin = bufio.NewReader(os.Stdin)

// prompt reads one line from stdin when value is empty
func prompt(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(os.Stderr, "%s: ", label)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func signupCmd(flags *globalFlags) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if name, err = prompt("Name", name); err != nil {
				return err
			}
			if email, err = prompt("Email", email); err != nil {
				return err
			}
			if password, err = prompt("Password", password); err != nil {
				return err
			}

			msg, err := a.API.Register(context.Background(), api.Registration{Name: name, Email: email, Password: password})
			if err != nil {
				return err
			}
			fmt.Println(msg)
			fmt.Printf("Next: taskdeck verify --email %s --token <code from the email>\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Your name")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	return cmd
}

func loginCmd(flags *globalFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if email, err = prompt("Email", email); err != nil {
				return err
			}
			if password, err = prompt("Password", password); err != nil {
				return err
			}

			res, err := a.API.Login(context.Background(), email, password)
			if err != nil {
				return err
			}
			if err := a.Session.Establish(res.Token, res.User); err != nil {
				if !session.IsStorageWarning(err) {
					return err
				}
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
			fmt.Printf("Logged in as %s\n", res.User.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	return cmd
}

func logoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, ok := a.Session.Current(); !ok {
				fmt.Println("Not logged in")
				return nil
			}
			if err := a.Session.Teardown(app.ReasonLogout); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

func whoamiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			d := a.Guard.Check(session.RouteTasks)
			if d.Route != session.RouteTasks {
				if d.TornDown {
					fmt.Printf("Not logged in (%s)\n", d.Reason)
				} else {
					fmt.Println("Not logged in")
				}
				return nil
			}

			s, _ := a.Session.Current()
			if s.User != nil {
				fmt.Printf("Name:    %s\n", s.User.Name)
				fmt.Printf("Email:   %s\n", s.User.Email)
			}
			fmt.Printf("Expires: %s (in %s)\n", s.ExpiresAt.Local().Format(time.RFC1123),
				time.Until(s.ExpiresAt).Round(time.Second))
			fmt.Printf("API:     %s\n", a.API.BaseURL())
			return nil
		},
	}
}

func verifyCmd(flags *globalFlags) *cobra.Command {
	var email, token string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify your email address",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if email, err = prompt("Email", email); err != nil {
				return err
			}
			if token, err = prompt("Verification code", token); err != nil {
				return err
			}
			msg, err := a.API.VerifyEmail(context.Background(), email, token)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	cmd.Flags().StringVarP(&token, "token", "t", "", "Verification code from the email")
	return cmd
}

func resendCmd(flags *globalFlags) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "resend-verification",
		Short: "Send the verification email again",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if email, err = prompt("Email", email); err != nil {
				return err
			}
			msg, err := a.API.ResendVerification(context.Background(), email)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	return cmd
}

func forgotCmd(flags *globalFlags) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset link",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if email, err = prompt("Email", email); err != nil {
				return err
			}
			msg, err := a.API.ForgotPassword(context.Background(), email)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	return cmd
}

func resetCmd(flags *globalFlags) *cobra.Command {
	var token, email, password, confirm string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with the token from the reset link",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if token, err = prompt("Reset token", token); err != nil {
				return err
			}
			if email, err = prompt("Email", email); err != nil {
				return err
			}
			if password, err = prompt("New password", password); err != nil {
				return err
			}
			if confirm, err = prompt("Confirm password", confirm); err != nil {
				return err
			}
			msg, err := a.API.ResetPassword(context.Background(), token, email, password, confirm)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&token, "token", "t", "", "Reset token from the email")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "New password (prompted when omitted)")
	cmd.Flags().StringVar(&confirm, "confirm", "", "New password again (prompted when omitted)")
	return cmd
}
