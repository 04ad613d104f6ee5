package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"storefront-sync/internal/handler"
)

// SessionOptions holds flags for the session commands.
type SessionOptions struct {
	*RootOptions
	Email       string
	Password    string
	RememberMe  bool
	DisplayName string
	Phone       string
}

// NewSessionCommand creates the session command and its subcommands.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or change the shopper session",
	}

	status := &cobra.Command{
		Use:          "status",
		Short:        "Show the current session",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts.RootOptions, cmd.OutOrStdout())
			var resp handler.SessionResponse
			if err := c.Do(cmd.Context(), http.MethodGet, "/session", nil, &resp); err != nil {
				return err
			}
			printSession(c.out, resp)
			return nil
		},
	}

	signIn := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password. Guest cart and wishlist items are
merged into the account.

The password is read from --password or STOREFRONT_PASSWORD.

Example:
  storefront session signin --email shopper@example.com --remember`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := opts.password()
			if err != nil {
				return err
			}
			c := newClient(opts.RootOptions, cmd.OutOrStdout())
			var resp handler.SessionResponse
			err = c.Do(cmd.Context(), http.MethodPost, "/session", handler.SignInRequest{
				Email:      opts.Email,
				Password:   password,
				RememberMe: opts.RememberMe,
			}, &resp)
			if err != nil {
				return err
			}
			if c.out.result(resp) {
				return nil
			}
			if c.out.quiet {
				c.out.line("%s", resp.UserID)
				return nil
			}
			c.out.success("Signed in as %s", resp.Email)
			return nil
		},
	}
	signIn.Flags().StringVar(&opts.Email, "email", "", "account email (required)")
	signIn.Flags().StringVar(&opts.Password, "password", "", "account password")
	signIn.Flags().BoolVar(&opts.RememberMe, "remember", false, "keep the session across restarts")
	_ = signIn.MarkFlagRequired("email")

	signUp := &cobra.Command{
		Use:          "signup",
		Short:        "Create an account",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := opts.password()
			if err != nil {
				return err
			}
			c := newClient(opts.RootOptions, cmd.OutOrStdout())
			var resp handler.SessionResponse
			err = c.Do(cmd.Context(), http.MethodPost, "/session/signup", handler.SignUpRequest{
				Email:       opts.Email,
				Password:    password,
				DisplayName: opts.DisplayName,
				Phone:       opts.Phone,
			}, &resp)
			if err != nil {
				return err
			}
			if c.out.result(resp) {
				return nil
			}
			if !resp.SignedIn {
				c.out.success("Account created; confirm %s before signing in", opts.Email)
				return nil
			}
			c.out.success("Account created and signed in as %s", resp.Email)
			return nil
		},
	}
	signUp.Flags().StringVar(&opts.Email, "email", "", "account email (required)")
	signUp.Flags().StringVar(&opts.Password, "password", "", "account password")
	signUp.Flags().StringVar(&opts.DisplayName, "name", "", "display name for the profile")
	signUp.Flags().StringVar(&opts.Phone, "phone", "", "phone number for the profile")
	_ = signUp.MarkFlagRequired("email")

	signOut := &cobra.Command{
		Use:          "signout",
		Short:        "Sign out and clear local user data",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts.RootOptions, cmd.OutOrStdout())
			if err := c.Do(cmd.Context(), http.MethodDelete, "/session", nil, nil); err != nil {
				return err
			}
			c.out.success("Signed out")
			return nil
		},
	}

	cmd.AddCommand(status, signIn, signUp, signOut)
	return cmd
}

func (o *SessionOptions) password() (string, error) {
	if o.Password != "" {
		return o.Password, nil
	}
	if p := os.Getenv("STOREFRONT_PASSWORD"); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("password required: use --password or STOREFRONT_PASSWORD")
}

func printSession(p *printer, resp handler.SessionResponse) {
	if p.result(resp) {
		return
	}
	if p.quiet {
		p.line("%s", resp.State)
		return
	}
	if !resp.SignedIn {
		p.info("Not signed in (%s)", resp.State)
		return
	}
	p.success("Signed in as %s", resp.Email)
	p.line("  User:     %s", resp.UserID)
	if resp.ExpiresAt != nil {
		p.line("  Expires:  %s", resp.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
	p.line("  Remember: %t", resp.RememberMe)
}
