package cli

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"storefront-sync/internal/checkout"
	"storefront-sync/internal/handler"
)

// CheckoutOptions holds flags for the checkout command.
type CheckoutOptions struct {
	*RootOptions
	DiscountCode string
}

// NewCheckoutCommand creates the checkout command.
func NewCheckoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckoutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Create a checkout session for the cart",
		Long: `Create a hosted checkout session for the signed-in shopper's cart and
print the payment URL. The cart is not changed.

Example:
  URL=$(storefront checkout -q --discount 10OFF)`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts.RootOptions, cmd.OutOrStdout())
			var body any
			if opts.DiscountCode != "" {
				body = handler.CreateCheckoutRequest{DiscountCode: opts.DiscountCode}
			}

			var res checkout.Result
			err := c.Do(cmd.Context(), http.MethodPost, "/checkout", body, &res)
			if err != nil {
				var apiErr *APIError
				if errors.As(err, &apiErr) && apiErr.Retryable && !c.out.quiet && !c.out.json {
					c.out.warning("%s", apiErr.Message)
				}
				return err
			}

			if c.out.result(res) {
				return nil
			}
			if c.out.quiet {
				c.out.line("%s", res.URL)
				return nil
			}
			c.out.success("Checkout session created")
			c.out.line("  Session: %s", res.SessionID)
			c.out.line("  Pay at:  %s", c.out.paint(ansiCyan, res.URL))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.DiscountCode, "discount", "", "discount code to apply")

	return cmd
}
