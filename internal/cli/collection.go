package cli

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"storefront-sync/internal/handler"
	"storefront-sync/internal/model"
)

// ItemOptions describes the product being added. The service stores the
// snapshot with the line item, so name and price travel with the request.
type ItemOptions struct {
	*RootOptions
	ProductID string
	VariantID string
	Quantity  int
	Name      string
	Price     string // major units, e.g. "49.90"
	Image     string
	Size      string
	Color     string
}

func (o *ItemOptions) request() handler.AddItemRequest {
	req := handler.AddItemRequest{
		ProductID: o.ProductID,
		VariantID: o.VariantID,
		Quantity:  o.Quantity,
		Product: &model.ProductSnapshot{
			ID:        o.ProductID,
			Name:      o.Name,
			Image:     o.Image,
			BasePrice: model.ParseCents(o.Price),
		},
	}
	if o.VariantID != "" {
		req.Variant = &model.VariantSnapshot{ID: o.VariantID, Size: o.Size, Color: o.Color}
	}
	return req
}

func (o *ItemOptions) bind(cmd *cobra.Command, withQuantity bool) {
	cmd.Flags().StringVar(&o.ProductID, "product", "", "product ID (required)")
	cmd.Flags().StringVar(&o.VariantID, "variant", "", "variant ID")
	cmd.Flags().StringVar(&o.Name, "name", "", "product name")
	cmd.Flags().StringVar(&o.Price, "price", "", "unit price, e.g. 49.90")
	cmd.Flags().StringVar(&o.Image, "image", "", "product image URL")
	cmd.Flags().StringVar(&o.Size, "size", "", "variant size")
	cmd.Flags().StringVar(&o.Color, "color", "", "variant color")
	if withQuantity {
		cmd.Flags().IntVar(&o.Quantity, "qty", 1, "quantity")
	}
	_ = cmd.MarkFlagRequired("product")
}

// NewCartCommand creates the cart command and its subcommands.
func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "View and change the cart",
	}

	item := &ItemOptions{RootOptions: rootOpts}
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a product variant to the cart",
		Long: `Add a product variant to the cart. Adding a variant already in the
cart increases its quantity.

Example:
  storefront cart add --product p1 --variant v1 --qty 2 --name "Linen Shirt" --price 49.90 --size M`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(rootOpts, cmd.OutOrStdout())
			var li model.LineItem
			if err := c.Do(cmd.Context(), http.MethodPost, "/cart/items", item.request(), &li); err != nil {
				return err
			}
			if c.out.result(li) {
				return nil
			}
			if c.out.quiet {
				c.out.line("%s", li.ID)
				return nil
			}
			c.out.success("Added to cart (quantity %d)", li.Quantity)
			c.out.line("  ID: %s", c.out.paint(ansiCyan, li.ID))
			return nil
		},
	}
	item.bind(add, true)

	setQty := &cobra.Command{
		Use:          "set-qty <item-id> <quantity>",
		Short:        "Set the quantity of a cart item (0 removes it)",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			c := newClient(rootOpts, cmd.OutOrStdout())
			var snap model.Snapshot
			err = c.Do(cmd.Context(), http.MethodPatch, "/cart/items/"+args[0], handler.UpdateQuantityRequest{Quantity: &qty}, &snap)
			if err != nil {
				return err
			}
			c.out.snapshot("Cart", snap, true)
			return nil
		},
	}

	cmd.AddCommand(
		showCommand(rootOpts, "/cart", "Cart", true),
		add,
		setQty,
		removeCommand(rootOpts, "/cart", "cart"),
		clearCommand(rootOpts, "/cart", "Cart"),
		refreshCommand(rootOpts, "/cart", "Cart", true),
	)
	return cmd
}

// NewWishlistCommand creates the wishlist command and its subcommands.
func NewWishlistCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wishlist",
		Short: "View and change the wishlist",
	}

	item := &ItemOptions{RootOptions: rootOpts}
	toggle := &cobra.Command{
		Use:          "toggle",
		Short:        "Add a product to the wishlist, or remove it if present",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(rootOpts, cmd.OutOrStdout())
			var resp handler.ToggleResponse
			if err := c.Do(cmd.Context(), http.MethodPost, "/wishlist/toggle", item.request(), &resp); err != nil {
				return err
			}
			if c.out.result(resp) {
				return nil
			}
			if c.out.quiet {
				c.out.line("%t", resp.InWishlist)
				return nil
			}
			if resp.InWishlist {
				c.out.success("Added %s to wishlist", item.ProductID)
			} else {
				c.out.success("Removed %s from wishlist", item.ProductID)
			}
			return nil
		},
	}
	item.bind(toggle, false)

	cmd.AddCommand(
		showCommand(rootOpts, "/wishlist", "Wishlist", false),
		toggle,
		removeCommand(rootOpts, "/wishlist", "wishlist"),
		clearCommand(rootOpts, "/wishlist", "Wishlist"),
		refreshCommand(rootOpts, "/wishlist", "Wishlist", false),
	)
	return cmd
}

func showCommand(opts *RootOptions, path, title string, totals bool) *cobra.Command {
	return &cobra.Command{
		Use:          "show",
		Short:        "Show the " + path[1:],
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts, cmd.OutOrStdout())
			var snap model.Snapshot
			if err := c.Do(cmd.Context(), http.MethodGet, path, nil, &snap); err != nil {
				return err
			}
			c.out.snapshot(title, snap, totals)
			return nil
		},
	}
}

func removeCommand(opts *RootOptions, path, noun string) *cobra.Command {
	return &cobra.Command{
		Use:          "remove <item-id>",
		Short:        "Remove an item from the " + noun,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts, cmd.OutOrStdout())
			if err := c.Do(cmd.Context(), http.MethodDelete, path+"/items/"+args[0], nil, nil); err != nil {
				return err
			}
			c.out.success("Removed %s from %s", args[0], noun)
			return nil
		},
	}
}

func clearCommand(opts *RootOptions, path, title string) *cobra.Command {
	return &cobra.Command{
		Use:          "clear",
		Short:        "Remove every item",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts, cmd.OutOrStdout())
			if err := c.Do(cmd.Context(), http.MethodDelete, path, nil, nil); err != nil {
				return err
			}
			c.out.success("%s cleared", title)
			return nil
		},
	}
}

func refreshCommand(opts *RootOptions, path, title string, totals bool) *cobra.Command {
	return &cobra.Command{
		Use:          "refresh",
		Short:        "Reload from the backend",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts, cmd.OutOrStdout())
			var snap model.Snapshot
			if err := c.Do(cmd.Context(), http.MethodPost, path+"/refresh", nil, &snap); err != nil {
				return err
			}
			c.out.snapshot(title, snap, totals)
			return nil
		},
	}
}
