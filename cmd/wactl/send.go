package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/channels/whatsapp"
	"github.com/wolfman30/clinic-whatsapp-agent/internal/phone"
)

const commandTimeout = time.Minute

type sendOptions struct {
	to                string
	body              string
	imageURL          string
	caption           string
	latitude          float64
	longitude         float64
	name              string
	address           string
	template          string
	language          string
	params            []string
	catalogID         string
	productRetailerID string
}

func newSendCmd(global *globalOptions) *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message through the Cloud API",
	}
	cmd.PersistentFlags().StringVar(&opts.to, "to", "", "recipient phone; normalized before sending")
	_ = cmd.MarkPersistentFlagRequired("to")

	text := &cobra.Command{
		Use:   "text",
		Short: "Send a plain text message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.body) == "" {
				return errors.New("--body is required")
			}
			return runSend(cmd, global, "text", func(ctx context.Context, c *whatsapp.Client, to string) (*whatsapp.SendResponse, error) {
				return c.SendText(ctx, to, opts.body)
			})
		},
	}
	text.Flags().StringVar(&opts.body, "body", "", "message text")

	image := &cobra.Command{
		Use:   "image",
		Short: "Send an image by public URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.imageURL == "" {
				return errors.New("--url is required")
			}
			return runSend(cmd, global, "image", func(ctx context.Context, c *whatsapp.Client, to string) (*whatsapp.SendResponse, error) {
				return c.SendImage(ctx, to, opts.imageURL, opts.caption)
			})
		},
	}
	image.Flags().StringVar(&opts.imageURL, "url", "", "public image URL")
	image.Flags().StringVar(&opts.caption, "caption", "", "optional caption")

	location := &cobra.Command{
		Use:   "location",
		Short: "Send a location pin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lng") {
				return errors.New("--lat and --lng are required")
			}
			return runSend(cmd, global, "location", func(ctx context.Context, c *whatsapp.Client, to string) (*whatsapp.SendResponse, error) {
				return c.SendLocation(ctx, to, whatsapp.Location{
					Latitude:  opts.latitude,
					Longitude: opts.longitude,
					Name:      opts.name,
					Address:   opts.address,
				})
			})
		},
	}
	location.Flags().Float64Var(&opts.latitude, "lat", 0, "latitude")
	location.Flags().Float64Var(&opts.longitude, "lng", 0, "longitude")
	location.Flags().StringVar(&opts.name, "name", "", "place name")
	location.Flags().StringVar(&opts.address, "address", "", "street address")

	template := &cobra.Command{
		Use:   "template",
		Short: "Send an approved message template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.template == "" {
				return errors.New("--name is required")
			}
			return runSend(cmd, global, "template", func(ctx context.Context, c *whatsapp.Client, to string) (*whatsapp.SendResponse, error) {
				return c.SendTemplate(ctx, to, opts.template, opts.language, bodyParameters(opts.params))
			})
		},
	}
	template.Flags().StringVar(&opts.template, "name", "", "template name")
	template.Flags().StringVar(&opts.language, "language", "pt_BR", "template language code")
	template.Flags().StringSliceVar(&opts.params, "param", nil, "body text parameter, repeatable and positional")

	product := &cobra.Command{
		Use:   "product",
		Short: "Send a single catalog product",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.catalogID == "" || opts.productRetailerID == "" {
				return errors.New("--catalog and --sku are required")
			}
			return runSend(cmd, global, "product", func(ctx context.Context, c *whatsapp.Client, to string) (*whatsapp.SendResponse, error) {
				return c.SendProduct(ctx, to, opts.catalogID, opts.productRetailerID)
			})
		},
	}
	product.Flags().StringVar(&opts.catalogID, "catalog", "", "catalog id")
	product.Flags().StringVar(&opts.productRetailerID, "sku", "", "product retailer id")

	cmd.AddCommand(text, image, location, template, product)
	return cmd
}

type sendFunc func(ctx context.Context, c *whatsapp.Client, to string) (*whatsapp.SendResponse, error)

func runSend(cmd *cobra.Command, global *globalOptions, label string, send sendFunc) error {
	to, err := cmd.Flags().GetString("to")
	if err != nil {
		return err
	}
	client, _, err := loadClient(global)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	resp, err := send(ctx, client, phone.Normalize(to))
	printSendResult(cmd.OutOrStdout(), label, resp, err)
	return err
}

// bodyParameters turns positional values into a single body component.
func bodyParameters(values []string) []whatsapp.TemplateComponent {
	if len(values) == 0 {
		return nil
	}
	params := make([]whatsapp.TemplateParameter, 0, len(values))
	for _, v := range values {
		params = append(params, whatsapp.TemplateParameter{Type: "text", Text: v})
	}
	return []whatsapp.TemplateComponent{{Type: "body", Parameters: params}}
}
