package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/channels/whatsapp"
	"github.com/wolfman30/clinic-whatsapp-agent/internal/phone"
)

type demoStep struct {
	label string
	send  sendFunc
}

type demoOptions struct {
	to        string
	catalogID string
	template  string
	imageURL  string
	keepGoing bool
}

func newDemoCmd(global *globalOptions) *cobra.Command {
	opts := &demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Send one sample of every supported message kind",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := loadClient(global)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			return runDemo(ctx, cmd, client, phone.Normalize(opts.to), demoSteps(opts), opts.keepGoing)
		},
	}
	cmd.Flags().StringVar(&opts.to, "to", "", "recipient phone; normalized before sending")
	cmd.Flags().StringVar(&opts.catalogID, "catalog", "123456789", "catalog id for the product samples")
	cmd.Flags().StringVar(&opts.template, "template", "promocao_especial", "approved template for the template sample")
	cmd.Flags().StringVar(&opts.imageURL, "image-url", "https://example.com/imagem.jpg", "image for the image sample")
	cmd.Flags().BoolVar(&opts.keepGoing, "keep-going", true, "continue after a failed step")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runDemo(ctx context.Context, cmd *cobra.Command, client *whatsapp.Client, to string, steps []demoStep, keepGoing bool) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, step := range steps {
		resp, err := step.send(ctx, client, to)
		printSendResult(out, step.label, resp, err)
		if err != nil {
			failed++
			if !keepGoing {
				return err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d demo messages failed", failed, len(steps))
	}
	return nil
}

func demoSteps(opts *demoOptions) []demoStep {
	return []demoStep{
		{"text", func(ctx context.Context, c *whatsapp.Client, to string) (*whatsapp.SendResponse, error) {
			return c.SendText(ctx, to, "Olá! Esta é uma mensagem de teste da API do WhatsApp.")
		}},
		{"buttons", func(ctx context.Context, c *whatsapp.Client, to string) (*whatsapp.SendResponse, error) {
			return c.SendButtons(ctx, to, "Por favor, escolha uma opção:", []whatsapp.ReplyButton{
				{ID: "btn_sim", Title: "Sim"},
				{ID: "btn_nao", Title: "Não"},
				{ID: "btn_talvez", Title: "Talvez"},
			})
		}},
		{"list", func(ctx context.Context, c *whatsapp.Client, to string) (*whatsapp.SendResponse, error) {
			return c.SendList(ctx, to, "Escolha uma categoria:", "Ver opções", []whatsapp.ListSection{
				{Title: "Categorias", Rows: []whatsapp.ListRow{
					{ID: "cat_eletronicos", Title: "Eletrônicos", Description: "Smartphones, TVs, etc."},
					{ID: "cat_moda", Title: "Moda", Description: "Roupas, calçados, etc."},
				}},
				{Title: "Promoções", Rows: []whatsapp.ListRow{
					{ID: "promo_dia", Title: "Promoção do Dia", Description: "Ofertas especiais"},
				}},
			})
		}},
		{"template", func(ctx context.Context, c *whatsapp.Client, to string) (*whatsapp.SendResponse, error) {
			return c.SendTemplate(ctx, to, opts.template, "pt_BR", bodyParameters([]string{"João", "50%"}))
		}},
		{"product", func(ctx context.Context, c *whatsapp.Client, to string) (*whatsapp.SendResponse, error) {
			return c.SendProduct(ctx, to, opts.catalogID, "SKU123")
		}},
		{"product_list", func(ctx context.Context, c *whatsapp.Client, to string) (*whatsapp.SendResponse, error) {
			return c.SendProductList(ctx, to, opts.catalogID, "Produtos em Destaque", []whatsapp.ProductItem{
				{ProductRetailerID: "SKU123"},
				{ProductRetailerID: "SKU456"},
				{ProductRetailerID: "SKU789"},
			})
		}},
		{"location", func(ctx context.Context, c *whatsapp.Client, to string) (*whatsapp.SendResponse, error) {
			return c.SendLocation(ctx, to, whatsapp.Location{
				Latitude:  -23.5505,
				Longitude: -46.6333,
				Name:      "Escritório Central",
				Address:   "Av. Paulista, 1000, São Paulo - SP",
			})
		}},
		{"image", func(ctx context.Context, c *whatsapp.Client, to string) (*whatsapp.SendResponse, error) {
			return c.SendImage(ctx, to, opts.imageURL, "Confira nossa nova loja!")
		}},
	}
}
