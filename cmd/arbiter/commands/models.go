package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/amerfu/arbiter/internal/models"
)

// NewModelsCommand inspects the gateway's model catalog over its API.
func NewModelsCommand(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect the model catalog",
	}
	cmd.AddCommand(newModelsListCommand(ctx))
	return cmd
}

func newModelsListCommand(ctx context.Context) *cobra.Command {
	var tier, domain string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered models",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := requireAPI()
			if err != nil {
				return err
			}

			endpoint := base + "/v1/models"
			query := url.Values{}
			if tier != "" {
				query.Set("tier", tier)
			}
			if domain != "" {
				query.Set("domain", domain)
			}
			if len(query) > 0 {
				endpoint += "?" + query.Encode()
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			if apiToken != "" {
				req.Header.Set("Authorization", "Bearer "+apiToken)
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("gateway request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("gateway returned %s: %s", resp.Status, body)
			}

			var listing struct {
				Data []models.ModelDefinition `json:"data"`
			}
			if err := json.Unmarshal(body, &listing); err != nil {
				return fmt.Errorf("decode model list: %w", err)
			}

			if outputJSON {
				return printJSON(listing.Data)
			}
			return printModelTable(cmd.OutOrStdout(), listing.Data)
		},
	}

	cmd.Flags().StringVar(&tier, "tier", "", "filter by tier (fast|smart|reasoning)")
	cmd.Flags().StringVar(&domain, "domain", "", "filter by domain")
	return cmd
}

func printModelTable(out io.Writer, defs []models.ModelDefinition) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tPROVIDER\tTIER\tDOMAIN\tIN $/1K\tOUT $/1K\tHEALTHY")
	for _, def := range defs {
		domain := def.Domain
		if domain == "" {
			domain = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.5f\t%.5f\t%t\n",
			def.ID, def.Provider, def.Tier, domain,
			def.InputCostPer1K, def.OutputCostPer1K, def.Healthy)
	}
	return w.Flush()
}
