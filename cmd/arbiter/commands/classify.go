package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amerfu/arbiter/internal/models"
	"github.com/amerfu/arbiter/internal/services/classifier"
	"github.com/amerfu/arbiter/internal/services/routing"
)

// NewClassifyCommand runs the prompt classifier locally, showing how
// the gateway would tier a prompt before any budget adjustment.
func NewClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <prompt>",
		Short: "Classify a prompt the way the gateway would",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			c := classifier.Classify(prompt)
			tier := baselineTier(c)

			if outputJSON {
				return printJSON(map[string]interface{}{
					"complexity": c.Complexity,
					"domain":     c.Domain,
					"tier":       tier.String(),
				})
			}
			fmt.Printf("Complexity: %.1f\n", c.Complexity)
			domain := c.Domain
			if domain == "" {
				domain = "-"
			}
			fmt.Printf("Domain:     %s\n", domain)
			fmt.Printf("Tier:       %s\n", tier)
			return nil
		},
	}
}

func baselineTier(c classifier.Classification) models.Tier {
	if c.Complexity >= routing.ReasoningThreshold || strings.EqualFold(c.Domain, classifier.DomainSafetyCritical) {
		return models.TierReasoning
	}
	if c.Complexity >= routing.SmartThreshold {
		return models.TierSmart
	}
	return models.TierFast
}
