package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/amerfu/arbiter/internal/models"
)

// NewBudgetCommand manages budget accounts via direct database access.
func NewBudgetCommand(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Manage budget accounts",
	}
	cmd.AddCommand(newBudgetGetCommand(ctx))
	cmd.AddCommand(newBudgetSetCommand(ctx))
	cmd.AddCommand(newBudgetResetCommand(ctx))
	return cmd
}

func newBudgetGetCommand(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show a user's budget and spend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := requireDB()
			if err != nil {
				return err
			}

			var acct models.BudgetAccount
			err = conn.WithContext(ctx).Where("user_id = ?", args[0]).First(&acct).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("no budget account for user %q", args[0])
			}
			if err != nil {
				return err
			}

			if outputJSON {
				return printJSON(acct)
			}
			fmt.Printf("User:       %s\n", acct.UserID)
			if acct.MaxBudget <= 0 {
				fmt.Println("Budget:     unlimited")
			} else {
				fmt.Printf("Budget:     $%.2f\n", acct.MaxBudget)
			}
			fmt.Printf("Spent:      $%.4f\n", acct.CurrentSpend)
			fmt.Printf("Remaining:  %.1f%%\n", acct.Remaining()*100)
			return nil
		},
	}
}

func newBudgetSetCommand(ctx context.Context) *cobra.Command {
	var amount float64

	cmd := &cobra.Command{
		Use:   "set <user-id>",
		Short: "Set a user's budget limit",
		Long:  "Set a user's budget limit, creating the account when missing. Zero means unlimited.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := requireDB()
			if err != nil {
				return err
			}
			if amount < 0 {
				return fmt.Errorf("amount must not be negative")
			}

			var acct models.BudgetAccount
			err = conn.WithContext(ctx).Where("user_id = ?", args[0]).First(&acct).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				acct = models.BudgetAccount{UserID: args[0], MaxBudget: amount}
				if err := conn.WithContext(ctx).Create(&acct).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				if err := conn.WithContext(ctx).Model(&acct).Update("max_budget", amount).Error; err != nil {
					return err
				}
			}

			fmt.Printf("Budget for %s set to $%.2f\n", args[0], amount)
			return nil
		},
	}

	cmd.Flags().Float64VarP(&amount, "amount", "a", 0, "budget limit in dollars (0 = unlimited)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newBudgetResetCommand(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <user-id>",
		Short: "Reset a user's current spend to zero",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := requireDB()
			if err != nil {
				return err
			}

			result := conn.WithContext(ctx).Model(&models.BudgetAccount{}).
				Where("user_id = ?", args[0]).
				Update("current_spend", 0)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("no budget account for user %q", args[0])
			}

			fmt.Printf("Spend for %s reset\n", args[0])
			return nil
		},
	}
}
