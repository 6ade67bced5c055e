package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/overseerhq/overseer/internal/model"
	"github.com/overseerhq/overseer/internal/service"
)

func newOperatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Manage operator accounts",
		Long:  "Create and list the operator accounts that can log in to the control plane.",
	}

	cmd.AddCommand(newOperatorCreateCmd())
	cmd.AddCommand(newOperatorListCmd())

	return cmd
}

// ---------- operator create ----------

func newOperatorCreateCmd() *cobra.Command {
	var (
		email      string
		password   string
		name       string
		superAdmin bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new operator account",
		Example: `  overseer operator create --email ops@example.com --super-admin
  overseer operator create --email ops@example.com --password secret  # skips the prompt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperatorCreate(email, password, name, superAdmin)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Operator email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Operator password (prompted if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Operator display name")
	cmd.Flags().BoolVar(&superAdmin, "super-admin", false, "Grant the super_admin role")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runOperatorCreate(email, password, name string, superAdmin bool) error {
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %q", email)
	}

	// Prompt for password if not provided
	if password == "" {
		fmt.Print("Password: ")
		pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()
		password = string(pwBytes)

		fmt.Print("Confirm password: ")
		confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Println()

		if password != string(confirmBytes) {
			return fmt.Errorf("passwords do not match")
		}
	}

	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open operator store: %w", err)
	}
	defer store.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), service.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	role := model.RoleAdmin
	if superAdmin {
		role = model.RoleSuperAdmin
	}

	op := &model.Operator{
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		Role:         role,
		IsActive:     true,
	}
	if err := store.CreateOperator(context.Background(), op); err != nil {
		return fmt.Errorf("create operator: %w", err)
	}

	fmt.Printf("Created operator %q with role %s\n", email, role)
	return nil
}

// ---------- operator list ----------

func newOperatorListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all operator accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperatorList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runOperatorList(jsonOutput bool) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open operator store: %w", err)
	}
	defer store.Close()

	operators, err := store.ListOperators(context.Background())
	if err != nil {
		return fmt.Errorf("list operators: %w", err)
	}

	type operatorRow struct {
		Email  string `json:"email"`
		Name   string `json:"name"`
		Role   string `json:"role"`
		Active bool   `json:"active"`
	}

	rows := make([]operatorRow, 0, len(operators))
	for _, op := range operators {
		rows = append(rows, operatorRow{
			Email:  op.Email,
			Name:   op.Name,
			Role:   op.Role,
			Active: op.IsActive,
		})
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No operators configured. Use 'overseer operator create' to create one.")
		return nil
	}

	fmt.Printf("%-30s %-24s %-12s %-8s\n", "EMAIL", "NAME", "ROLE", "ACTIVE")
	fmt.Printf("%-30s %-24s %-12s %-8s\n", "-----", "----", "----", "------")
	for _, row := range rows {
		active := "yes"
		if !row.Active {
			active = "no"
		}
		fmt.Printf("%-30s %-24s %-12s %-8s\n", row.Email, row.Name, row.Role, active)
	}

	return nil
}
