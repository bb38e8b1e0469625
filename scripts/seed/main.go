package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/accounts/internal/app"
	"github.com/odyssey-erp/accounts/internal/users"
)

var demoUsers = []users.CreateInput{
	{FullName: "Odyssey Admin", Username: "admin", Email: "admin@odyssey.local", Password: "admin12345"},
	{FullName: "Mira Manager", Username: "manager", Email: "manager@odyssey.local", Password: "manager12345"},
	{FullName: "Arif Accountant", Username: "accountant", Email: "accountant@odyssey.local", Password: "accountant123"},
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Create demo users through the user store",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs := demoUsers
			if file != "" {
				var err error
				inputs, err = readUsers(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
			}
			return run(cmd.Context(), inputs)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON array of users to create instead of the demo set")
	return cmd
}

func run(ctx context.Context, inputs []users.CreateInput) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg, logger, app.StoreDeps{})
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer store.Close()

	fmt.Println("→ Seeding users...")
	created, skipped, err := seedUsers(ctx, store, inputs)
	if err != nil {
		return fmt.Errorf("seed users: %w", err)
	}
	fmt.Printf("✓ Seed complete at %s (%d created, %d already present)\n", time.Now().Format(time.RFC3339), created, skipped)
	return nil
}

type creator interface {
	Create(ctx context.Context, in users.CreateInput) (users.User, error)
}

// seedUsers creates each user, counting duplicates as already present so the
// seeder can be re-run.
func seedUsers(ctx context.Context, store creator, inputs []users.CreateInput) (created, skipped int, err error) {
	for _, in := range inputs {
		_, err := store.Create(ctx, in)
		switch {
		case err == nil:
			created++
		case errors.Is(err, users.ErrDuplicate):
			skipped++
		default:
			return created, skipped, fmt.Errorf("create %q: %w", in.Username, err)
		}
	}
	return created, skipped, nil
}

func readUsers(path string) ([]users.CreateInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inputs []users.CreateInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, err
	}
	return inputs, nil
}
