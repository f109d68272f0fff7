package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/toolrental/rentkeeper/internal/auth"
	"github.com/toolrental/rentkeeper/internal/config"
	"github.com/toolrental/rentkeeper/internal/database"
	"github.com/toolrental/rentkeeper/internal/services"
	"github.com/toolrental/rentkeeper/internal/store"
)

const usage = `rentctl manages the account rental pool.

Usage:
  rentctl <command> [flags]

Commands:
  add-website      register a website accounts can belong to
  add-account      register an account under a website
  gen-key          create a rental API key (plaintext shown once)
  revoke-key       permanently disable an API key
  list-keys        list API keys
  exceptions       list accounts parked as exceptions
  clear-exception  restore an exception account with a known password
  stats            print the dashboard summary
  account-stats    print reset statistics for one account
  history          print an account's password reset history
  expire-sweep     return expired rentals to the pool
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch cmd {
	case "add-website":
		err = addWebsite(ctx, args)
	case "add-account":
		err = addAccount(ctx, args)
	case "gen-key":
		err = genKey(ctx, args)
	case "revoke-key":
		err = revokeKey(ctx, args)
	case "list-keys":
		err = listKeys(ctx, args)
	case "exceptions":
		err = listExceptions(ctx, args)
	case "clear-exception":
		err = clearException(ctx, args)
	case "stats":
		err = dashboardStats(ctx, args)
	case "account-stats":
		err = accountStats(ctx, args)
	case "history":
		err = history(ctx, args)
	case "expire-sweep":
		err = expireSweep(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env opens the embedded database the same way the daemons do. The CLI
// talks to the primary only; the mirror catches up on the next daemon write.
type env struct {
	store store.Store
	keys  store.APIKeyStore
	close func()
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.NewSQLite(cfg.Database.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.RunMigrations(db.Writer); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &env{
		store: store.NewSQLiteStore(db, logger),
		keys:  store.NewSQLiteAPIKeys(db, logger),
		close: func() { _ = db.Close() },
	}, nil
}

func addWebsite(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("add-website", pflag.ExitOnError)
	name := fs.String("name", "", "website name (unique)")
	url := fs.String("url", "", "base URL of the website")
	validity := fs.Int("validity-hours", 2, "rental validity in hours")
	description := fs.String("description", "", "free-text description")
	_ = fs.Parse(args)

	if *name == "" || *url == "" {
		return fmt.Errorf("--name and --url are required")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	id, err := e.store.AddWebsite(ctx, *name, *url, *validity, *description)
	if err != nil {
		return err
	}
	fmt.Printf("website %s registered (id %s)\n", *name, id)
	return nil
}

func addAccount(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("add-account", pflag.ExitOnError)
	website := fs.String("website", "", "website name the account belongs to")
	username := fs.String("username", "", "account username")
	password := fs.String("password", "", "current account password")
	email := fs.String("email", "", "account email")
	_ = fs.Parse(args)

	if *website == "" || *username == "" || *password == "" {
		return fmt.Errorf("--website, --username and --password are required")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	id, err := e.store.RegisterAccount(ctx, *website, *username, *password, *email)
	if err != nil {
		return err
	}
	fmt.Printf("account %s registered under %s (id %s)\n", *username, *website, id)
	return nil
}

func genKey(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("gen-key", pflag.ExitOnError)
	name := fs.String("name", "", "key holder name")
	email := fs.String("email", "", "key holder email")
	quota := fs.Int("daily-quota", 1000, "requests per day, 0 for unlimited")
	notes := fs.String("notes", "", "free-text notes")
	_ = fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	svc := services.NewAPIKeyService(e.keys, auth.NewAPIKeyManager(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	generated, err := svc.GenerateKey(ctx, *name, *email, *quota, *notes)
	if err != nil {
		return err
	}

	fmt.Printf("key id:     %s\n", generated.APIKey.ID)
	fmt.Printf("plaintext:  %s\n", generated.PlainKey)
	fmt.Println("store the plaintext now; it cannot be recovered later")
	return nil
}

func revokeKey(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("revoke-key", pflag.ExitOnError)
	id := fs.String("id", "", "key id to revoke")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.keys.RevokeKey(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("key %s revoked\n", *id)
	return nil
}

func listKeys(ctx context.Context, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	keys, err := e.keys.ListKeys(ctx)
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		fmt.Println("no api keys")
		return nil
	}
	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsed != nil {
			lastUsed = k.LastUsed.Format(time.RFC3339)
		}
		fmt.Printf("%s  %-20s %-8s quota=%d requests=%d last_used=%s\n",
			k.ID, k.Name, k.Status, k.RateLimit, k.TotalRequests, lastUsed)
	}
	return nil
}

func listExceptions(ctx context.Context, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	exceptions, err := e.store.ListExceptions(ctx)
	if err != nil {
		return err
	}

	if len(exceptions) == 0 {
		fmt.Println("no exception accounts")
		return nil
	}
	for _, exc := range exceptions {
		fmt.Printf("%s  %s @ %s  failed_attempts=%d  reason=%s\n",
			exc.ID, exc.Username, exc.Website, exc.FailedAttempts, exc.ExceptionReason)
	}
	return nil
}

func clearException(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("clear-exception", pflag.ExitOnError)
	id := fs.String("id", "", "account id to restore")
	password := fs.String("password", "", "the account's actual working password")
	_ = fs.Parse(args)

	if *id == "" || *password == "" {
		return fmt.Errorf("--id and --password are required")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.store.ClearException(ctx, *id, *password); err != nil {
		return err
	}
	fmt.Printf("account %s restored to the pool\n", *id)
	return nil
}

func dashboardStats(ctx context.Context, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	stats, err := e.store.DashboardStats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("accounts:    %d total, %d available, %d rented, %d exception\n",
		stats.TotalAccounts, stats.AvailableAccounts, stats.RentedAccounts, stats.ExceptionAccounts)
	fmt.Printf("websites:    %d\n", stats.TotalWebsites)
	fmt.Printf("rentals:     %d active\n", stats.ActiveRentals)
	fmt.Printf("resets:      %d today\n", stats.ResetsToday)
	return nil
}

func accountStats(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("account-stats", pflag.ExitOnError)
	id := fs.String("id", "", "account id")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	stats, err := e.store.AccountStats(ctx, *id)
	if err != nil {
		return err
	}

	lastReset := "never"
	if stats.LastReset != nil {
		lastReset = stats.LastReset.Format(time.RFC3339)
	}
	fmt.Printf("%s @ %s  status=%s\n", stats.Username, stats.Website, stats.Status)
	fmt.Printf("resets: %d total, %d successful, %d failed, last %s\n",
		stats.TotalResets, stats.SuccessfulResets, stats.FailedResets, lastReset)
	return nil
}

func history(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("history", pflag.ExitOnError)
	id := fs.String("id", "", "account id")
	limit := fs.Int("limit", 20, "maximum entries to show")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	entries, err := e.store.PasswordHistory(ctx, *id, *limit)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("no reset history")
		return nil
	}
	for _, entry := range entries {
		fmt.Printf("%s  %-8s %s\n", entry.ResetDate.Format(time.RFC3339), entry.Status, entry.Message)
	}
	return nil
}

func expireSweep(ctx context.Context, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	flipped, err := e.store.ReconcileExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d expired rentals returned to the pool\n", flipped)
	return nil
}
