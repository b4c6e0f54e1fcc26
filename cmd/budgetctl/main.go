// budgetctl is the maintenance tool for the budget database: schema
// migration, global label seeding, balance repair, plan sweeps, statement
// export and demo data.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/sbotor/budget-manager/config"
	"github.com/sbotor/budget-manager/models"
	"github.com/sbotor/budget-manager/services"
	"github.com/sbotor/budget-manager/store"
	"github.com/sbotor/budget-manager/utils"
)

const usage = `usage: budgetctl <command> [flags]

commands:
  migrate        create or update the database schema
  seed           seed the global labels
  recalculate    rebuild account balances from operations
  sweep          create all due planned operations
  export         write an account statement to an .xlsx file
  demo           create a demo home with sample data
  clear          delete all homes and everything in them
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer db.Close()

	ctx := context.Background()
	st := store.NewPostgres(db)

	switch os.Args[1] {
	case "migrate":
		err = runMigrate(db)
	case "seed":
		err = services.NewLabelService(st).EnsureGlobals(ctx)
	case "recalculate":
		err = runRecalculate(ctx, st, os.Args[2:])
	case "sweep":
		err = runSweep(ctx, st)
	case "export":
		err = runExport(ctx, st, os.Args[2:])
	case "demo":
		err = runDemo(ctx, st)
	case "clear":
		err = runClear(ctx, st, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func runMigrate(db *sql.DB) error {
	if err := config.RunMigrations(db); err != nil {
		return err
	}
	log.Println("Migrations applied")
	return nil
}

// runRecalculate repairs the running balances of one account, or of every
// account when none is given.
func runRecalculate(ctx context.Context, st store.Store, args []string) error {
	fs := flag.NewFlagSet("recalculate", flag.ExitOnError)
	accountID := fs.String("account", "", "account id (all accounts when empty)")
	homeID := fs.String("home", "", "limit to one home")
	fs.Parse(args)

	accounts := services.NewAccountService(st)

	if *accountID != "" {
		fixed, err := accounts.Recalculate(ctx, *accountID)
		if err != nil {
			return err
		}
		log.Printf("Account %s: current=%s final=%s",
			utils.MaskID(fixed.ID),
			utils.MaskAmount(fixed.CurrentAmount),
			utils.MaskAmount(fixed.FinalAmount))
		return nil
	}

	ids, err := accountIDs(ctx, st, *homeID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := accounts.Recalculate(ctx, id); err != nil {
			return fmt.Errorf("account %s: %w", id, err)
		}
	}
	log.Printf("Recalculated %d account(s)", len(ids))
	return nil
}

func accountIDs(ctx context.Context, st store.Store, homeID string) ([]string, error) {
	homeIDs := []string{homeID}
	if homeID == "" {
		var err error
		homeIDs, err = allHomeIDs(ctx, st)
		if err != nil {
			return nil, err
		}
	}

	var ids []string
	for _, hid := range homeIDs {
		accounts, err := st.ListAccounts(ctx, hid)
		if err != nil {
			return nil, err
		}
		for _, account := range accounts {
			ids = append(ids, account.ID)
		}
	}
	return ids, nil
}

func runSweep(ctx context.Context, st store.Store) error {
	created, err := services.NewPlanService(st).Sweep(ctx)
	log.Printf("Created %d operation(s)", created)
	return err
}

func runExport(ctx context.Context, st store.Store, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	accountID := fs.String("account", "", "account id (required)")
	out := fs.String("out", "statement.xlsx", "output file")
	fs.Parse(args)

	if *accountID == "" {
		return fmt.Errorf("export: -account is required")
	}

	if err := services.NewExportService(st).Statement(ctx, *accountID, *out); err != nil {
		return err
	}
	log.Printf("Statement written to %s", *out)
	return nil
}

// runDemo loads a small household with a couple of operations and a plan,
// for trying the tool against an empty database.
func runDemo(ctx context.Context, st store.Store) error {
	homes := services.NewHomeService(st)
	ops := services.NewOperationService(st)
	plans := services.NewPlanService(st)

	home, admin, err := homes.Create(ctx, "Demo Home", "USD", "alice")
	if err != nil {
		return err
	}
	bob, err := homes.AddAccount(ctx, home.ID, "bob")
	if err != nil {
		return err
	}

	if _, err := ops.Create(ctx, admin.ID, services.CreateOperationInput{
		Amount:      decimal.RequireFromString("2500.00"),
		Description: "Salary",
		Finalized:   true,
	}); err != nil {
		return err
	}
	if _, err := ops.Create(ctx, admin.ID, services.CreateOperationInput{
		Amount:      decimal.RequireFromString("-42.50"),
		Description: "Groceries",
	}); err != nil {
		return err
	}
	if _, _, err := ops.MakeTransaction(ctx, admin.ID, bob.ID,
		decimal.RequireFromString("100.00"), "Allowance"); err != nil {
		return err
	}

	if _, _, err := plans.Create(ctx, admin.ID, services.CreatePlanInput{
		Amount:      decimal.RequireFromString("-15.99"),
		Description: "Streaming subscription",
		Period:      models.PeriodMonth,
		PeriodCount: 1,
		NextDate:    time.Now().AddDate(0, 0, 1),
	}); err != nil {
		return err
	}

	log.Printf("Demo home %s created with accounts %s and %s",
		utils.MaskID(home.ID), utils.MaskName("alice"), utils.MaskName("bob"))
	return nil
}

func runClear(ctx context.Context, st store.Store, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	force := fs.Bool("force", false, "skip confirmation")
	fs.Parse(args)

	if !*force {
		fmt.Print("This deletes ALL homes, accounts and operations. Type 'yes' to continue: ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "yes" {
			log.Println("Aborted")
			return nil
		}
	}

	ids, err := allHomeIDs(ctx, st)
	if err != nil {
		return err
	}
	homes := services.NewHomeService(st)
	for _, id := range ids {
		if err := homes.Delete(ctx, id); err != nil {
			return fmt.Errorf("home %s: %w", id, err)
		}
	}
	log.Printf("Deleted %d home(s)", len(ids))
	return nil
}

func allHomeIDs(ctx context.Context, st store.Store) ([]string, error) {
	return st.ListHomeIDs(ctx)
}
