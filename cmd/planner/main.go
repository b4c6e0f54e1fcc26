// The planner daemon periodically sweeps recurring-operation plans and
// creates the operations that have come due.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sbotor/budget-manager/config"
	"github.com/sbotor/budget-manager/services"
	"github.com/sbotor/budget-manager/store"
	"github.com/sbotor/budget-manager/utils"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer db.Close()

	if err := config.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	plans := services.NewPlanService(store.NewPostgres(db))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		sweep(ctx, plans)
		return
	}

	utils.SafeInfo("planner started, sweeping every %s", cfg.Planner.Interval)
	services.RunPlannerLoop(ctx, plans, cfg.Planner.Interval)
	utils.SafeInfo("planner stopped")
}

func sweep(ctx context.Context, plans *services.PlanService) {
	created, err := plans.Sweep(ctx)
	if err != nil {
		utils.SafeError("sweep finished with errors: %v", err)
	}
	utils.SafeInfo("sweep created %d operation(s)", created)
}
