package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/app"
	"github.com/dvloznov/receipt-tracker/internal/catalog"
	"github.com/dvloznov/receipt-tracker/internal/config"
	"github.com/dvloznov/receipt-tracker/internal/imagestore"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/tracker"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	log := logger.NewWithLevel(cfg.LogLevel)

	switch os.Args[1] {
	case "scan":
		runScan(cfg, log)
	case "list":
		runList(cfg, log)
	case "delete":
		runDelete(cfg, log)
	case "categories":
		runCategories(cfg, log)
	case "add-category":
		runCatalogChange(cfg, log, "add-category", "NAME", (*tracker.Service).AddCategory)
	case "remove-category":
		runCatalogChange(cfg, log, "remove-category", "NAME", (*tracker.Service).RemoveCategory)
	case "currencies":
		runCurrencies(cfg, log)
	case "add-currency":
		runCatalogChange(cfg, log, "add-currency", "CODE", (*tracker.Service).AddCurrency)
	case "remove-currency":
		runCatalogChange(cfg, log, "remove-currency", "CODE", (*tracker.Service).RemoveCurrency)
	case "set-display":
		runSetDisplay(cfg, log)
	case "upload":
		runUpload(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Receipt Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  scan             Extract expenses from receipt images (local paths or gs://)")
	fmt.Println("  list             List expenses with totals")
	fmt.Println("  delete           Delete an expense by ID")
	fmt.Println("  categories       Show the category set")
	fmt.Println("  add-category     Add a custom category")
	fmt.Println("  remove-category  Remove a custom category")
	fmt.Println("  currencies       Show the currency set and display currency")
	fmt.Println("  add-currency     Add a custom currency")
	fmt.Println("  remove-currency  Remove a custom currency")
	fmt.Println("  set-display      Select the display currency")
	fmt.Println("  upload           Upload receipt images to GCS")
	fmt.Println("  help             Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// openApp builds the service, warning when changes would not outlive the process.
func openApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) *app.App {
	if cfg.LedgerBackend == config.BackendMemory {
		log.Warn().Msg("LEDGER_BACKEND=memory: changes are lost when the command exits")
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start receipt tracker")
	}
	return a
}

func runScan(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	timeout := fs.Duration("timeout", 10*time.Minute, "Overall time limit for the batch")
	fs.Parse(os.Args[2:])

	if fs.NArg() == 0 {
		log.Fatal().Msg("Usage: cli scan [-timeout 10m] IMAGE...")
	}

	// Ctrl-C stops starting new images; finished ones are still saved.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a := openApp(ctx, cfg, log)
	defer a.Close()

	log.Info().Int("images", fs.NArg()).Msg("Scanning receipts")

	result, err := a.Service.ScanReceipts(ctx, fs.Args())
	printScanResult(os.Stdout, result)
	if err != nil {
		log.Fatal().Err(err).Msg("Scan failed")
	}
}

func runList(cfg *config.Config, log zerolog.Logger) {
	criteria, err := parseListArgs(os.Args[2:])
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid filter")
	}

	ctx := logger.WithContext(context.Background(), log)
	a := openApp(ctx, cfg, log)
	defer a.Close()

	result, err := a.Service.Query(ctx, criteria)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list expenses")
	}
	printExpenses(os.Stdout, result, glyphMap(a.Service.Categories()), a.Service.DisplayCurrency())
}

func runDelete(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.String("id", "", "Expense ID")
	fs.Parse(os.Args[2:])

	if *id == "" {
		log.Fatal().Msg("Usage: cli delete -id EXPENSE_ID")
	}

	ctx := logger.WithContext(context.Background(), log)
	a := openApp(ctx, cfg, log)
	defer a.Close()

	if err := a.Service.DeleteExpense(ctx, *id); err != nil {
		log.Fatal().Err(err).Msg("Delete failed")
	}
	fmt.Printf("Deleted %s\n", *id)
}

func runCategories(cfg *config.Config, log zerolog.Logger) {
	ctx := logger.WithContext(context.Background(), log)
	a := openApp(ctx, cfg, log)
	defer a.Close()

	printCategories(os.Stdout, a.Service.Categories())
}

func runCurrencies(cfg *config.Config, log zerolog.Logger) {
	ctx := logger.WithContext(context.Background(), log)
	a := openApp(ctx, cfg, log)
	defer a.Close()

	printCurrencies(os.Stdout, a.Service.Catalog())
}

// catalogChange is one of the tracker's add/remove methods.
type catalogChange func(s *tracker.Service, ctx context.Context, value string) (catalog.Outcome, error)

func runCatalogChange(cfg *config.Config, log zerolog.Logger, name, argName string, change catalogChange) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		log.Fatal().Msgf("Usage: cli %s %s", name, argName)
	}
	value := fs.Arg(0)

	ctx := logger.WithContext(context.Background(), log)
	a := openApp(ctx, cfg, log)
	defer a.Close()

	outcome, err := change(a.Service, ctx, value)
	if err != nil {
		log.Fatal().Err(err).Msgf("%s failed", name)
	}
	fmt.Println(describeOutcome(value, outcome))
}

func runSetDisplay(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("set-display", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		log.Fatal().Msg("Usage: cli set-display CODE")
	}

	ctx := logger.WithContext(context.Background(), log)
	a := openApp(ctx, cfg, log)
	defer a.Close()

	ok, err := a.Service.SetDisplayCurrency(ctx, fs.Arg(0))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set display currency")
	}
	if !ok {
		log.Fatal().Str("code", fs.Arg(0)).Msg("Currency is not in the currency set; add it first")
	}
	fmt.Printf("Display currency is now %s\n", a.Service.DisplayCurrency())
}

func runUpload(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", cfg.GCSBucket, "GCS bucket name (defaults to GCS_BUCKET)")
	scan := fs.Bool("scan", false, "Scan the uploaded receipts and save the expenses")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || fs.NArg() == 0 {
		log.Fatal().Msg("Usage: cli upload [-bucket NAME] [-scan] FILE...")
	}

	ctx := logger.WithContext(context.Background(), log)

	store, err := imagestore.NewGCSStore(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer store.Close()

	now := time.Now()
	uris := make([]string, 0, fs.NArg())
	for _, file := range fs.Args() {
		objectName := imagestore.ObjectName(file, now)

		log.Info().
			Str("bucket", *bucketName).
			Str("object", objectName).
			Str("file", file).
			Msg("Uploading receipt to GCS")

		uri, err := store.Upload(ctx, *bucketName, objectName, file)
		if err != nil {
			log.Fatal().Err(err).Msg("Upload failed")
		}
		fmt.Printf("Uploaded %s to %s\n", file, uri)
		uris = append(uris, uri)
	}

	if !*scan {
		return
	}

	// Scanning gs:// images needs the GCS reader even when GCS_BUCKET is unset.
	cfg.GCSBucket = *bucketName
	a := openApp(ctx, cfg, log)
	defer a.Close()

	result, err := a.Service.ScanReceipts(ctx, uris)
	printScanResult(os.Stdout, result)
	if err != nil {
		log.Fatal().Err(err).Msg("Scan failed")
	}
}
