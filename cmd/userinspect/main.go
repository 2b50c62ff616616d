// Command userinspect reads user records and maintains the account index.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/web3-storefront/internal/config"
	"github.com/web3-storefront/internal/logging"
	"github.com/web3-storefront/internal/storage"
)

func main() {
	userFlag := flag.String("user", "", "Identity ID of the record to print")
	walletFlag := flag.String("wallet", "", "Find the user holding this injected wallet")
	checkFlag := flag.Bool("check", false, "Check the record store connection")
	reindexFlag := flag.Bool("reindex", false, "Rebuild the account index from every user record")
	listFlag := flag.Bool("list", false, "List every user record key")
	flag.Parse()

	cfg, err := config.LoadToolConfig()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	kv, err := storage.NewRedisCache(&cfg.KV)
	if err != nil {
		fmt.Printf("Error connecting to record store: %v\n", err)
		os.Exit(1)
	}
	defer kv.Close()

	users := storage.NewUserStore(kv, storage.UserStoreOptions{
		KeyPrefix:    cfg.KV.KeyPrefix,
		ScanFallback: cfg.KV.ScanFallback,
		Logger:       logging.GetGlobalLogger(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if *checkFlag {
		if err := users.CheckConnection(ctx); err != nil {
			fmt.Printf("Record store unreachable: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Record store OK")
	}

	if *reindexFlag {
		n, err := users.Reindex(ctx)
		if err != nil {
			fmt.Printf("Reindex failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Indexed %d user records\n", n)
	}

	if *listFlag {
		keys, err := users.Keys(ctx)
		if err != nil {
			fmt.Printf("Error listing keys: %v\n", err)
			os.Exit(1)
		}
		for _, k := range keys {
			fmt.Println(k)
		}
	}

	if *walletFlag != "" {
		user, err := users.FindByInjectedWallet(ctx, *walletFlag)
		if err != nil {
			fmt.Printf("Lookup failed: %v\n", err)
			os.Exit(1)
		}
		printUser(user)
	}

	if *userFlag != "" {
		user, err := users.ReadUser(ctx, *userFlag)
		if err != nil {
			fmt.Printf("Error reading user: %v\n", err)
			os.Exit(1)
		}
		printUser(user)
	}
}

func printUser(user interface{}) {
	out, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		fmt.Printf("Error encoding user: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
