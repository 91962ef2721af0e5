package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/unitpay/unitpay-gateway/pkg/auth"
	"github.com/unitpay/unitpay-gateway/pkg/config"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "oracle-token"})

	_ = godotenv.Load()

	node := flag.String("node", "", "oracle node id embedded in the token")
	scopes := flag.String("scopes", auth.ScopeOracleVerify, "comma separated scopes")
	flag.Parse()

	if strings.TrimSpace(*node) == "" {
		fmt.Fprintln(os.Stderr, "missing -node")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	token, err := auth.MintOracleToken(cfg.Oracle, time.Now(), auth.OracleTokenPayload{
		NodeID: strings.TrimSpace(*node),
		Scopes: splitScopes(*scopes),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to mint token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func splitScopes(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
