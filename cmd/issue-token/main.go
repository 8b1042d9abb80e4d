// Command issue-token mints a bearer token signed with the gateway's JWT
// secret. Production identities come from the external provider; this is for
// local development and smoke tests.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"crypto-invoice-gateway/config"
	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/service"
)

func main() {
	subject := flag.String("sub", "", "caller identity (merchant id)")
	role := flag.String("role", string(domain.RoleMerchant), "merchant or customer")
	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "issue-token: -sub is required")
		os.Exit(2)
	}
	r := domain.Role(*role)
	if r != domain.RoleMerchant && r != domain.RoleCustomer {
		fmt.Fprintf(os.Stderr, "issue-token: unknown role %q\n", *role)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue-token: %v\n", err)
		os.Exit(1)
	}

	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	token, expires, err := tokenSvc.Generate(*subject, r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue-token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
}
