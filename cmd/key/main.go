package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"ride-dispatch/internal/cli"
)

func main() {
	var (
		subject = flag.String("subject", "", "Token subject, e.g. an on-call handle or service name")
		role    = flag.String("role", "OPERATOR", "Role: OPERATOR | SERVICE")
		secret  = flag.String("secret", "", "JWT HMAC secret (HS256)")
		ttl     = flag.Duration("ttl", 12*time.Hour, "Token lifetime")
	)
	flag.Parse()

	if *subject == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: key --subject=<name> --role=OPERATOR --secret='<secret>' [--ttl=12h]")
		os.Exit(2)
	}

	token, claims, err := cli.GenerateToken(*secret, *subject, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Println("TOKEN:")
	fmt.Println(token)
	fmt.Println("\nCLAIMS:")
	fmt.Printf("  sub:  %s\n", claims.Subject)
	fmt.Printf("  role: %s\n", claims.Role)
	fmt.Printf("  iat:  %s\n", claims.IssuedAt.Time.UTC().Format(time.RFC3339))
	fmt.Printf("  exp:  %s\n", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
}
