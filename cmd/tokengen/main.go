package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/satriahrh/voicerelay/internal/auth"
	"github.com/satriahrh/voicerelay/internal/config"
)

func main() {
	role := flag.String("role", auth.RoleOperator, "token role: operator or output")
	subject := flag.String("id", "", "operator ID or output ID")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create issuer: %v\n", err)
		os.Exit(1)
	}

	var token string
	switch *role {
	case auth.RoleOperator:
		id := *subject
		if id == "" {
			id = "operator"
		}
		token, _, err = issuer.GenerateOperatorToken(id)
	case auth.RoleOutput:
		token, _, err = issuer.GenerateOutputToken(*subject)
	default:
		err = fmt.Errorf("unknown role %q", *role)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
