package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/podpairer/server/internal/util"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/issue-token.go <participant-email>\n")
		os.Exit(1)
	}

	token, err := util.GenerateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("token: %s\n", token)
	fmt.Printf("UPDATE participants SET token_hash = '%s' WHERE email = '%s';\n", util.HashToken(token), strings.ReplaceAll(os.Args[1], "'", "''"))
}
