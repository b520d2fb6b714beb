package main

import (
	"context"
	"os"

	"github.com/rzbill/sharedlog/internal/cmd/admin"
)

func main() {
	os.Exit(admin.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
