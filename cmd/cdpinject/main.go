package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"cdpinject/internal/cli"
)

func main() {
	_ = godotenv.Load() // best-effort: .env is optional

	os.Exit(cli.Main(context.Background(), os.Args[1:], os.Stdin, os.Stdout, cli.DefaultLauncher))
}
