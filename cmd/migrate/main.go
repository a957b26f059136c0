package main

import "github.com/versadb/migrate/internal/cli"

func main() {
	cli.Main(Version)
}
