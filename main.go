package main

import (
	"github.com/joho/godotenv"

	"gadify-server/cmd"
)

func main() {
	// Load .env if present, real environment wins
	godotenv.Load()

	cmd.Execute()
}
