package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"cryptoswap/cmd"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; the environment and the config file also work
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
