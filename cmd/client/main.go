package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	// .env keeps the server address out of shell history on shared machines.
	_ = godotenv.Load()

	defaultAddr := os.Getenv("MEMBERCHECK_SERVER")
	if defaultAddr == "" {
		defaultAddr = "http://localhost:8080"
	}

	addr := flag.String("addr", defaultAddr, "base URL of the membercheck server")
	password := flag.String("password", "", "admin password for automatic login")
	flag.Parse()

	c := newCLI(*addr, &http.Client{Timeout: 30 * time.Second})

	if err := c.run(*password); err != nil {
		fmt.Fprintln(os.Stderr, colorErr("Client error: ", err))
		os.Exit(1)
	}
}
