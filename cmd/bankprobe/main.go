// Bankprobe builds LLC eviction sets empirically and runs a cache-bank
// contention experiment with them.
package main

import (
	"log"

	"github.com/joho/godotenv"
)

func main() {
	// Optional .env file with BANKPROBE_* overrides; absence is fine.
	if err := godotenv.Load(); err == nil {
		log.Println("loaded configuration overrides from .env")
	}

	applyEnvOverrides()
	Execute()
}
