package main

import (
	"log"

	"github.com/MrSnakeDoc/appendix/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ appendix failed to start: %v", err)
	}
}
