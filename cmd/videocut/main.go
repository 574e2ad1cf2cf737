package main

import (
	"os"

	"github.com/bnema/videocut/internal/infrastructure/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error.Printf("%v", err)
		os.Exit(1)
	}
}
