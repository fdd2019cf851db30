package main

import (
	"context"
	"log"
	"os"

	"github.com/noteboard/noteboard/pkg/noteboard"
)

func main() {
	if err := noteboard.Main(context.Background(), os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
