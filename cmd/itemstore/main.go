package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"itemstore/cmd/itemstore/commands"
)

func main() {
	// Ctrl-C 取消正在进行的发现或传输
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx); err != nil {
		stop()
		log.Fatal(err)
	}
}
