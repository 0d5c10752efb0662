package main

import (
	"log"
	"os"
	"os/signal"
	"time"

	"gitlab.com/lake42/go-websocket-stream/echowsserver"
)

func main() {
	// Create and start websocket echo server -> localhost:8080
	srv := echowsserver.NewEchoWebsocketServer(nil, nil)
	err := srv.Start()
	if err != nil {
		panic(err)
	}
	// Wait for shutdown
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	<-sigs
	log.Println("Application shutdown initiated")
	// Close server
	srv.Stop()
	time.Sleep(5 * time.Second)
}
