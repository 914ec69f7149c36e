package main

import (
	"flag"
	"net/http"

	"go.uber.org/zap"

	"chorus/internal/fedi/devserver"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	srv := devserver.New(log)
	log.Info("feddev listening", zap.String("addr", *addr))
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
