package app

import "net/http"

// Config holds runtime wiring options for building the app.
type Config struct {
	Home      string       // config directory, e.g. $HOME/.chorus
	ServerURL string       // instance base URL, e.g. http://127.0.0.1:8080
	Actor     string       // federated actor handle
	Username  string       // local account name on the instance
	Debug     bool         // verbose logging
	HTTP      *http.Client // optional; defaults to http.DefaultClient
}
