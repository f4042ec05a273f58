package server

// Config is the HTTP server configuration.
type Config struct {
	// Address to listen on (e.g., ":8000")
	ListenAddr string

	// ModelID is reported in every response. The model named by the client
	// is accepted and ignored: there is only one engine.
	ModelID string
}
