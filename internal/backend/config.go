package backend

import "github.com/rs/zerolog"

const defaultMaxBodyBytes int64 = 1 << 20

// CORSOptions configures CORS behavior. If Enabled is false no CORS
// middleware is added.
type CORSOptions struct {
	Enabled        bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Options tunes the HTTP layer.
type Options struct {
	// MaxBodyBytes limits JSON request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
	CORS         CORSOptions
	// Logger receives request logs. Nil disables request logging.
	Logger *zerolog.Logger
	// LogLevel is the default request log level: off, error, info or debug.
	// Requests may override it with ?log= or X-Log-Level.
	LogLevel string
}

func (o Options) maxBody() int64 {
	if o.MaxBodyBytes <= 0 {
		return defaultMaxBodyBytes
	}
	return o.MaxBodyBytes
}
