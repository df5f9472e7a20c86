package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors: fatal, checked before any network call
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Network and provider errors
	ErrNetwork     = fmt.Errorf("network request failed")
	ErrRateLimited = fmt.Errorf("rate limited by provider")
	ErrNotFound    = fmt.Errorf("not found")
	ErrAPIRequest  = fmt.Errorf("API request failed")
	ErrTimeout     = fmt.Errorf("operation timed out")

	// Persistence errors
	ErrDatabase       = fmt.Errorf("database operation failed")
	ErrArtistNotFound = fmt.Errorf("artist not found")
	ErrAlbumNotFound  = fmt.Errorf("album not found")
	ErrTrackNotFound  = fmt.Errorf("track not found")
	ErrRowProtected   = fmt.Errorf("row has protected provenance")
	ErrUnresolved     = fmt.Errorf("entity could not be resolved")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
