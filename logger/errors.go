package logger

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrNotAllowed     = errors.New("not allowed")
	ErrDisallowed     = errors.New("folder contains disallowed entry")
	ErrLowerQuality   = errors.New("import file has lower quality")
	ErrRateLimited    = errors.New("rate limited - please wait")
	ErrNoMetadata     = errors.New("no metadata found")
	ErrConfigMissing  = errors.New("config not found")
	ErrNoVideoFiles   = errors.New("no video files found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrAlreadyRunning = errors.New("job already running")
)
