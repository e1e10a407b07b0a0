package api

import "errors"

var (
	ErrNotFound      = errors.New("endpoint not found on relay")
	ErrRateLimited   = errors.New("rate limited by relay")
	ErrCommandFailed = errors.New("command failed")
)
