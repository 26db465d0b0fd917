package model

import (
	"errors"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNotInstalled = errors.New("toolchain not installed")
	ErrISOFormat    = errors.New("invalid ISO8601 duration")
)
