// Package validation checks CLI-supplied addresses, ports, and file paths
// before they reach the transfer engine. None of its checks are load-
// bearing for the pipeline's own correctness; they exist to turn a bad
// argument into a clear error instead of a confusing one three layers down.
package validation

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

var (
	ErrInvalidPath   = errors.New("invalid file path")
	ErrPathNotExists = errors.New("path does not exist")
	ErrInvalidAddr   = errors.New("invalid listen address")
	ErrInvalidPort   = errors.New("invalid port")
	ErrEmptyString   = errors.New("value must not be empty")
	ErrOutOfRange    = errors.New("value out of range")
)

func ValidateFilePath(p string, mustExist bool) error {
	if p == "" {
		return ErrInvalidPath
	}
	if !filepath.IsAbs(p) {
		p = filepath.Clean(p)
	}
	if mustExist {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("%w: %v", ErrPathNotExists, err)
		}
	}
	return nil
}

func ValidateAddr(addr string) error {
	if addr == "" {
		return ErrInvalidAddr
	}
	_, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddr, err)
	}
	return nil
}

// ValidatePort checks that port is a valid TCP port number in [1, 65535].
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	return nil
}

// ValidateHostPort checks host and port together by assembling and
// resolving the combined address, the shape the CLI's send/receive
// subcommands take their arguments in.
func ValidateHostPort(host string, port int) error {
	if err := ValidatePort(port); err != nil {
		return err
	}
	return ValidateAddr(net.JoinHostPort(host, fmt.Sprintf("%d", port)))
}

func ValidateStringNonEmpty(s string) error {
	if s == "" {
		return ErrEmptyString
	}
	return nil
}

func ValidateRangeInt(v, min, max int) error {
	if v < min || v > max {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrOutOfRange, v, min, max)
	}
	return nil
}
