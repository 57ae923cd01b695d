//go:build !linux

package ime

import (
	"context"

	"snippetd/internal/logging"
)

// Server is unavailable outside Linux.
type Server struct{}

// NewServer returns a server whose Start always fails.
func NewServer(host *Host, engineName string, logger *logging.Logger) *Server {
	return &Server{}
}

// Start returns ErrUnsupported.
func (s *Server) Start(ctx context.Context) error {
	return ErrUnsupported
}

// Stop does nothing.
func (s *Server) Stop() error {
	return nil
}

// Engines always returns zero.
func (s *Server) Engines() int {
	return 0
}
