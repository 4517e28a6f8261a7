// Package api exposes the server's HTTP surface: authentication, the upload
// pipeline, verified download, and the file index, with CORS and optional
// replay protection in front.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cryptguard/cryptguard/internal/logging"
	"github.com/cryptguard/cryptguard/internal/server/config"
	"github.com/cryptguard/cryptguard/internal/server/repositories/replaynonces"
	"github.com/cryptguard/cryptguard/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg      *config.Config
	logger   logging.Logger
	audit    *logging.Audit
	tokens   *services.TokenService
	uploads  *services.UploadService
	verifier *services.VerifyService
	files    *services.FileService
	nonces   replaynonces.Repository
}

func NewServer(cfg *config.Config, logger logging.Logger, audit *logging.Audit,
	tokens *services.TokenService, uploads *services.UploadService,
	verifier *services.VerifyService, files *services.FileService,
	nonces replaynonces.Repository) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		audit:    audit,
		tokens:   tokens,
		uploads:  uploads,
		verifier: verifier,
		files:    files,
		nonces:   nonces,
	}
}

// Handler assembles the route table and the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/authentication", s.handleAuthenticate)
	mux.HandleFunc("POST /api/refreshToken", s.handleRefreshToken)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	mux.HandleFunc("POST /api/preUpload", s.requireAuth(s.handlePreUpload))
	mux.HandleFunc("POST /api/confirmUpload", s.requireAuth(s.handleConfirmUpload))
	mux.HandleFunc("POST /api/decryptAndDownload", s.requireAuth(s.handleDownload))
	mux.HandleFunc("POST /api/verifyFile", s.requireAuth(s.handleVerifyFile))
	mux.HandleFunc("DELETE /api/files/{fileID}", s.requireAuth(s.handleDeleteFile))
	mux.HandleFunc("GET /api/files/{address}", s.requireAuth(s.handleListFiles))
	mux.HandleFunc("GET /api/files/{address}/stats", s.requireAuth(s.handleStats))

	return s.logRequests(s.cors(s.replayGuard(mux)))
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.EndpointAddrHTTP,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info(shutdownCtx, "shutting down http server")
	return srv.Shutdown(shutdownCtx)
}
