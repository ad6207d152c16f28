// Package api hosts the connector-facing HTTP surface of the ledger.
//
// The API is transport-only: every rule lives in the ledger service, and
// handlers do nothing but decode, delegate, and encode. Failures render as
// a JSON error envelope with the domain code and its mapped status.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/artunion/celerychain/internal/ledger/chain"
	"github.com/artunion/celerychain/internal/ledger/service"
	apperrors "github.com/artunion/celerychain/internal/platform/errors"
	"github.com/artunion/celerychain/internal/platform/timeouts"
)

const maxRequestBodyBytes = 16 * 1024

// Ledger is the operation surface the API exposes. The concrete
// implementation is service.Service.
type Ledger interface {
	SubmitCandidates(ctx context.Context, text, authorID string, contextSize int) (service.MintOutcome, error)
	MintDummy(ctx context.Context, authorID string) (chain.Entry, error)
	GetCelery(id int) (chain.Entry, error)
	ListOwned(identity string) []int
	Give(ctx context.Context, fromID, toID string, celeryID int) error
	Exchange(ctx context.Context, authorID string, celeryID int, guildID string) (int64, error)
	Rename(ctx context.Context, authorID string, celeryID int, newName, guildID string) error
}

// Server hosts the ledger HTTP process.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
}

// New creates a configured server listening on the provided address. grant
// may be zero-valued only when the dummy-mint route should reject everything.
func New(addr string, ledger Ledger, grant GrantConfig) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, ledger, grant)

	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve runs the HTTP server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	log.Printf("ledger server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// registerRoutes wires the route table onto mux.
func registerRoutes(mux *http.ServeMux, ledger Ledger, grant GrantConfig) {
	mux.HandleFunc("GET /up", handleHealth)
	mux.HandleFunc("POST /v1/messages", handleSubmitMessage(ledger))
	mux.HandleFunc("POST /v1/mints/dummy", handleMintDummy(ledger, grant))
	mux.HandleFunc("GET /v1/celeries/{id}", handleGetCelery(ledger))
	mux.HandleFunc("GET /v1/wallets/{id}", handleGetWallet(ledger))
	mux.HandleFunc("POST /v1/celeries/{id}/give", handleGive(ledger))
	mux.HandleFunc("POST /v1/celeries/{id}/exchange", handleExchange(ledger))
	mux.HandleFunc("POST /v1/celeries/{id}/rename", handleRename(ledger))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitMessageRequest struct {
	AuthorID    string `json:"author_id"`
	Text        string `json:"text"`
	ContextSize int    `json:"context_size"`
}

func handleSubmitMessage(ledger Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitMessageRequest
		if !decodeBody(w, r, &req) {
			return
		}
		outcome, err := ledger.SubmitCandidates(r.Context(), req.Text, req.AuthorID, req.ContextSize)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

type mintDummyRequest struct {
	AuthorID string `json:"author_id"`
}

func handleMintDummy(ledger Ledger, grant GrantConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mintDummyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if _, err := ValidateGrant(bearerToken(r), req.AuthorID, grant); err != nil {
			writeError(w, err)
			return
		}
		entry, err := ledger.MintDummy(r.Context(), req.AuthorID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

func handleGetCelery(ledger Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := celeryID(w, r)
		if !ok {
			return
		}
		entry, err := ledger.GetCelery(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

type walletResponse struct {
	ID            string `json:"id"`
	OwnedCeleries []int  `json:"ownedCeleries"`
}

func handleGetWallet(ledger Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		writeJSON(w, http.StatusOK, walletResponse{
			ID:            id,
			OwnedCeleries: ledger.ListOwned(id),
		})
	}
}

type giveRequest struct {
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
}

func handleGive(ledger Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := celeryID(w, r)
		if !ok {
			return
		}
		var req giveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := ledger.Give(r.Context(), req.FromID, req.ToID, id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "given"})
	}
}

type exchangeRequest struct {
	AuthorID string `json:"author_id"`
	GuildID  string `json:"guild_id"`
}

type exchangeResponse struct {
	Payout int64 `json:"payout"`
}

func handleExchange(ledger Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := celeryID(w, r)
		if !ok {
			return
		}
		var req exchangeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		payout, err := ledger.Exchange(r.Context(), req.AuthorID, id, req.GuildID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, exchangeResponse{Payout: payout})
	}
}

type renameRequest struct {
	AuthorID string `json:"author_id"`
	Name     string `json:"name"`
	GuildID  string `json:"guild_id"`
}

func handleRename(ledger Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := celeryID(w, r)
		if !ok {
			return
		}
		var req renameRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := ledger.Rename(r.Context(), req.AuthorID, id, req.Name, req.GuildID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
	}
}

// celeryID parses the {id} path segment, writing the error response itself
// when the segment is not a number.
func celeryID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "celery id must be a number"))
		return 0, false
	}
	return id, true
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

// decodeBody decodes the JSON request body into dst, writing the error
// response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeInvalidArgument, "malformed request body", err))
		return false
	}
	return true
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	if code == apperrors.CodeUnknown {
		log.Printf("ledger api internal error: %v", err)
	}
	writeJSON(w, code.HTTPStatus(), errorEnvelope{
		Error: errorBody{
			Code:    string(code),
			Message: err.Error(),
			Details: apperrors.GetMetadata(err),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("ledger api encode response: %v", err)
	}
}
