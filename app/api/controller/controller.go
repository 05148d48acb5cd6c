package controller

import (
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"

	"github.com/polyvisor/pulse/app/api/controller/types"
	apptypes "github.com/polyvisor/pulse/app/api/types"
	"github.com/polyvisor/pulse/pkg/utils"
)

type Controller struct {
	App       *apptypes.App
	APIToken  string
	AuthUser  string
	Users     map[string]types.User
	AuthHash  []byte
	JWTSecret []byte
}

// NewController returns a new controller.
func NewController(app *apptypes.App) *Controller {
	apiToken := utils.Env("API_TOKEN", "devtoken")
	apiUser := utils.Env("API_USER", "admin")
	apiUsersJSON := utils.Env("API_USERS", "")
	apiPass := utils.Env("API_PASSWORD", "admin")
	jwtSecret := []byte(utils.Env("SESSION_SECRET", "change-me-please"))

	phash, _ := utils.HashOrRead(apiPass)
	users := map[string]types.User{}
	users[apiUser] = types.User{Username: apiUser, Hash: phash, Role: "admin"}
	if apiUsersJSON != "" {
		_ = json.Unmarshal([]byte(apiUsersJSON), &users)
	}

	return &Controller{
		App:       app,
		APIToken:  apiToken,
		AuthUser:  apiUser,
		Users:     users,
		AuthHash:  phash,
		JWTSecret: jwtSecret,
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodDelete+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	// Public: overall health report and liveness
	r.Handle("/api/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	// Login/Logout
	r.HandleFunc("/api/auth/login", c.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", c.HandleLogout).Methods(http.MethodPost)

	// Metric submission and reads. Reads are public; the privacy tier keeps
	// unauthenticated viewers on coarse data.
	r.Handle("/api/metrics", c.RequireAuth(http.HandlerFunc(c.HandleSubmit))).Methods(http.MethodPost)
	r.Handle("/api/metrics/{type}", http.HandlerFunc(c.HandleReadMetric)).Methods(http.MethodGet)

	// Proof lifecycle
	r.Handle("/api/proofs/verify", c.RequireAuth(http.HandlerFunc(c.HandleVerify))).Methods(http.MethodPost)
	r.Handle("/api/proofs/verify/batch", c.RequireAuth(http.HandlerFunc(c.HandleVerifyBatch))).Methods(http.MethodPost)
	r.Handle("/api/proofs/{id}", c.RequireAuth(http.HandlerFunc(c.HandleProofStatus))).Methods(http.MethodGet)
	r.Handle("/api/proofs/{id}", c.RequireAuth(http.HandlerFunc(c.HandleProofCancel))).Methods(http.MethodDelete)
	r.Handle("/api/proofs/{id}/data", c.RequireAuth(http.HandlerFunc(c.HandleProofData))).Methods(http.MethodGet)

	// Contributors and pipeline stats
	r.Handle("/api/contributors/{address}", c.RequireAuth(http.HandlerFunc(c.HandleContributorStats))).Methods(http.MethodGet)
	r.Handle("/api/stats", c.RequireAuth(http.HandlerFunc(c.HandleStats))).Methods(http.MethodGet)

	// WebSocket endpoint for real-time accepted-metric events
	r.HandleFunc("/api/ws", c.HandleWebSocket).Methods(http.MethodGet)

	return r, nil
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
