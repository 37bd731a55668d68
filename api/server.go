package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/couchplay/server/auth"
	"github.com/couchplay/server/game/catalog"
	"github.com/couchplay/server/game/service"
	"github.com/couchplay/server/game/session"
)

// Server is the REST surface: guest auth, the game catalog, room lifecycle
// and match history. Real-time traffic goes over the websocket handler
// mounted at /ws.
type Server struct {
	rooms   *session.Manager
	users   service.UserStore
	matches service.MatchStore
	games   *catalog.Catalog
	tokens  *auth.Service
	appURL  string
	router  *mux.Router
}

// NewServer creates the API server. wsHandler serves the websocket
// endpoint; pass nil to leave /ws unmounted (tests do this).
func NewServer(rooms *session.Manager, users service.UserStore, matches service.MatchStore, games *catalog.Catalog, tokens *auth.Service, appURL string, wsHandler http.Handler) *Server {
	s := &Server{
		rooms:   rooms,
		users:   users,
		matches: matches,
		games:   games,
		tokens:  tokens,
		appURL:  strings.TrimSuffix(appURL, "/"),
		router:  mux.NewRouter(),
	}

	s.setupRoutes(wsHandler)
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes(wsHandler http.Handler) {
	api := s.router.PathPrefix("/api").Subrouter()

	// Identity
	api.HandleFunc("/auth/guest", s.handleGuestAuth).Methods("POST")

	// Catalog
	api.HandleFunc("/games", s.handleListGames).Methods("GET")
	api.HandleFunc("/games/{id}", s.handleGetGame).Methods("GET")

	// Room lifecycle
	api.HandleFunc("/rooms", s.requireUser(s.handleCreateRoom)).Methods("POST")
	api.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	// Code lookup must be registered before the {id} pattern.
	api.HandleFunc("/rooms/code/{code}", s.handleGetRoomByCode).Methods("GET")
	api.HandleFunc("/rooms/{id}", s.handleGetRoom).Methods("GET")
	api.HandleFunc("/rooms/{id}/qr", s.handleRoomQR).Methods("GET")
	api.HandleFunc("/rooms/{id}/start", s.requireUser(s.handleStartRoom)).Methods("POST")
	api.HandleFunc("/rooms/{id}/finish", s.requireUser(s.handleFinishRoom)).Methods("POST")
	api.HandleFunc("/rooms/{id}/matches", s.handleRoomMatches).Methods("GET")

	// Match history
	api.HandleFunc("/matches", s.handleListMatches).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	if wsHandler != nil {
		s.router.Handle("/ws", wsHandler)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// requireUser verifies the Bearer token and hands the claims to the
// wrapped handler.
func (s *Server) requireUser(next func(w http.ResponseWriter, r *http.Request, claims *auth.Claims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r, claims)
	}
}

// Identity handlers

func (s *Server) handleGuestAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.CreateGuest(req.Name)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := s.tokens.GenerateUserToken(user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

// Catalog handlers

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"games": s.games.List(),
	})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	def, err := s.games.Get(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, "game not found")
		return
	}
	respondJSON(w, http.StatusOK, def)
}

// Room handlers

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	var req struct {
		GameID     string                 `json:"gameId"`
		MaxPlayers int                    `json:"maxPlayers"`
		Options    map[string]interface{} `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.games.Playable(req.GameID) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("game %q is not playable", req.GameID))
		return
	}

	def, _ := s.games.Get(req.GameID)
	maxPlayers := req.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = def.MaxPlayers
	}
	if maxPlayers < def.MinPlayers || maxPlayers > def.MaxPlayers {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("maxPlayers must be between %d and %d", def.MinPlayers, def.MaxPlayers))
		return
	}

	room, err := s.rooms.CreateRoom(claims.UserID, req.GameID, maxPlayers, req.Options)
	if err != nil {
		if errors.Is(err, session.ErrOwnerNotFound) {
			respondError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	controllerToken, err := s.tokens.GenerateControllerToken(claims.UserID, room.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue controller token")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"room":            room.Info(),
		"controllerToken": controllerToken,
		"joinUrl":         s.joinURL(room.JoinCode),
	})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	infos := []session.Info{}
	for _, room := range s.rooms.List() {
		infos = append(infos, room.Info())
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rooms": infos,
		"count": len(infos),
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := s.rooms.Get(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusNotFound, "room not found")
		return
	}
	respondJSON(w, http.StatusOK, room.Info())
}

func (s *Server) handleGetRoomByCode(w http.ResponseWriter, r *http.Request) {
	room, ok := s.rooms.GetByCode(mux.Vars(r)["code"])
	if !ok {
		respondError(w, http.StatusNotFound, "room not found")
		return
	}
	respondJSON(w, http.StatusOK, room.Info())
}

// handleRoomQR renders the join URL as a PNG for the display to show.
func (s *Server) handleRoomQR(w http.ResponseWriter, r *http.Request) {
	room, ok := s.rooms.Get(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusNotFound, "room not found")
		return
	}

	size := 256
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 1024 {
			respondError(w, http.StatusBadRequest, "size must be between 64 and 1024")
			return
		}
		size = n
	}

	png, err := qrcode.Encode(s.joinURL(room.JoinCode), qrcode.Medium, size)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to render qr code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, "join.png", room.CreatedAt, bytes.NewReader(png))
}

func (s *Server) handleStartRoom(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	room, err := s.rooms.Start(mux.Vars(r)["id"], claims.UserID)
	if err != nil {
		respondRoomError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, room.Info())
}

func (s *Server) handleFinishRoom(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	roomID := mux.Vars(r)["id"]
	room, ok := s.rooms.Get(roomID)
	if !ok {
		respondError(w, http.StatusNotFound, "room not found")
		return
	}
	if room.OwnerID != claims.UserID {
		respondError(w, http.StatusForbidden, "only the owner can finish the room")
		return
	}

	if err := s.rooms.Finish(roomID); err != nil {
		respondRoomError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, room.Info())
}

func (s *Server) handleRoomMatches(w http.ResponseWriter, r *http.Request) {
	matches := s.matches.ListByRoom(mux.Vars(r)["id"])
	if matches == nil {
		matches = []*service.Match{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
	})
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	matches := s.matches.List(limit)
	if matches == nil {
		matches = []*service.Match{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"rooms":  s.rooms.Count(),
	})
}

func (s *Server) joinURL(code string) string {
	return fmt.Sprintf("%s/join/%s", s.appURL, code)
}

// respondRoomError maps registry errors onto HTTP statuses.
func respondRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrRoomNotFound):
		respondError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, session.ErrNotOwner):
		respondError(w, http.StatusForbidden, "only the owner can do that")
	case errors.Is(err, session.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrRoomNotJoinable):
		respondError(w, http.StatusConflict, "room is not accepting players")
	case errors.Is(err, session.ErrRoomFull):
		respondError(w, http.StatusConflict, "room is full")
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
