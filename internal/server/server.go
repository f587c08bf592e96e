package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"gridbook/internal/engine"
	"gridbook/internal/store"
	"gridbook/internal/xlsx"
)

type Server struct {
	books *store.WorkbookManager
	users *UserManager
	hub   *Hub
}

func New(books *store.WorkbookManager, users *UserManager, hub *Hub) *Server {
	return &Server{books: books, users: users, hub: hub}
}

// cors sets the permissive headers every API endpoint answers with and
// reports whether the request was a preflight that has been handled.
func cors(w http.ResponseWriter, r *http.Request, methods string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return true
	}
	return false
}

// authenticate resolves the Authorization header to a username, writing
// the 401 response itself on failure.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := r.Header.Get("Authorization")
	username, err := s.users.ValidateToken(token)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return "", false
	}
	return username, true
}

// opStatus maps an engine or store error to an HTTP status.
func opStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrWorkbookNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrSheetNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrDuplicateSheet):
		return http.StatusConflict
	case errors.Is(err, engine.ErrUnknownOp), errors.Is(err, engine.ErrBadAddress):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(s.hub, s.users, w, r)
	})

	mux.HandleFunc("/api/register", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "POST") {
			return
		}
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Username == "" || req.Password == "" {
			http.Error(w, "Username and password required", http.StatusBadRequest)
			return
		}

		if err := s.users.Register(req.Username, req.Password); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "POST") {
			return
		}
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		token, err := s.users.Login(req.Username, req.Password)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"token":    token,
			"username": req.Username,
		})
	})

	mux.HandleFunc("/api/logout", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "POST") {
			return
		}
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if token := r.Header.Get("Authorization"); token != "" {
			s.users.Logout(token)
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message": "Logged out successfully"})
	})

	mux.HandleFunc("/api/validate", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "GET") {
			return
		}
		username, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"username": username,
			"valid":    "true",
		})
	})

	mux.HandleFunc("/api/change-password", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "POST") {
			return
		}
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		username, ok := s.authenticate(w, r)
		if !ok {
			return
		}

		var req struct {
			OldPassword string `json:"old_password"`
			NewPassword string `json:"new_password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.users.ChangePassword(username, req.OldPassword, req.NewPassword); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message": "Password changed"})
	})

	mux.HandleFunc("/api/workbooks", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "GET, POST, DELETE") {
			return
		}
		if _, ok := s.authenticate(w, r); !ok {
			return
		}

		switch r.Method {
		case "GET":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(s.books.List())

		case "POST":
			var req struct {
				ID string `json:"id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			id, err := s.books.Create(req.ID)
			if err != nil {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"id": id})

		case "DELETE":
			id := r.URL.Query().Get("id")
			if id == "" {
				http.Error(w, "Workbook ID required", http.StatusBadRequest)
				return
			}
			if err := s.books.Delete(id); err != nil {
				http.Error(w, err.Error(), opStatus(err))
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"message": "Workbook deleted"})

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/workbook", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "GET") {
			return
		}
		if _, ok := s.authenticate(w, r); !ok {
			return
		}
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Workbook ID required", http.StatusBadRequest)
			return
		}

		var out engine.Export
		err := s.books.View(id, func(wb *engine.Workbook) error {
			out = wb.Export()
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), opStatus(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	mux.HandleFunc("/api/workbook/dispatch", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "POST") {
			return
		}
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		username, ok := s.authenticate(w, r)
		if !ok {
			return
		}

		var req struct {
			ID   string          `json:"id"`
			Op   string          `json:"op"`
			Args json.RawMessage `json:"args"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		op, err := engine.DecodeOp(req.Op, req.Args)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var applied engine.Event
		err = s.books.With(req.ID, func(wb *engine.Workbook) error {
			if err := wb.Apply(op); err != nil {
				return err
			}
			if n := len(wb.Events); n > 0 {
				applied = wb.Events[n-1]
			}
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), opStatus(err))
			return
		}

		log.Printf("%s applied %s on workbook %s", username, req.Op, req.ID)
		s.hub.NotifyUpdate(req.ID)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"event_id": applied.ID,
			"summary":  applied.Summary,
		})
	})

	mux.HandleFunc("/api/workbook/plan", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "POST") {
			return
		}
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, ok := s.authenticate(w, r); !ok {
			return
		}

		var req struct {
			ID    string            `json:"id"`
			Steps []engine.PlanStep `json:"steps"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var results []engine.StepResult
		err := s.books.With(req.ID, func(wb *engine.Workbook) error {
			results = wb.ApplyPlan(req.Steps)
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), opStatus(err))
			return
		}

		s.hub.NotifyUpdate(req.ID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(results)
	})

	mux.HandleFunc("/api/workbook/undo", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "POST") {
			return
		}
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, ok := s.authenticate(w, r); !ok {
			return
		}

		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var undone *engine.Event
		err := s.books.With(req.ID, func(wb *engine.Workbook) error {
			ev, err := wb.Undo()
			undone = ev
			return err
		})
		if err != nil {
			http.Error(w, err.Error(), opStatus(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if undone == nil {
			json.NewEncoder(w).Encode(map[string]any{"undone": false})
			return
		}
		s.hub.NotifyUpdate(req.ID)
		json.NewEncoder(w).Encode(map[string]any{
			"undone":   true,
			"event_id": undone.ID,
			"summary":  undone.Summary,
		})
	})

	mux.HandleFunc("/api/workbook/checkpoint", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "POST") {
			return
		}
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, ok := s.authenticate(w, r); !ok {
			return
		}

		var req struct {
			ID           string `json:"id"`
			CheckpointID string `json:"checkpoint_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var cp engine.Checkpoint
		err := s.books.With(req.ID, func(wb *engine.Workbook) error {
			cp = wb.AddCheckpoint(req.CheckpointID)
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), opStatus(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cp)
	})

	mux.HandleFunc("/api/workbook/recalculate", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "POST") {
			return
		}
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, ok := s.authenticate(w, r); !ok {
			return
		}

		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		err := s.books.With(req.ID, func(wb *engine.Workbook) error {
			wb.RecalculateAll()
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), opStatus(err))
			return
		}
		s.hub.NotifyUpdate(req.ID)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message": "Recalculated"})
	})

	mux.HandleFunc("/api/workbook/provenance", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "GET") {
			return
		}
		if _, ok := s.authenticate(w, r); !ok {
			return
		}

		id := r.URL.Query().Get("id")
		sheet := r.URL.Query().Get("sheet")
		cell := r.URL.Query().Get("cell")
		if id == "" || sheet == "" || cell == "" {
			http.Error(w, "id, sheet and cell required", http.StatusBadRequest)
			return
		}

		var prov []engine.Provenance
		err := s.books.View(id, func(wb *engine.Workbook) error {
			p, err := wb.ProvenanceAt(sheet, cell)
			prov = p
			return err
		})
		if err != nil {
			http.Error(w, err.Error(), opStatus(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(prov)
	})

	mux.HandleFunc("/api/workbook/import", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "POST") {
			return
		}
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, ok := s.authenticate(w, r); !ok {
			return
		}

		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Workbook ID required", http.StatusBadRequest)
			return
		}

		var in engine.Import
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		err := s.books.With(id, func(wb *engine.Workbook) error {
			wb.Load(in)
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), opStatus(err))
			return
		}
		s.hub.NotifyUpdate(id)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message": "Imported"})
	})

	mux.HandleFunc("/api/workbook/import.xlsx", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "POST") {
			return
		}
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, ok := s.authenticate(w, r); !ok {
			return
		}

		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Workbook ID required", http.StatusBadRequest)
			return
		}

		in, err := xlsx.Read(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		err = s.books.With(id, func(wb *engine.Workbook) error {
			wb.Load(in)
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), opStatus(err))
			return
		}
		s.hub.NotifyUpdate(id)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message": "Imported"})
	})

	mux.HandleFunc("/api/workbook/export.xlsx", func(w http.ResponseWriter, r *http.Request) {
		if cors(w, r, "GET") {
			return
		}
		if _, ok := s.authenticate(w, r); !ok {
			return
		}

		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Workbook ID required", http.StatusBadRequest)
			return
		}

		var buf bytes.Buffer
		err := s.books.View(id, func(wb *engine.Workbook) error {
			return xlsx.Write(&buf, wb)
		})
		if err != nil {
			http.Error(w, err.Error(), opStatus(err))
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.xlsx"`)
		w.Write(buf.Bytes())
	})

	// Simple health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	return mux
}
