package bridge

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MrWong99/rehearsal/internal/scene"
)

// SectionsHandler serves the section overview of a level:
//
//	GET /levels/{level}/sections?completed=N
//
// completed is the Order of the learner's last finished section; sections
// beyond the next one are reported as locked.
func SectionsHandler(lister scene.Lister, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /levels/{level}/sections", func(w http.ResponseWriter, r *http.Request) {
		level := r.PathValue("level")

		completed := 0
		if v := r.URL.Query().Get("completed"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "completed must be a non-negative integer", http.StatusBadRequest)
				return
			}
			completed = n
		}

		sections, err := lister.ListSections(r.Context(), level)
		switch {
		case errors.Is(err, scene.ErrSectionNotFound):
			http.Error(w, "level not found", http.StatusNotFound)
			return
		case err != nil:
			log.Error("list sections", "level", level, "err", err)
			http.Error(w, "failed to list sections", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(scene.ApplyProgress(sections, completed))
	})
	return mux
}
