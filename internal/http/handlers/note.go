package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/previsit/internal/prepnote"
)

// NoteHandler serves the pre-visit note panel.
type NoteHandler struct {
	panel *prepnote.Panel
}

func NewNoteHandler(panel *prepnote.Panel) *NoteHandler {
	return &NoteHandler{panel: panel}
}

// GetNote handles GET /note.
func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.panel.View())
}

// EditSection handles PUT /note/sections/{section}.
func (h *NoteHandler) EditSection(w http.ResponseWriter, r *http.Request) {
	section, ok := prepnote.ParseSection(chi.URLParam(r, "section"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown note section")
		return
	}
	var req textRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.panel.EditSection(section, req.Text)
	writeJSON(w, http.StatusOK, h.panel.View())
}

// ToggleEditMode handles POST /note/edit-mode.
func (h *NoteHandler) ToggleEditMode(w http.ResponseWriter, r *http.Request) {
	h.panel.ToggleEditMode()
	writeJSON(w, http.StatusOK, h.panel.View())
}

// Copy handles POST /note/copy. An empty note is accepted and does nothing.
func (h *NoteHandler) Copy(w http.ResponseWriter, r *http.Request) {
	h.panel.Copy(r.Context())
	writeJSON(w, http.StatusOK, h.panel.View())
}
