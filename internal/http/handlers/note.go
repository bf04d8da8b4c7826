package handlers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eoty/eoty-backend/internal/http/response"
	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/services"
)

type NoteHandler struct {
	log   *logger.Logger
	notes services.NoteService
}

func NewNoteHandler(baseLog *logger.Logger, notes services.NoteService) *NoteHandler {
	return &NoteHandler{
		log:   baseLog.With("handler", "NoteHandler"),
		notes: notes,
	}
}

// POST /api/resources/:id/notes
func (h *NoteHandler) Create(c *gin.Context) {
	resourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "invalid resource id"))
		return
	}
	var input services.NoteInput
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		response.RespondError(c, apierr.New(apierr.CodeInvalidInput, err))
		return
	}
	note, err := h.notes.CreateNote(c.Request.Context(), caller(c), resourceID, input)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"note": note})
}

// GET /api/resources/:id/notes
func (h *NoteHandler) ListForResource(c *gin.Context) {
	resourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "invalid resource id"))
		return
	}
	groups, err := h.notes.ListNotesForResource(c.Request.Context(), caller(c), resourceID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, groups)
}

// PUT /api/notes/:noteId
func (h *NoteHandler) Update(c *gin.Context) {
	noteID, err := uuid.Parse(c.Param("noteId"))
	if err != nil {
		response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "invalid note id"))
		return
	}
	var update services.NoteUpdate
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		response.RespondError(c, apierr.New(apierr.CodeInvalidInput, err))
		return
	}
	note, err := h.notes.UpdateNote(c.Request.Context(), caller(c), noteID, update)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"note": note})
}

// DELETE /api/notes/:noteId
func (h *NoteHandler) Delete(c *gin.Context) {
	noteID, err := uuid.Parse(c.Param("noteId"))
	if err != nil {
		response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "invalid note id"))
		return
	}
	if err := h.notes.DeleteNote(c.Request.Context(), caller(c), noteID); err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondMessage(c, "note deleted")
}

// POST /api/notes/:noteId/share
func (h *NoteHandler) Share(c *gin.Context) {
	noteID, err := uuid.Parse(c.Param("noteId"))
	if err != nil {
		response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "invalid note id"))
		return
	}
	share, err := h.notes.ShareNoteWithChapter(c.Request.Context(), caller(c), noteID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"share": share})
}
