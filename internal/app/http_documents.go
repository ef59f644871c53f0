package app

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"inkwell/api/internal/export"
)

func (s *HTTPServer) handleSaveDocument(w http.ResponseWriter, r *http.Request, session Session) {
	var filename string
	var raw []byte
	if isForm(r) {
		if err := parseForm(r); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid form body", nil)
			return
		}
		filename = r.FormValue("filename")
		raw = []byte(r.FormValue("document_data"))
	} else {
		var body struct {
			Filename string          `json:"filename"`
			Document json.RawMessage `json:"document"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		filename = body.Filename
		raw = body.Document
	}
	if strings.TrimSpace(filename) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "filename is required", nil)
		return
	}

	payload, err := s.service.SaveDocument(r.Context(), session, filename, raw)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, session Session, filename string, parts []string) {
	if len(parts) == 3 && r.Method == http.MethodGet {
		doc, err := s.service.LoadDocument(r.Context(), session, filename)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "document": doc})
		return
	}

	if len(parts) == 3 && r.Method == http.MethodDelete {
		if err := s.service.DeleteDocument(r.Context(), session, filename); err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Document deleted"})
		return
	}

	if len(parts) == 4 && parts[3] == "download" && r.Method == http.MethodGet {
		doc, err := s.service.Document(r.Context(), session, filename)
		if err != nil {
			respondError(w, err)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(doc.Content))
		return
	}

	if len(parts) == 4 && parts[3] == "history" && r.Method == http.MethodGet {
		limit, ok := queryInt(w, r, "limit", defaultHistoryLimit)
		if !ok {
			return
		}
		commits, err := s.service.History(r.Context(), session, filename, limit)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
		return
	}

	if len(parts) == 5 && parts[3] == "history" && r.Method == http.MethodGet {
		content, err := s.service.Version(r.Context(), session, filename, parts[4])
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"hash": parts[4], "document": content})
		return
	}

	if len(parts) == 4 && parts[3] == "export" && r.Method == http.MethodGet {
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			respondError(w, err)
			return
		}
		includeSuggestions, _ := strconv.ParseBool(r.URL.Query().Get("suggestions"))
		publish, _ := strconv.ParseBool(r.URL.Query().Get("store"))

		result, err := s.service.ExportDocument(r.Context(), session, filename, format, includeSuggestions, publish)
		if err != nil {
			respondError(w, err)
			return
		}
		if publish {
			writeJSON(w, http.StatusOK, map[string]any{
				"url":      result.URL,
				"filename": result.Filename,
				"mimeType": result.MimeType,
			})
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
		w.Header().Set("Content-Type", result.MimeType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	if len(parts) == 4 && parts[3] == "snapshots" {
		switch r.Method {
		case http.MethodPost:
			payload, err := s.service.CreateSnapshot(r.Context(), session, filename)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
		case http.MethodGet:
			items, err := s.service.ListSnapshots(r.Context(), session, filename)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"snapshots": items})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleGenerateText(w http.ResponseWriter, r *http.Request, session Session) {
	var in GenerateInput
	if isForm(r) {
		if err := parseForm(r); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid form body", nil)
			return
		}
		in = GenerateInput{
			UserText:             r.FormValue("user_text"),
			MainPoint:            r.FormValue("main_point"),
			Title:                r.FormValue("title"),
			PrevParagraph:        r.FormValue("prev_paragraph"),
			NextParagraph:        r.FormValue("next_paragraph"),
			GenerationMode:       r.FormValue("generation_mode"),
			WritingStyle:         r.FormValue("writing_style"),
			TargetAudience:       r.FormValue("target_audience"),
			Tone:                 r.FormValue("tone"),
			BackgroundContext:    r.FormValue("background_context"),
			GenerationDirective:  r.FormValue("generation_directive"),
			Source:               r.FormValue("source"),
			Model:                r.FormValue("model"),
			EnvironmentVariables: EnvVars(r.FormValue("environment_variables")),
		}
		if raw := strings.TrimSpace(r.FormValue("word_limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "word_limit must be an integer", nil)
				return
			}
			in.WordLimit = n
		}
	} else if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	text, err := s.service.GenerateText(r.Context(), session, in)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"generated_text": text})
}
