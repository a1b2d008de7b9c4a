package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"membercheck/internal/auth"
	"membercheck/internal/export"
	"membercheck/internal/ingest"
	"membercheck/internal/query"
	"membercheck/internal/record"
	"membercheck/internal/store"

	jsoniter "github.com/json-iterator/go"
)

// Configure jsoniter for standard library compatibility.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIResponse defines the base structure for all JSON responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// SendJSONResponse is a helper function to send any JSON response.
func SendJSONResponse(w http.ResponseWriter, success bool, message string, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	resp := APIResponse{
		Success: success,
		Message: message,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// LoginRequest is the request body of POST /login.
type LoginRequest struct {
	Password string `json:"password"`
}

// DatasetInfo describes one stored dataset in list/stats responses.
type DatasetInfo struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Rows   int    `json:"rows"`
}

// SearchResult is the data payload of /search and /lookup responses.
type SearchResult struct {
	Fields   []string            `json:"fields"`
	Rows     []map[string]string `json:"rows"`
	Count    int                 `json:"count"`
	Total    int                 `json:"total"`
	Filtered bool                `json:"filtered"`
}

// Handlers groups the API handlers and their collaborators.
type Handlers struct {
	Store          *store.DatasetStore
	Ingester       *ingest.Ingester
	Gate           *auth.Gate
	StoredName     func(original string) string
	MaxUploadBytes int64
	Projection     []string
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(s *store.DatasetStore, in *ingest.Ingester, gate *auth.Gate, storedName func(string) string, maxUploadBytes int64) *Handlers {
	return &Handlers{
		Store:          s,
		Ingester:       in,
		Gate:           gate,
		StoredName:     storedName,
		MaxUploadBytes: maxUploadBytes,
		Projection:     record.DefaultProjection(),
	}
}

// RegisterRoutes wires all endpoints onto the mux with request logging.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/login", LogRequest(http.HandlerFunc(h.LoginHandler)))
	mux.Handle("/logout", LogRequest(http.HandlerFunc(h.LogoutHandler)))
	mux.Handle("/datasets", LogRequest(http.HandlerFunc(h.DatasetsHandler)))
	mux.Handle("/datasets/", LogRequest(http.HandlerFunc(h.DatasetItemHandler)))
	mux.Handle("/search", LogRequest(http.HandlerFunc(h.SearchHandler)))
	mux.Handle("/lookup", LogRequest(http.HandlerFunc(h.LookupHandler)))
	mux.Handle("/export", LogRequest(http.HandlerFunc(h.ExportHandler)))
	mux.Handle("/stats", LogRequest(http.HandlerFunc(h.StatsHandler)))
	mux.Handle("/healthz", LogRequest(http.HandlerFunc(h.HealthHandler)))
}

// bearerToken extracts the session token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, found := strings.CutPrefix(header, "Bearer "); found {
		return strings.TrimSpace(after)
	}
	return ""
}

// requireAdmin gates mutating endpoints behind a live admin session.
func (h *Handlers) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if h.Gate.Authorized(bearerToken(r)) {
		return true
	}
	log.Printf("Unauthorized request: Method='%s', Path='%s'", r.Method, r.URL.Path)
	SendJSONResponse(w, false, "Admin authentication required", nil, http.StatusUnauthorized)
	return false
}

// LoginHandler handles POST /login and issues a session token.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		SendJSONResponse(w, false, "Method not allowed", nil, http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		log.Printf("Bad request: invalid JSON body for /login: %v", err)
		SendJSONResponse(w, false, "Invalid JSON request body", nil, http.StatusBadRequest)
		return
	}

	token, ok := h.Gate.Authenticate(req.Password)
	if !ok {
		SendJSONResponse(w, false, "Wrong password", nil, http.StatusUnauthorized)
		return
	}

	SendJSONResponse(w, true, "Authenticated as admin", map[string]string{"token": token}, http.StatusOK)
}

// LogoutHandler handles POST /logout and revokes the session token.
func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		SendJSONResponse(w, false, "Method not allowed", nil, http.StatusMethodNotAllowed)
		return
	}
	h.Gate.Revoke(bearerToken(r))
	SendJSONResponse(w, true, "Session revoked", nil, http.StatusOK)
}

// DatasetsHandler handles GET /datasets (list) and POST /datasets (upload).
func (h *Handlers) DatasetsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listDatasets(w)
	case http.MethodPost:
		h.uploadDataset(w, r)
	default:
		SendJSONResponse(w, false, "Method not allowed", nil, http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) listDatasets(w http.ResponseWriter) {
	ids := h.Store.List()
	infos := make([]DatasetInfo, 0, len(ids))
	for _, id := range ids {
		if ds, ok := h.Store.Get(id); ok {
			infos = append(infos, DatasetInfo{ID: id, Source: ds.Source, Rows: ds.Len()})
		}
	}
	SendJSONResponse(w, true, "Datasets retrieved successfully", infos, http.StatusOK)
}

func (h *Handlers) uploadDataset(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		log.Printf("Bad upload request: %v", err)
		SendJSONResponse(w, false, "Invalid multipart upload (is the file too large?)", nil, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		SendJSONResponse(w, false, "Multipart field 'file' is required", nil, http.StatusBadRequest)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		log.Printf("Failed to read upload %q: %v", header.Filename, err)
		SendJSONResponse(w, false, "Failed to read uploaded file", nil, http.StatusInternalServerError)
		return
	}

	ds, err := h.Ingester.Ingest(raw, header.Filename)
	if err != nil {
		h.sendIngestError(w, header.Filename, err)
		return
	}

	id := h.StoredName(header.Filename)
	h.Store.Put(id, ds)

	SendJSONResponse(w, true, fmt.Sprintf("File %q stored as dataset '%s'", header.Filename, id),
		DatasetInfo{ID: id, Source: ds.Source, Rows: ds.Len()}, http.StatusCreated)
}

// sendIngestError maps the ingestion error taxonomy onto HTTP statuses.
func (h *Handlers) sendIngestError(w http.ResponseWriter, name string, err error) {
	var missing *ingest.MissingFieldsError
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		SendJSONResponse(w, false, fmt.Sprintf("File %q rejected: %v", name, err), nil, http.StatusBadRequest)
	case errors.As(err, &missing):
		SendJSONResponse(w, false, fmt.Sprintf("File %q rejected: %v", name, err),
			map[string][]string{"missing_fields": missing.Missing}, http.StatusUnprocessableEntity)
	default:
		log.Printf("Ingestion failed for %q: %v", name, err)
		SendJSONResponse(w, false, fmt.Sprintf("File %q could not be parsed", name), nil, http.StatusBadRequest)
	}
}

// getDatasetIDFromPath extracts the dataset id from /datasets/{id}.
func getDatasetIDFromPath(r *http.Request) string {
	id := strings.TrimPrefix(r.URL.Path, "/datasets/")
	id, _ = url.PathUnescape(id)
	return id
}

// DatasetItemHandler handles DELETE /datasets/{id}.
func (h *Handlers) DatasetItemHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		SendJSONResponse(w, false, "Method not allowed", nil, http.StatusMethodNotAllowed)
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}

	id := getDatasetIDFromPath(r)
	if id == "" {
		SendJSONResponse(w, false, "Dataset id cannot be empty", nil, http.StatusBadRequest)
		return
	}

	if err := h.Store.Remove(id); err != nil {
		if errors.Is(err, store.ErrDatasetNotFound) {
			SendJSONResponse(w, false, fmt.Sprintf("Dataset '%s' not found", id), nil, http.StatusNotFound)
			return
		}
		log.Printf("Failed to remove dataset '%s': %v", id, err)
		SendJSONResponse(w, false, fmt.Sprintf("Failed to remove dataset '%s'", id), nil, http.StatusInternalServerError)
		return
	}

	SendJSONResponse(w, true, fmt.Sprintf("Dataset '%s' deleted", id), nil, http.StatusOK)
}

// predicatesFromQuery builds the field predicates from query parameters.
// Absent or empty parameters impose no constraint.
func predicatesFromQuery(values url.Values) query.Predicates {
	preds := query.Predicates{
		record.FieldNama:       values.Get("nama"),
		record.FieldNopek:      values.Get("nopek"),
		record.FieldPerusahaan: values.Get("perusahaan"),
		record.FieldPenanggung: values.Get("penanggung"),
	}
	return preds
}

// runSearch aggregates the current datasets and applies the request's
// predicates. The unified collection is recomputed on every call.
func (h *Handlers) runSearch(values url.Values) (record.Collection, query.Predicates) {
	unified := query.Aggregate(h.Store.GetAll())
	preds := predicatesFromQuery(values)
	return query.Search(unified, preds), preds
}

// collectionResult projects a collection and flattens it into the JSON
// row-map shape clients consume.
func (h *Handlers) collectionResult(c record.Collection, total int, filtered bool) SearchResult {
	projected := query.Project(c, h.Projection)
	rows := make([]map[string]string, 0, len(projected.Records))
	for _, rec := range projected.Records {
		row := make(map[string]string, len(projected.Fields))
		for _, f := range projected.Fields {
			row[f] = rec.Get(f)
		}
		rows = append(rows, row)
	}
	return SearchResult{
		Fields:   projected.Fields,
		Rows:     rows,
		Count:    len(rows),
		Total:    total,
		Filtered: filtered,
	}
}

// SearchHandler handles GET /search with named-field predicates combined
// with AND semantics. With no criteria it returns the full collection.
func (h *Handlers) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		SendJSONResponse(w, false, "Method not allowed", nil, http.StatusMethodNotAllowed)
		return
	}

	result, preds := h.runSearch(r.URL.Query())
	payload := h.collectionResult(result, h.Store.TotalRows(), !preds.Empty())

	message := fmt.Sprintf("%d records found", payload.Count)
	if preds.Empty() {
		message = fmt.Sprintf("No search criteria entered, returning all %d records", payload.Count)
	}
	SendJSONResponse(w, true, message, payload, http.StatusOK)
}

// LookupHandler handles GET /lookup?field=&value=, an exact-match fast path
// backed by a per-request index over the unified collection.
func (h *Handlers) LookupHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		SendJSONResponse(w, false, "Method not allowed", nil, http.StatusMethodNotAllowed)
		return
	}

	field := r.URL.Query().Get("field")
	if field == "" {
		field = record.FieldNopek
	}
	value := r.URL.Query().Get("value")
	if value == "" {
		SendJSONResponse(w, false, "'value' query parameter is required", nil, http.StatusBadRequest)
		return
	}

	allowed := false
	for _, f := range record.QueryableFields() {
		if f == field {
			allowed = true
			break
		}
	}
	if !allowed {
		SendJSONResponse(w, false, fmt.Sprintf("Field '%s' is not queryable", field), nil, http.StatusBadRequest)
		return
	}

	unified := query.Aggregate(h.Store.GetAll())
	idx := query.BuildIndex(unified, field)
	matched := record.Collection{
		Fields:  unified.Fields,
		Records: query.LookupRecords(unified, idx, value),
	}

	payload := h.collectionResult(matched, h.Store.TotalRows(), true)
	SendJSONResponse(w, true, fmt.Sprintf("%d records found for %s='%s'", payload.Count, field, value), payload, http.StatusOK)
}

// ExportHandler handles GET /export?format=csv|xlsx plus the same predicate
// parameters as /search. It streams the file instead of the JSON envelope.
func (h *Handlers) ExportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		SendJSONResponse(w, false, "Method not allowed", nil, http.StatusMethodNotAllowed)
		return
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}

	result, _ := h.runSearch(r.URL.Query())
	projected := query.Project(result, h.Projection)

	var (
		raw         []byte
		err         error
		contentType string
		fileName    string
	)
	switch format {
	case "csv":
		raw, err = export.CSV(projected)
		contentType = "text/csv; charset=utf-8"
		fileName = "members.csv"
	case "xlsx":
		raw, err = export.XLSX(projected)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		fileName = "members.xlsx"
	default:
		SendJSONResponse(w, false, fmt.Sprintf("Unsupported export format '%s'", format), nil, http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("Export failed (format=%s): %v", format, err)
		SendJSONResponse(w, false, "Export failed", nil, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		log.Printf("Failed to write export body: %v", err)
	}
}

// StatsHandler handles GET /stats: per-dataset row counts, the union field
// set and the total row count. Rendering the numbers is the caller's job.
func (h *Handlers) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		SendJSONResponse(w, false, "Method not allowed", nil, http.StatusMethodNotAllowed)
		return
	}

	ids, datasets := h.Store.Snapshot()
	unified := query.Aggregate(datasets)

	infos := make([]DatasetInfo, 0, len(datasets))
	for i, ds := range datasets {
		infos = append(infos, DatasetInfo{ID: ids[i], Source: ds.Source, Rows: ds.Len()})
	}

	SendJSONResponse(w, true, "Statistics retrieved successfully", map[string]any{
		"datasets":    infos,
		"total_rows":  unified.Len(),
		"fields":      unified.Fields,
		"field_count": len(unified.Fields),
	}, http.StatusOK)
}

// HealthHandler handles GET /healthz.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	SendJSONResponse(w, true, "ok", map[string]int{"datasets": h.Store.Len()}, http.StatusOK)
}

// LogRequest is a middleware for logging incoming HTTP requests.
func LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("Request: Method='%s', Path='%s', Duration='%s'", r.Method, r.URL.Path, time.Since(start))
	})
}
