package main

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// serverResponse mirrors the server's JSON envelope.
type serverResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
}

// searchData is the payload of /search and /lookup responses.
type searchData struct {
	Fields   []string            `json:"fields"`
	Rows     []map[string]string `json:"rows"`
	Count    int                 `json:"count"`
	Total    int                 `json:"total"`
	Filtered bool                `json:"filtered"`
}

// datasetInfo is one entry of the /datasets listing.
type datasetInfo struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Rows   int    `json:"rows"`
}

// doJSON performs a request and decodes the server envelope. A non-success
// envelope becomes an error carrying the server's message.
func (c *cli) doJSON(method, path string, body io.Reader, contentType string) (*serverResponse, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var envelope serverResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("invalid response from server: %w", err)
	}
	if !envelope.Success {
		return &envelope, fmt.Errorf("%s", envelope.Message)
	}
	return &envelope, nil
}

func (c *cli) handleLogin(args string) error {
	password := strings.TrimSpace(args)
	if password == "" {
		return fmt.Errorf("usage: login <password>")
	}

	body, _ := json.Marshal(map[string]string{"password": password})
	resp, err := c.doJSON(http.MethodPost, "/login", bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}

	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return fmt.Errorf("invalid login response: %w", err)
	}
	c.token = data.Token
	fmt.Println(colorOK(resp.Message))
	return nil
}

func (c *cli) handleLogout(string) error {
	if c.token == "" {
		fmt.Println(colorInfo("Not logged in."))
		return nil
	}
	if _, err := c.doJSON(http.MethodPost, "/logout", nil, ""); err != nil {
		return err
	}
	c.token = ""
	fmt.Println(colorOK("Logged out."))
	return nil
}

// parseFilters turns "nama=budi nopek=123" pairs into query parameters.
func parseFilters(args string) (url.Values, error) {
	values := url.Values{}
	for _, part := range strings.Fields(args) {
		key, val, found := strings.Cut(part, "=")
		if !found {
			return nil, fmt.Errorf("expected key=value, got %q", part)
		}
		switch key {
		case "nama", "nopek", "perusahaan", "penanggung":
			values.Set(key, val)
		default:
			return nil, fmt.Errorf("unknown filter %q (use nama, nopek, perusahaan, penanggung)", key)
		}
	}
	return values, nil
}

func (c *cli) handleSearch(args string) error {
	values, err := parseFilters(args)
	if err != nil {
		return err
	}

	resp, err := c.doJSON(http.MethodGet, "/search?"+values.Encode(), nil, "")
	if err != nil {
		return err
	}
	return renderSearchData(resp)
}

func (c *cli) handleLookup(args string) error {
	fields := strings.Fields(args)
	values := url.Values{}
	switch len(fields) {
	case 1:
		values.Set("value", fields[0])
	case 2:
		values.Set("field", fields[0])
		values.Set("value", fields[1])
	default:
		return fmt.Errorf("usage: lookup [FIELD] <value>")
	}

	resp, err := c.doJSON(http.MethodGet, "/lookup?"+values.Encode(), nil, "")
	if err != nil {
		return err
	}
	return renderSearchData(resp)
}

func (c *cli) handleUpload(args string) error {
	path := strings.TrimSpace(args)
	if path == "" {
		return fmt.Errorf("usage: upload <path.csv|path.xlsx>")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %q: %w", path, err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := part.Write(raw); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	resp, err := c.doJSON(http.MethodPost, "/datasets", &body, writer.FormDataContentType())
	if err != nil {
		return err
	}
	fmt.Println(colorOK(resp.Message))
	return nil
}

func (c *cli) handleDatasets(string) error {
	resp, err := c.doJSON(http.MethodGet, "/datasets", nil, "")
	if err != nil {
		return err
	}

	var infos []datasetInfo
	if err := json.Unmarshal(resp.Data, &infos); err != nil {
		return fmt.Errorf("invalid datasets response: %w", err)
	}
	renderDatasetTable(infos)
	return nil
}

func (c *cli) handleDelete(args string) error {
	id := strings.TrimSpace(args)
	if id == "" {
		return fmt.Errorf("usage: delete <dataset-id>")
	}

	resp, err := c.doJSON(http.MethodDelete, "/datasets/"+url.PathEscape(id), nil, "")
	if err != nil {
		return err
	}
	fmt.Println(colorOK(resp.Message))
	return nil
}

func (c *cli) handleExport(args string) error {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return fmt.Errorf("usage: export <csv|xlsx> <out-path> [filters]")
	}
	format, outPath := fields[0], fields[1]

	values, err := parseFilters(strings.Join(fields[2:], " "))
	if err != nil {
		return err
	}
	values.Set("format", format)

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/export?"+values.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var envelope serverResponse
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
			return fmt.Errorf("%s", envelope.Message)
		}
		return fmt.Errorf("export failed with status %s", resp.Status)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", outPath, err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", outPath, err)
	}
	fmt.Println(colorOK(fmt.Sprintf("Exported %d bytes to %s", n, outPath)))
	return nil
}

func (c *cli) handleStats(string) error {
	resp, err := c.doJSON(http.MethodGet, "/stats", nil, "")
	if err != nil {
		return err
	}
	return renderStats(resp.Data)
}

// fetchDatasetIDs feeds the readline completer for 'delete'.
func (c *cli) fetchDatasetIDs(string) []string {
	resp, err := c.doJSON(http.MethodGet, "/datasets", nil, "")
	if err != nil {
		return nil
	}
	var infos []datasetInfo
	if err := json.Unmarshal(resp.Data, &infos); err != nil {
		return nil
	}
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, info.ID)
	}
	return ids
}
