package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"membercheck/internal/auth"
	"membercheck/internal/ingest"
	"membercheck/internal/record"
	"membercheck/internal/store"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
}

type searchData struct {
	Fields   []string            `json:"fields"`
	Rows     []map[string]string `json:"rows"`
	Count    int                 `json:"count"`
	Total    int                 `json:"total"`
	Filtered bool                `json:"filtered"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	datasetStore := store.New(nil)
	t.Cleanup(datasetStore.Wait)

	counter := 0
	storedName := func(original string) string {
		counter++
		return fmt.Sprintf("%03d_%s", counter, original)
	}

	h := NewHandlers(
		datasetStore,
		ingest.New([]string{"NAMA", "NOPEK"}),
		auth.NewGate("admin123", "", time.Hour),
		storedName,
		1<<20,
	)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func login(t *testing.T, srv *httptest.Server, password string) (string, *http.Response) {
	t.Helper()
	body := fmt.Sprintf(`{"password":%q}`, password)
	resp, err := http.Post(srv.URL+"/login", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	if resp.StatusCode != http.StatusOK {
		return "", resp
	}
	env := decodeEnvelope(t, resp)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token, resp
}

func upload(t *testing.T, srv *httptest.Server, token, fileName, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/datasets", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func getSearch(t *testing.T, srv *httptest.Server, rawQuery string) searchData {
	t.Helper()
	resp, err := http.Get(srv.URL + "/search?" + rawQuery)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	var data searchData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}

const sampleCSV = "NAMA,NOPEK,PENANGGUNG\nBudi,00123,Acme\nSiti,456,Beta\n"

func TestLogin(t *testing.T) {
	srv := newTestServer(t)

	t.Run("wrong password", func(t *testing.T) {
		_, resp := login(t, srv, "nope")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("correct password issues a token", func(t *testing.T) {
		token, _ := login(t, srv, "admin123")
		assert.NotEmpty(t, token)
	})
}

func TestUpload(t *testing.T) {
	srv := newTestServer(t)
	token, _ := login(t, srv, "admin123")

	t.Run("requires admin session", func(t *testing.T) {
		resp := upload(t, srv, "", "peserta.csv", sampleCSV)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("stores a valid csv", func(t *testing.T) {
		resp := upload(t, srv, token, "peserta.csv", sampleCSV)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		env := decodeEnvelope(t, resp)
		assert.True(t, env.Success)
	})

	t.Run("rejects unsupported extensions", func(t *testing.T) {
		resp := upload(t, srv, token, "peserta.txt", sampleCSV)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects files missing required headers", func(t *testing.T) {
		resp := upload(t, srv, token, "bad.csv", "DOB\n1990-01-01\n")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		env := decodeEnvelope(t, resp)
		assert.Contains(t, env.Message, "NAMA")
	})
}

func TestSearchAndLookup(t *testing.T) {
	srv := newTestServer(t)
	token, _ := login(t, srv, "admin123")

	upload(t, srv, token, "one.csv", sampleCSV).Body.Close()
	upload(t, srv, token, "two.csv", "NAMA,NOPEK,PERUSAHAAN\nAndi,789,Gamma\n").Body.Close()

	t.Run("no criteria returns everything", func(t *testing.T) {
		data := getSearch(t, srv, "")
		assert.False(t, data.Filtered)
		assert.Equal(t, 3, data.Count)
		assert.Equal(t, 3, data.Total)
	})

	t.Run("named-field AND search with empty wildcard", func(t *testing.T) {
		data := getSearch(t, srv, "nama=bu&nopek=")
		assert.True(t, data.Filtered)
		require.Equal(t, 1, data.Count)
		assert.Equal(t, "Budi", data.Rows[0]["NAMA"])
	})

	t.Run("projection drops fields nobody uploaded", func(t *testing.T) {
		data := getSearch(t, srv, "")
		assert.NotContains(t, data.Fields, "DOB")
		assert.Contains(t, data.Fields, "PERUSAHAAN")
	})

	t.Run("rows read sentinels for columns their file lacked", func(t *testing.T) {
		data := getSearch(t, srv, "nama=andi")
		require.Equal(t, 1, data.Count)
		assert.Equal(t, "-", data.Rows[0]["PENANGGUNG"])
	})

	t.Run("exact lookup by membership number", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/lookup?value=00123")
		require.NoError(t, err)
		env := decodeEnvelope(t, resp)
		var data searchData
		require.NoError(t, json.Unmarshal(env.Data, &data))
		require.Equal(t, 1, data.Count)
		assert.Equal(t, "Budi", data.Rows[0]["NAMA"])
	})

	t.Run("lookup rejects unqueryable fields", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/lookup?field=DOB&value=1990")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("lookup requires a value", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/lookup")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestDeleteDataset(t *testing.T) {
	srv := newTestServer(t)
	token, _ := login(t, srv, "admin123")

	resp := upload(t, srv, token, "one.csv", sampleCSV)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	doDelete := func(id, token string) *http.Response {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/datasets/"+id, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("requires admin session", func(t *testing.T) {
		resp := doDelete(created.ID, "")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown id is a reported 404 and changes nothing", func(t *testing.T) {
		resp := doDelete("missing.csv", token)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, 2, getSearch(t, srv, "").Total)
	})

	t.Run("delete removes the dataset's rows from search", func(t *testing.T) {
		resp := doDelete(created.ID, token)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 0, getSearch(t, srv, "").Total)
	})
}

func TestExport(t *testing.T) {
	srv := newTestServer(t)
	token, _ := login(t, srv, "admin123")
	upload(t, srv, token, "one.csv", sampleCSV).Body.Close()

	t.Run("csv export honors the search filters", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/export?format=csv&nama=bu")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "Budi")
		assert.NotContains(t, string(raw), "Siti")
	})

	t.Run("unknown format is rejected", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/export?format=pdf")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

// The stats payload pairs dataset ids with row counts; both must come from
// one consistent view of the store even while admins add and remove files.
func TestStatsDuringConcurrentRemoval(t *testing.T) {
	datasetStore := store.New(nil)
	t.Cleanup(datasetStore.Wait)

	h := NewHandlers(
		datasetStore,
		ingest.New(nil),
		auth.NewGate("admin123", "", time.Hour),
		func(original string) string { return original },
		1<<20,
	)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ds := record.Dataset{
		Source:  "churn.csv",
		Fields:  []string{"NAMA"},
		Records: []record.Record{{"NAMA": "Budi"}},
	}
	for i := 0; i < 8; i++ {
		datasetStore.Put(fmt.Sprintf("ds-%d.csv", i), ds)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				id := fmt.Sprintf("ds-%d.csv", (w+i)%8)
				datasetStore.Remove(id)
				datasetStore.Put(id, ds)
			}
		}(w)
	}

	// A torn read panics the handler, which surfaces here as a closed
	// connection instead of a 200.
	for i := 0; i < 200; i++ {
		resp, err := http.Get(srv.URL + "/stats")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	close(stop)
	wg.Wait()
}

func TestStats(t *testing.T) {
	srv := newTestServer(t)
	token, _ := login(t, srv, "admin123")
	upload(t, srv, token, "one.csv", sampleCSV).Body.Close()
	upload(t, srv, token, "two.csv", "NAMA,NOPEK\nAndi,789\n").Body.Close()

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)

	var data struct {
		Datasets  []DatasetInfo `json:"datasets"`
		TotalRows int           `json:"total_rows"`
		Fields    []string      `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))

	assert.Equal(t, 3, data.TotalRows)
	require.Len(t, data.Datasets, 2)
	assert.Equal(t, 2, data.Datasets[0].Rows)
	assert.Contains(t, data.Fields, "PENANGGUNG")
}
