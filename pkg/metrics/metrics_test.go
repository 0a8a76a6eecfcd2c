package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMux(t *testing.T) {
	assert := assert.New(t)
	srv := httptest.NewServer(NewMux())
	defer srv.Close()

	for _, path := range []string{"/ping", "/version", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if !assert.NoError(err) {
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(body, path)
	}
}
