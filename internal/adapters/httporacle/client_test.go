package httporacle

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mikey/image-mod-relay/internal/classifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testImage = &classifier.NormalizedImage{Width: 2, Height: 2, JPEG: []byte("jpeg-data")}

func TestClassifyUploadsImage(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var gotImage []byte
	var gotLabels, gotVersion, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("image")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotImage, _ = io.ReadAll(f)
		gotLabels = r.FormValue("labels")
		gotVersion = r.FormValue("version")
		gotModel = r.FormValue("model_path")
		_, _ = w.Write([]byte(`{"scores":{"porn":0.8,"other":0.2}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, "v2", "/models/nsfw", []string{"porn", "other"}, zap.NewNop())
	scores, err := client.Classify(context.Background(), testImage)
	require.NoError(err)
	assert.Equal(map[string]float64{"porn": 0.8, "other": 0.2}, scores)
	assert.Equal([]byte("jpeg-data"), gotImage)
	assert.Equal("porn,other", gotLabels)
	assert.Equal("v2", gotVersion)
	assert.Equal("/models/nsfw", gotModel)
	assert.Equal("http", client.Name())
}

func TestClassifyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, "v2", "", []string{"porn"}, zap.NewNop())
	_, err := client.Classify(context.Background(), testImage)
	assert.ErrorContains(t, err, "statusCode=500")
}

func TestDecodeScores(t *testing.T) {
	assert := assert.New(t)

	scores, err := decodeScores([]byte(`{"porn":0.4,"cartoon":0.6}`))
	assert.NoError(err)
	assert.Equal(0.6, scores["cartoon"])

	scores, err = decodeScores([]byte(`{"scores":{"porn":1}}`))
	assert.NoError(err)
	assert.Equal(map[string]float64{"porn": 1}, scores)

	_, err = decodeScores([]byte(`{}`))
	assert.Error(err)

	_, err = decodeScores([]byte(`[1,2]`))
	assert.Error(err)

	scores, err = decodeScores([]byte(` [{"label":"porn","score":0.7},{"label":"other","score":0.3}]`))
	assert.NoError(err)
	assert.Equal(map[string]float64{"porn": 0.7, "other": 0.3}, scores)

	scores, err = decodeScores([]byte(`[{"class":"politic","confidence":0}]`))
	assert.NoError(err)
	assert.Equal(map[string]float64{"politic": 0}, scores)

	_, err = decodeScores([]byte(`[]`))
	assert.Error(err)

	_, err = decodeScores([]byte(`[{"label":"porn"}]`))
	assert.Error(err)
}
