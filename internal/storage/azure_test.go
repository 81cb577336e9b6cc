package storage

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobServer is an in-memory stand-in for the Blob service REST endpoints used by AzureStorage
type blobServer struct {
	mu         sync.Mutex
	containers map[string]bool
	blobs      map[string][]byte
	denyReads  bool
}

func newBlobServer() *blobServer {
	return &blobServer{containers: map[string]bool{}, blobs: map[string][]byte{}}
}

func (b *blobServer) fail(w http.ResponseWriter, status int, code string) {
	w.Header().Set("x-ms-error-code", code)
	w.WriteHeader(status)
}

func (b *blobServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	container, name, _ := strings.Cut(path, "/")
	query := r.URL.Query()

	switch {
	case r.Method == http.MethodPut && query.Get("restype") == "container":
		if b.containers[container] {
			b.fail(w, http.StatusConflict, "ContainerAlreadyExists")
			return
		}
		b.containers[container] = true
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodGet && query.Get("comp") == "list":
		prefix := query.Get("prefix")
		var items strings.Builder
		for key := range b.blobs {
			if strings.HasPrefix(key, prefix) {
				fmt.Fprintf(&items, "<Blob><Name>%s</Name><Properties></Properties></Blob>", key)
			}
		}
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><EnumerationResults ServiceEndpoint="http://%s/" ContainerName="%s"><Prefix>%s</Prefix><Blobs>%s</Blobs><NextMarker /></EnumerationResults>`,
			r.Host, container, prefix, items.String())

	case r.Method == http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		b.blobs[name] = data
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodGet:
		if b.denyReads {
			b.fail(w, http.StatusForbidden, "AuthorizationFailure")
			return
		}
		data, ok := b.blobs[name]
		if !ok {
			b.fail(w, http.StatusNotFound, "BlobNotFound")
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data)

	case r.Method == http.MethodDelete:
		if _, ok := b.blobs[name]; !ok {
			b.fail(w, http.StatusNotFound, "BlobNotFound")
			return
		}
		delete(b.blobs, name)
		w.WriteHeader(http.StatusAccepted)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestAzureStorage(t *testing.T, fake *blobServer) *AzureStorage {
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := azblob.NewClientWithNoCredential(server.URL+"/", nil)
	require.NoError(t, err)

	s, err := newAzureStorage(client, "bzz")
	require.NoError(t, err)
	return s
}

func TestAzureStorage_StoreRetrieveList(t *testing.T) {
	s := newTestAzureStorage(t, newBlobServer())

	require.NoError(t, s.Store("posts/42/summary.json", []byte(`{"post_id":"42"}`)))
	require.NoError(t, s.Store("posts/42/triggers.log", []byte("42,line\n")))
	require.NoError(t, s.Store("posts/7/summary.json", []byte(`{}`)))

	data, err := s.Retrieve("posts/42/summary.json")
	require.NoError(t, err)
	assert.Equal(t, `{"post_id":"42"}`, string(data))

	names, err := s.List("posts/42/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"posts/42/summary.json", "posts/42/triggers.log"}, names)
}

func TestAzureStorage_ExistingContainerIsReused(t *testing.T) {
	fake := newBlobServer()
	fake.containers["bzz"] = true

	s := newTestAzureStorage(t, fake)
	assert.Equal(t, "bzz", s.containerName)
}

func TestAzureStorage_RetrieveMissing(t *testing.T) {
	s := newTestAzureStorage(t, newBlobServer())

	_, err := s.Retrieve("posts/1/summary.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAzureStorage_RetrieveFailure(t *testing.T) {
	fake := newBlobServer()
	fake.denyReads = true
	s := newTestAzureStorage(t, fake)

	_, err := s.Retrieve("posts/1/summary.json")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorContains(t, err, "failed to download blob")
}

func TestAzureStorage_DeleteMissingIsNotAnError(t *testing.T) {
	s := newTestAzureStorage(t, newBlobServer())

	require.NoError(t, s.Store("posts/1/summary.json", []byte("{}")))
	require.NoError(t, s.Delete("posts/1/summary.json"))
	require.NoError(t, s.Delete("posts/1/summary.json"))

	_, err := s.Retrieve("posts/1/summary.json")
	assert.ErrorIs(t, err, ErrNotFound)
}
