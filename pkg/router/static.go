package router

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
)

// StaticHandler serves files from root. The request path is taken from the
// "filepath" route parameter when present. Without listing, directories that
// have no index.html are reported as not found. Every error the file server
// produces (404, 403, 416, ...) goes through the error pathway.
func StaticHandler(root http.FileSystem, listing bool) http.Handler {
	if !listing {
		root = noListingFS{root}
	}
	fileServer := http.FileServer(root)

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if fp := GetParam(req, "filepath"); fp != "" {
			req = req.Clone(req.Context())
			req.URL.Path = fp
			req.URL.RawPath = ""
		}
		fileServer.ServeHTTP(&staticErrorWriter{ResponseWriter: w, req: req}, req)
	})
}

// staticErrorWriter replaces the http.Error responses of http.FileServer
// with WriteError, dropping the body the file server writes after the status
type staticErrorWriter struct {
	http.ResponseWriter
	req    *http.Request
	failed bool
}

func (sw *staticErrorWriter) WriteHeader(statusCode int) {
	if statusCode >= http.StatusBadRequest {
		sw.failed = true
		WriteError(sw.ResponseWriter, sw.req, statusCode, http.StatusText(statusCode))
		return
	}
	sw.ResponseWriter.WriteHeader(statusCode)
}

func (sw *staticErrorWriter) Write(b []byte) (int, error) {
	if sw.failed {
		return len(b), nil
	}
	return sw.ResponseWriter.Write(b)
}

// Unwrap exposes the wrapped writer to http.ResponseController
func (sw *staticErrorWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if stat.IsDir() {
		index, err := n.fs.Open(path.Join(name, "index.html"))
		if err != nil {
			_ = f.Close()
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fs.ErrNotExist
			}
			return nil, err
		}
		_ = index.Close()
	}
	return f, nil
}
