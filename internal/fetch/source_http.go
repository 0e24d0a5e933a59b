package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

type httpSource struct {
	client *http.Client
}

func (s httpSource) open(ctx context.Context, target *url.URL) (io.ReadCloser, int64, error) {
	uri := target.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, 0, networkError(uri, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, networkError(uri, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, 0, statusError(uri, resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}
