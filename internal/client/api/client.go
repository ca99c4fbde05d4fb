// Package api is a typed client for the GophDrive HTTP API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophdrive/internal/common"
)

// Tokens is the session issued by login and refresh.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type FolderEntry struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
}

type FileEntry struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
	MimeType     string `json:"mimeType"`
}

type Listing struct {
	Folders []FolderEntry `json:"folders"`
	Files   []FileEntry   `json:"files"`
}

type UploadResult struct {
	Success bool   `json:"success"`
	Key     string `json:"key,omitempty"`
	Error   string `json:"error,omitempty"`
}

type UploadSession struct {
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
}

type Part struct {
	PartNumber int32  `json:"PartNumber"`
	ETag       string `json:"ETag"`
}

// Client talks to one server. It keeps the current tokens and refreshes the
// access token once when a call is rejected with 401.
type Client struct {
	baseURL string
	http    *http.Client

	mu     sync.Mutex
	tokens Tokens
	// OnTokens is called whenever the session changes, e.g. to persist it.
	OnTokens func(Tokens)
}

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) SetTokens(t Tokens) {
	c.mu.Lock()
	c.tokens = t
	cb := c.OnTokens
	c.mu.Unlock()
	if cb != nil {
		cb(t)
	}
}

func (c *Client) Tokens() Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

func (c *Client) LoggedIn() bool {
	return c.Tokens().AccessToken != ""
}

// --- auth ---

func (c *Client) Signup(ctx context.Context, username, password string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/signup", map[string]string{"username": username, "password": password}, nil, false)
}

func (c *Client) Login(ctx context.Context, username, password string) error {
	var t Tokens
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", map[string]string{"username": username, "password": password}, &t, false); err != nil {
		return err
	}
	c.SetTokens(t)
	return nil
}

func (c *Client) Refresh(ctx context.Context) error {
	rt := c.Tokens().RefreshToken
	if rt == "" {
		return common.ErrUnauthorized
	}
	var t Tokens
	if err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": rt}, &t, false); err != nil {
		return err
	}
	c.SetTokens(t)
	return nil
}

// --- files ---

func (c *Client) List(ctx context.Context, prefix string) (*Listing, error) {
	var l Listing
	if err := c.doJSON(ctx, http.MethodGet, "/files/list?prefix="+url.QueryEscape(prefix), nil, &l, true); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *Client) CreateFolder(ctx context.Context, folderPath, currentFolder string) (string, error) {
	var out struct {
		Key string `json:"key"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/files/folder", map[string]string{"folderPath": folderPath, "currentFolder": currentFolder}, &out, true)
	return out.Key, err
}

func (c *Client) Delete(ctx context.Context, key string, isFolder bool) error {
	return c.doJSON(ctx, http.MethodPost, "/files/delete", map[string]any{"key": key, "isFolder": isFolder}, nil, true)
}

func (c *Client) Rename(ctx context.Context, key, newName string, isFolder bool) (string, error) {
	var out struct {
		Key string `json:"key"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/files/rename", map[string]any{"key": key, "newName": newName, "isFolder": isFolder}, &out, true)
	return out.Key, err
}

func (c *Client) Move(ctx context.Context, keys []string, targetFolder string) ([]string, error) {
	return c.relocate(ctx, "/files/move", keys, targetFolder)
}

func (c *Client) Copy(ctx context.Context, keys []string, targetFolder string) ([]string, error) {
	return c.relocate(ctx, "/files/copy", keys, targetFolder)
}

func (c *Client) relocate(ctx context.Context, path string, keys []string, targetFolder string) ([]string, error) {
	var out struct {
		Keys []string `json:"keys"`
	}
	err := c.doJSON(ctx, http.MethodPost, path, map[string]any{"keys": keys, "targetFolder": targetFolder}, &out, true)
	return out.Keys, err
}

func (c *Client) SignedURL(ctx context.Context, key string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/files/signed-url?key="+url.QueryEscape(key), nil, &out, true)
	return out.URL, err
}

// DownloadFile streams a file into w.
func (c *Client) DownloadFile(ctx context.Context, key string, w io.Writer) (int64, error) {
	return c.download(ctx, "/files/download-file?key="+url.QueryEscape(key), w)
}

// DownloadFolder streams a folder as a zip into w. A stream cut short by the
// server surfaces as an error from the copy.
func (c *Client) DownloadFolder(ctx context.Context, folder string, w io.Writer) (int64, error) {
	return c.download(ctx, "/files/download/"+escapePath(folder), w)
}

func (c *Client) download(ctx context.Context, path string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, true, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

// Upload sends local files through the simple (non-chunked) route.
func (c *Client) Upload(ctx context.Context, folder string, paths []string) ([]UploadResult, error) {
	var out struct {
		Results []UploadResult `json:"results"`
	}
	resp, err := c.do(ctx, true, func() (*http.Request, error) {
		body, contentType, err := filesForm(folder, paths)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files/upload", body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Results, nil
}

func filesForm(folder string, paths []string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if folder != "" {
		if err := mw.WriteField("folder", folder); err != nil {
			return nil, "", err
		}
	}
	for _, p := range paths {
		if err := addFile(mw, p); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func addFile(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	fw, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, f)
	return err
}

// --- chunked uploads ---

func (c *Client) InitiateUpload(ctx context.Context, fileName, contentType, folder string) (*UploadSession, error) {
	var s UploadSession
	err := c.doJSON(ctx, http.MethodPost, "/files/upload/initiate",
		map[string]string{"fileName": fileName, "contentType": contentType, "folder": folder}, &s, true)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) UploadChunk(ctx context.Context, s *UploadSession, partNumber int32, chunk []byte) (Part, error) {
	var p Part
	resp, err := c.do(ctx, true, func() (*http.Request, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("uploadId", s.UploadID)
		_ = mw.WriteField("key", s.Key)
		_ = mw.WriteField("partNumber", strconv.Itoa(int(partNumber)))
		fw, err := mw.CreateFormFile("chunk", "blob")
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(chunk); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files/upload/chunk", &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return p, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return p, fmt.Errorf("decode response: %w", err)
	}
	return p, nil
}

func (c *Client) CompleteUpload(ctx context.Context, s *UploadSession, parts []Part) error {
	return c.doJSON(ctx, http.MethodPost, "/files/upload/complete",
		map[string]any{"uploadId": s.UploadID, "key": s.Key, "parts": parts}, nil, true)
}

func (c *Client) AbortUpload(ctx context.Context, s *UploadSession) error {
	return c.doJSON(ctx, http.MethodPost, "/files/upload/abort",
		map[string]string{"uploadId": s.UploadID, "key": s.Key}, nil, true)
}

// --- transport ---

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, authed bool) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return err
		}
	}

	resp, err := c.do(ctx, authed, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do sends the request built by build. Authenticated calls rejected with 401
// are retried once after refreshing the access token, so build must be able
// to produce the request again.
func (c *Client) do(ctx context.Context, authed bool, build func() (*http.Request, error)) (*http.Response, error) {
	resp, err := c.send(authed, build)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && authed && c.Tokens().RefreshToken != "" {
		_ = resp.Body.Close()
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
		if resp, err = c.send(authed, build); err != nil {
			return nil, err
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func (c *Client) send(authed bool, build func() (*http.Request, error)) (*http.Response, error) {
	req, err := build()
	if err != nil {
		return nil, err
	}
	if authed {
		if at := c.Tokens().AccessToken; at != "" {
			req.Header.Set(common.AuthorizationHeaderName, "Bearer "+at)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	e := &Error{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, e); err != nil || e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
