package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/mini_hdfs_project/helper"
	"github.com/mini_hdfs_project/models"
)

// Client talks to the namenode HTTP surface.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient accepts a bare host ("10.0.0.5"), host:port, or a full URL.
func NewClient(namenode string) *Client {
	base := namenode
	if !strings.Contains(base, "://") {
		if !strings.Contains(base, ":") {
			base += helper.HTTP_ADDR
		}
		base = "http://" + base
	}
	return &Client{BaseURL: strings.TrimRight(base, "/"), HTTP: http.DefaultClient}
}

/* =============================== File-related functions =============================== */

// UploadFile sends the local file at path, named by its base name.
func (c *Client) UploadFile(path string) (models.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.UploadResult{}, errors.Wrap(err, "opening upload")
	}
	defer f.Close()
	return c.Upload(filepath.Base(path), f)
}

func (c *Client) Upload(filename string, r io.Reader) (models.UploadResult, error) {
	var result models.UploadResult

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return result, errors.Wrap(err, "building form")
	}
	if _, err := io.Copy(part, r); err != nil {
		return result, errors.Wrap(err, "reading upload")
	}
	if err := form.Close(); err != nil {
		return result, errors.Wrap(err, "building form")
	}

	resp, err := c.HTTP.Post(c.BaseURL+"/upload", form.FormDataContentType(), &body)
	if err != nil {
		return result, errors.Wrap(err, "posting upload")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result, responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, errors.Wrap(err, "decoding upload response")
	}
	log.Printf("[Client] Uploaded %q: %d bytes in %d chunks\n", filename, result.Size, len(result.ChunkIDs))
	return result, nil
}

func (c *Client) Download(filename string) ([]byte, error) {
	resp, err := c.HTTP.Get(c.BaseURL + "/download/" + url.PathEscape(filename))
	if err != nil {
		return nil, errors.Wrap(err, "requesting download")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, errors.Wrapf(helper.ErrFileNotFound, "%q", filename)
	default:
		return nil, responseError(resp)
	}
}

// DownloadFile writes filename to outPath, or to its base name when outPath is
// empty. An existing file is never overwritten: "<base>_copy<ext>" is used instead.
// It returns the path written.
func (c *Client) DownloadFile(filename, outPath string) (string, error) {
	data, err := c.Download(filename)
	if err != nil {
		return "", err
	}
	if outPath == "" {
		outPath = filepath.Base(filename)
	}
	outPath = freePath(outPath)
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return "", errors.Wrap(err, "writing download")
	}
	log.Printf("[Client] Downloaded %q as %s (%s)\n", filename, outPath, helper.TruncateOutput(data))
	return outPath, nil
}

func (c *Client) Status() (models.ClusterStatus, error) {
	var status models.ClusterStatus
	resp, err := c.HTTP.Get(c.BaseURL + "/status")
	if err != nil {
		return status, errors.Wrap(err, "requesting status")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return status, responseError(resp)
	}
	return status, errors.Wrap(json.NewDecoder(resp.Body).Decode(&status), "decoding status")
}

/* =============================== Helper functions =============================== */

func freePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_copy" + ext
}

func responseError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("namenode returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
