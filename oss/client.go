// Package oss implements the Aliyun OSS object store client used for
// file upload and download: V4-signed requests, ranged streaming
// downloads and concurrent multipart uploads.
package oss

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/itsneelabh/infergate/core"
	"github.com/itsneelabh/infergate/telemetry"
)

const (
	// getObjectRangeSize is the window of each ranged download GET.
	getObjectRangeSize = 16 * 1024 * 1024

	// putObjectMaxSize is the hard cap on uploads.
	putObjectMaxSize = 512 * 1024 * 1024

	// multipartUploadThreshold separates single-PUT uploads from
	// multipart ones.
	multipartUploadThreshold = 16 * 1024 * 1024

	// multipartUploadPartSize is the size of each uploaded part.
	multipartUploadPartSize = 4 * 1024 * 1024

	// multipartUploadWorkers bounds concurrent part uploads.
	multipartUploadWorkers = 3

	// rangeRetryAttempts bounds per-range and per-part attempts.
	rangeRetryAttempts = 4
)

// Client is an Aliyun OSS client scoped to one bucket and key prefix.
type Client struct {
	config     core.OSSConfig
	signer     signer
	baseURL    string // http://<bucket>.<endpoint>, overridable in tests
	httpClient *http.Client
	logger     core.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// NewClient creates an OSS client. The region for the signature scope
// is derived from the endpoint.
func NewClient(config core.OSSConfig, logger core.Logger) (*Client, error) {
	region, err := config.Region()
	if err != nil {
		return nil, err
	}

	c := &Client{
		config: config,
		signer: signer{
			accessKeyID:     config.AccessKeyID,
			accessKeySecret: config.AccessKeySecret,
			bucket:          config.Bucket,
			region:          region,
		},
		baseURL: "http://" + config.Bucket + "." + config.Endpoint,
		// No client-level timeout: a 512 MiB upload over a slow link is
		// legitimate. Contexts bound individual requests.
		httpClient: telemetry.NewTracedHTTPClient(0),
		logger:     logger,
		now:        time.Now,
		sleep:      time.Sleep,
	}

	if c.logger == nil {
		c.logger = &core.NoOpLogger{}
	} else if cal, ok := c.logger.(core.ComponentAwareLogger); ok {
		c.logger = cal.WithComponent("oss")
	}

	return c, nil
}

// GetObject streams an object's bytes in offset order. The body is
// fetched in 16 MiB ranges behind an io.Pipe, so a slow consumer
// backpressures the producer and an abandoned reader collapses it.
// When a range cannot be completed after all retries the reader ends
// with an error wrapping core.ErrShortDownload, never a silent short
// read.
func (c *Client) GetObject(ctx context.Context, name string) (io.ReadCloser, *ObjectMeta, error) {
	key, err := c.buildKey(name)
	if err != nil {
		return nil, nil, err
	}

	meta, err := c.statObject(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	pr, pw := io.Pipe()
	go c.streamObject(ctx, pw, key, meta.ContentLength)
	return pr, meta, nil
}

func (c *Client) streamObject(ctx context.Context, pw *io.PipeWriter, key string, length uint64) {
	for start := uint64(0); start < length; start += getObjectRangeSize {
		end := start + getObjectRangeSize - 1
		if end > length-1 {
			end = length - 1
		}

		// Bytes of this range already handed to the reader; replays
		// resume past them instead of re-yielding.
		want := end - start + 1
		yielded := uint64(0)
		done := false
		for retry := 0; retry < rangeRetryAttempts; retry++ {
			if retry > 0 {
				c.sleep(time.Duration(retry) * time.Second)
			}

			n, err := c.copyRange(ctx, pw, key, start+yielded, end)
			yielded += n
			if err == nil && yielded < want {
				// Body ended cleanly but early; treat as a failed attempt.
				err = io.ErrUnexpectedEOF
			}
			if err == nil {
				done = true
				break
			}
			if isPipeClosed(err) {
				// Reader went away; nothing left to produce.
				return
			}
			c.logger.WarnWithContext(ctx, "Object range read failed, retrying", map[string]interface{}{
				"operation": "oss_get_range",
				"key":       key,
				"start":     start + yielded,
				"end":       end,
				"attempt":   retry + 1,
				"error":     err.Error(),
			})
		}
		if !done {
			pw.CloseWithError(fmt.Errorf("%w: object %s at offset %d", core.ErrShortDownload, key, start+yielded))
			return
		}
	}
	pw.Close()
}

// copyRange performs one ranged GET and copies the body into the pipe,
// returning how many bytes made it through.
func (c *Client) copyRange(ctx context.Context, pw *io.PipeWriter, key string, start, end uint64) (uint64, error) {
	headers := http.Header{}
	headers.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := c.request(ctx, http.MethodGet, key, nil, headers, nil, 0)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(pw, resp.Body)
	return uint64(n), err
}

// isPipeClosed reports whether the copy failed on the write side, i.e.
// the consumer closed the reader.
func isPipeClosed(err error) bool {
	return err == io.ErrClosedPipe || strings.Contains(err.Error(), "closed pipe")
}

// statObject fetches the object's metadata with a bodyless GET.
func (c *Client) statObject(ctx context.Context, key string) (*ObjectMeta, error) {
	resp, err := c.request(ctx, http.MethodGet, key, nil, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		return nil, fmt.Errorf("missing response header 'Content-Type'")
	}
	contentLength, err := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid response header 'Content-Length': %w", err)
	}
	return &ObjectMeta{ContentType: contentType, ContentLength: contentLength}, nil
}

// PutObject stores the body under a fresh "<uuid>.<ext>" name and
// returns it. Bodies at or below 16 MiB go up in a single PUT, larger
// ones through a concurrent multipart upload. Bodies over 512 MiB are
// rejected.
func (c *Client) PutObject(ctx context.Context, body io.Reader, meta ObjectMeta) (string, error) {
	if meta.ContentLength > putObjectMaxSize {
		return "", &core.GatewayError{
			Op:      "oss.PutObject",
			Kind:    "oss",
			Message: fmt.Sprintf("object of %d bytes exceeds the %d byte limit", meta.ContentLength, putObjectMaxSize),
			Err:     core.ErrObjectTooLarge,
		}
	}

	ext, err := meta.Extension()
	if err != nil {
		return "", err
	}
	name := uuid.New().String() + "." + ext
	key, err := c.buildKey(name)
	if err != nil {
		return "", err
	}

	headers := http.Header{}
	headers.Set("Content-Type", meta.ContentType)
	headers.Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", percentEncode(name, false)))

	if meta.ContentLength <= multipartUploadThreshold {
		err = c.putSingle(ctx, key, body, headers)
	} else {
		err = c.multipartUpload(ctx, key, body, headers)
	}
	if err != nil {
		return "", err
	}

	c.logger.InfoWithContext(ctx, "Object stored", map[string]interface{}{
		"operation": "oss_put",
		"key":       key,
		"bytes":     meta.ContentLength,
		"multipart": meta.ContentLength > multipartUploadThreshold,
	})
	return name, nil
}

func (c *Client) putSingle(ctx context.Context, key string, body io.Reader, headers http.Header) error {
	data, err := io.ReadAll(io.LimitReader(body, multipartUploadThreshold))
	if err != nil {
		return fmt.Errorf("failed to read upload body: %w", err)
	}
	resp, err := c.request(ctx, http.MethodPut, key, nil, headers, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// multipartUpload slices the body into 4 MiB parts uploaded by at most
// three concurrent goroutines. Any failure after initiation aborts the
// upload server-side before the error is returned.
func (c *Client) multipartUpload(ctx context.Context, key string, body io.Reader, headers http.Header) (err error) {
	uploadID, err := c.initiateMultipartUpload(ctx, key, headers)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			c.abortMultipartUpload(key, uploadID)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(multipartUploadWorkers)

	var mu sync.Mutex
	var parts []MultipartUploadPart

	body = io.LimitReader(body, putObjectMaxSize)
	for partNumber := 1; ; partNumber++ {
		part := make([]byte, multipartUploadPartSize)
		n, readErr := io.ReadFull(body, part)
		if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
			err = fmt.Errorf("failed to read upload body: %w", readErr)
			break
		}
		if n > 0 {
			part := part[:n]
			partNumber := partNumber
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				result, err := c.uploadPart(gctx, key, uploadID, partNumber, part)
				if err != nil {
					return err
				}
				mu.Lock()
				parts = append(parts, result)
				mu.Unlock()
				return nil
			})
		}
		if readErr != nil {
			break
		}
	}

	if waitErr := g.Wait(); waitErr != nil && err == nil {
		err = waitErr
	}
	if err != nil {
		return err
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return c.completeMultipartUpload(ctx, key, uploadID, parts)
}

func (c *Client) initiateMultipartUpload(ctx context.Context, key string, headers http.Header) (string, error) {
	resp, err := c.request(ctx, http.MethodPost, key, map[string]string{"uploads": ""}, headers, nil, 0)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result initiateMultipartUploadResult
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse InitiateMultipartUpload response: %w", err)
	}
	if result.UploadID == "" {
		return "", fmt.Errorf("missing element 'UploadId'")
	}
	return result.UploadID, nil
}

func (c *Client) uploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (MultipartUploadPart, error) {
	query := map[string]string{
		"uploadId":   uploadID,
		"partNumber": strconv.Itoa(partNumber),
	}

	var lastErr error
	for retry := 0; retry < rangeRetryAttempts; retry++ {
		if retry > 0 {
			c.sleep(time.Duration(retry) * time.Second)
		}

		resp, err := c.request(ctx, http.MethodPut, key, query, nil, bytes.NewReader(data), int64(len(data)))
		if err != nil {
			lastErr = err
			continue
		}
		etag := resp.Header.Get("ETag")
		resp.Body.Close()
		if etag == "" {
			return MultipartUploadPart{}, fmt.Errorf("missing response header 'ETag'")
		}
		return MultipartUploadPart{PartNumber: partNumber, ETag: etag}, nil
	}

	return MultipartUploadPart{}, fmt.Errorf("Failed to upload part (part_number=%d) after %d retries: %v",
		partNumber, rangeRetryAttempts-1, lastErr)
}

func (c *Client) completeMultipartUpload(ctx context.Context, key, uploadID string, parts []MultipartUploadPart) error {
	content, err := xml.MarshalIndent(completeMultipartUpload{Parts: parts}, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to serialize CompleteMultipartUpload: %w", err)
	}

	resp, err := c.request(ctx, http.MethodPost, key, map[string]string{"uploadId": uploadID},
		nil, bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// abortMultipartUpload discards the server-side upload state so failed
// uploads do not accumulate billable orphaned parts. Best effort: the
// original failure is what the caller sees.
func (c *Client) abortMultipartUpload(key, uploadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := c.request(ctx, http.MethodDelete, key, map[string]string{"uploadId": uploadID}, nil, nil, 0)
	if err != nil {
		c.logger.Warn("Failed to abort multipart upload", map[string]interface{}{
			"operation": "oss_abort_multipart",
			"key":       key,
			"upload_id": uploadID,
			"error":     err.Error(),
		})
		return
	}
	resp.Body.Close()
}

// buildKey validates the object name and joins it below the configured
// prefix. Names with path separators are rejected so callers cannot
// escape the prefix.
func (c *Client) buildKey(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", &core.GatewayError{
			Op:      "oss.buildKey",
			Kind:    "oss",
			Message: fmt.Sprintf("Invalid file name: %s", name),
			Err:     core.ErrInvalidInput,
		}
	}
	return path.Join("/", c.config.Prefix, name), nil
}

// request performs one signed request and returns the response on any
// 2xx status. The query map is rendered in canonical (sorted) order so
// the signed form matches the sent form.
func (c *Client) request(ctx context.Context, method, key string, query map[string]string, headers http.Header, body io.Reader, contentLength int64) (*http.Response, error) {
	if headers == nil {
		headers = http.Header{}
	}

	// Caller-provided header names become the AdditionalHeaders clause.
	additional := make([]string, 0, len(headers))
	for name := range headers {
		additional = append(additional, strings.ToLower(name))
	}
	sort.Strings(additional)

	host := c.config.Bucket + "." + c.config.Endpoint
	now := c.now().UTC()
	headers.Set("Host", host)
	headers.Set("Date", now.Format(http.TimeFormat))
	headers.Set("x-oss-date", now.Format("20060102T150405Z"))
	headers.Set("x-oss-content-sha256", unsignedPayload)

	auth, err := c.signer.authorize(key, method, query, headers, additional)
	if err != nil {
		return nil, err
	}
	headers.Set("Authorization", auth)

	url := c.baseURL + percentEncode(key, true)
	if qs := canonicalQuery(query); qs != "" {
		url += "?" + qs
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for name, values := range headers {
		req.Header[name] = values
	}
	req.Host = host
	if body != nil {
		req.ContentLength = contentLength
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &core.GatewayError{
			Op:      "oss.request",
			Kind:    "oss",
			Message: fmt.Sprintf("Request failed (%d): %s", resp.StatusCode, respBody),
			Err:     core.ErrRequestFailed,
		}
	}
	return resp, nil
}
