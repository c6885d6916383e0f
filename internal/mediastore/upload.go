package mediastore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/raditia/duet-media/internal/signing"
)

// ProgressFunc receives upload progress as a percentage from 0 to 100,
// driven by bytes actually leaving the wire.
type ProgressFunc func(percent int)

// CredentialIssuer signs an exact upload parameter set. The submitted
// parameters must match the signed ones byte for byte or the store rejects
// the upload.
type CredentialIssuer interface {
	Issue(params map[string]string) (signing.Credential, error)
}

// UploadOptions carries the descriptive parameters included in the signed
// set.
type UploadOptions struct {
	Tags       []string
	Context    map[string]string
	OnProgress ProgressFunc
}

// Uploader performs direct multipart uploads to the store's upload
// endpoint. Upload failures are terminal: the signature is tied to its
// timestamp, so an automatic retry would be rejected identically.
type Uploader struct {
	issuer  CredentialIssuer
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// NewUploader creates an Uploader posting to baseURL (the store's
// /v1_1-style upload root).
func NewUploader(issuer CredentialIssuer, baseURL string, client *http.Client) *Uploader {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Uploader{
		issuer:  issuer,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		now:     time.Now,
	}
}

// Upload signs a fresh parameter set, streams the file as a multipart POST
// and returns the stored asset descriptor. Progress is reported through
// opts.OnProgress as the request body is consumed by the transport.
func (u *Uploader) Upload(ctx context.Context, file io.Reader, filename string, kind Kind, opts UploadOptions) (*Asset, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("mediastore: invalid resource type %q", kind)
	}

	params := map[string]string{
		"timestamp": strconv.FormatInt(u.now().Unix(), 10),
	}
	if len(opts.Tags) > 0 {
		params["tags"] = strings.Join(opts.Tags, ",")
	}
	if len(opts.Context) > 0 {
		params["context"] = encodeContext(opts.Context)
	}

	cred, err := u.issuer.Issue(params)
	if err != nil {
		return nil, fmt.Errorf("mediastore: request signature: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	// Submit exactly the values that were signed, plus the credential.
	fields := map[string]string{
		"api_key":   cred.APIKey,
		"signature": cred.Signature,
	}
	for k, v := range params {
		fields[k] = v
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("mediastore: write field %s: %w", k, err)
		}
	}

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("mediastore: create file part: %w", err)
	}
	if _, err := io.Copy(fw, file); err != nil {
		return nil, fmt.Errorf("mediastore: buffer file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("mediastore: finalize multipart body: %w", err)
	}

	body := io.Reader(&buf)
	if opts.OnProgress != nil {
		body = &progressReader{r: body, total: int64(buf.Len()), report: opts.OnProgress}
	}

	endpoint := fmt.Sprintf("%s/%s/%s/upload", u.baseURL, cred.CloudName, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("mediastore: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mediastore: upload: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mediastore: read upload response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("mediastore: upload failed: %s", upstreamMessage(resp.StatusCode, respBody))
	}

	var asset Asset
	if err := json.Unmarshal(respBody, &asset); err != nil {
		return nil, fmt.Errorf("mediastore: decode upload response: %w", err)
	}
	if asset.Kind == "" {
		asset.Kind = kind
	}

	if opts.OnProgress != nil {
		opts.OnProgress(100)
	}
	return &asset, nil
}

// encodeContext renders a context map in the store's pipe-delimited
// key=value form, with keys sorted for a stable signature.
func encodeContext(ctx map[string]string) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+ctx[k])
	}
	return strings.Join(pairs, "|")
}

// progressReader reports percentage progress as the transport drains the
// request body.
type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	last   int
	report ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 {
		p.sent += int64(n)
		pct := int(p.sent * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct != p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}
