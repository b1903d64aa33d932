package webdav

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gobeaver/nodekit"
)

const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:"><d:prop><d:resourcetype/><d:getcontentlength/><d:getlastmodified/></d:prop></d:propfind>`

// Adapter is a hierarchical backend over a WebDAV server such as Nextcloud
type Adapter struct {
	client   *resty.Client
	baseURL  string
	basePath string
}

// AdapterOption configures the WebDAV Adapter
type AdapterOption func(*resty.Client)

// WithBasicAuth sets the credentials sent with every request
func WithBasicAuth(username, password string) AdapterOption {
	return func(c *resty.Client) {
		if username != "" {
			c.SetBasicAuth(username, password)
		}
	}
}

// WithTimeout bounds every request
func WithTimeout(d time.Duration) AdapterOption {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

// WithTransport replaces the HTTP round tripper
func WithTransport(rt http.RoundTripper) AdapterOption {
	return func(c *resty.Client) {
		c.SetTransport(rt)
	}
}

// New returns an adapter rooted at baseURL, e.g.
// https://cloud.example.com/remote.php/dav/files/alice
func New(baseURL string, options ...AdapterOption) (*Adapter, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid webdav url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid webdav url %q", baseURL)
	}

	client := resty.New().SetBaseURL(u.String())
	for _, option := range options {
		option(client)
	}
	return &Adapter{client: client, baseURL: u.String(), basePath: u.Path}, nil
}

// ============================================================================
// Multistatus decoding
// ============================================================================

type multistatus struct {
	Responses []response `xml:"DAV: response"`
}

type response struct {
	Href      string     `xml:"DAV: href"`
	Propstats []propstat `xml:"DAV: propstat"`
}

type propstat struct {
	Prop   prop   `xml:"DAV: prop"`
	Status string `xml:"DAV: status"`
}

type prop struct {
	ResourceType  resourceType `xml:"DAV: resourcetype"`
	ContentLength string       `xml:"DAV: getcontentlength"`
	LastModified  string       `xml:"DAV: getlastmodified"`
}

type resourceType struct {
	Collection *struct{} `xml:"DAV: collection"`
}

func (r response) metadata() nodekit.Metadata {
	var md nodekit.Metadata
	for _, ps := range r.Propstats {
		if ps.Status != "" && !strings.Contains(ps.Status, " 200") {
			continue
		}
		if ps.Prop.ResourceType.Collection != nil {
			md.Kind = nodekit.KindDirectory
		}
		if ps.Prop.ContentLength != "" {
			md.Size, _ = strconv.ParseInt(ps.Prop.ContentLength, 10, 64)
		}
		if ps.Prop.LastModified != "" {
			md.LastModified, _ = http.ParseTime(ps.Prop.LastModified)
		}
	}
	if md.Kind != nodekit.KindDirectory {
		md.Kind = nodekit.KindFile
	} else {
		md.Size = 0
	}
	return md
}

// hrefPath returns the unescaped server path of an href without a trailing
// separator.
func hrefPath(href string) string {
	if u, err := url.Parse(href); err == nil {
		href = u.Path
	} else if p, err := url.PathUnescape(href); err == nil {
		href = p
	}
	return strings.TrimSuffix(href, "/")
}

// ============================================================================
// Requests
// ============================================================================

// target returns the request path for a backend path
func (a *Adapter) target(p string) string {
	p = nodekit.Strip(p)
	if p == "" {
		return "/"
	}
	segs := strings.Split(p, nodekit.Separator)
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return "/" + strings.Join(segs, "/")
}

func (a *Adapter) serverPath(p string) string {
	return strings.TrimSuffix(path.Join("/", a.basePath, nodekit.Strip(p)), "/")
}

func checkPath(op, p string) error {
	for _, seg := range strings.Split(nodekit.Strip(p), nodekit.Separator) {
		if seg == ".." || seg == "." {
			return nodekit.NewPathError(op, p, nodekit.ErrInvalidPath)
		}
	}
	return nil
}

func (a *Adapter) propfind(ctx context.Context, op, p, depth string) ([]response, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Depth", depth).
		SetHeader("Content-Type", "application/xml; charset=utf-8").
		SetBody(propfindBody).
		Execute("PROPFIND", a.target(p))
	if err != nil {
		return nil, nodekit.BackendError(op, p, err)
	}
	if resp.StatusCode() != http.StatusMultiStatus {
		return nil, statusError(op, p, resp.StatusCode())
	}

	var ms multistatus
	if err := xml.Unmarshal(resp.Body(), &ms); err != nil {
		return nil, nodekit.BackendError(op, p, fmt.Errorf("decode multistatus: %w", err))
	}
	return ms.Responses, nil
}

// Probe implements nodekit.Backend
func (a *Adapter) Probe(ctx context.Context, p string) (nodekit.Metadata, error) {
	if err := checkPath("probe", p); err != nil {
		return nodekit.Metadata{}, err
	}
	responses, err := a.propfind(ctx, "probe", p, "0")
	if err != nil {
		if nodekit.IsNotExist(err) {
			return nodekit.Metadata{Kind: nodekit.KindAbsent}, nil
		}
		return nodekit.Metadata{}, err
	}
	if len(responses) == 0 {
		return nodekit.Metadata{Kind: nodekit.KindAbsent}, nil
	}
	return responses[0].metadata(), nil
}

// Open implements nodekit.Backend
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	md, err := a.Probe(ctx, p)
	if err != nil {
		return nil, err
	}
	switch {
	case !md.Exists():
		return nil, nodekit.NewPathError("open", p, nodekit.ErrNotExist)
	case md.IsDir():
		return nil, nodekit.NewPathError("open", p, nodekit.ErrIsDir)
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(a.target(p))
	if err != nil {
		return nil, nodekit.BackendError("open", p, err)
	}
	if resp.StatusCode() != http.StatusOK {
		resp.RawBody().Close()
		return nil, statusError("open", p, resp.StatusCode())
	}
	return resp.RawBody(), nil
}

// Write implements nodekit.Backend
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, size int64) error {
	if err := checkPath("write", p); err != nil {
		return err
	}
	if nodekit.Strip(p) == "" {
		return nodekit.NewPathError("write", p, nodekit.ErrIsDir)
	}
	md, err := a.Probe(ctx, p)
	if err != nil {
		return err
	}
	if md.IsDir() {
		return nodekit.NewPathError("write", p, nodekit.ErrIsDir)
	}
	parent, _ := nodekit.ParentPath(p)
	if err := a.mkcolAll(ctx, "write", parent); err != nil {
		return err
	}

	// size is advisory; resty streams readers without buffering
	resp, err := a.client.R().SetContext(ctx).SetBody(content).Put(a.target(p))
	if err != nil {
		return nodekit.BackendError("write", p, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	}
	return statusError("write", p, resp.StatusCode())
}

// DeleteOne implements nodekit.Backend. Directories must be empty.
func (a *Adapter) DeleteOne(ctx context.Context, p string, dir bool) error {
	if err := checkPath("delete", p); err != nil {
		return err
	}
	if nodekit.Strip(p) == "" {
		return nodekit.NewPathError("delete", p, nodekit.ErrInvalidPath)
	}
	md, err := a.Probe(ctx, p)
	if err != nil {
		return err
	}
	switch {
	case !md.Exists():
		return nodekit.NewPathError("delete", p, nodekit.ErrNotExist)
	case dir && !md.IsDir():
		return nodekit.NewPathError("delete", p, nodekit.ErrNotDir)
	case !dir && md.IsDir():
		return nodekit.NewPathError("delete", p, nodekit.ErrIsDir)
	}
	if dir {
		children, err := a.ListImmediate(ctx, p)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return nodekit.NewPathError("delete", p, nodekit.ErrNotEmpty)
		}
	}

	resp, err := a.client.R().SetContext(ctx).Delete(a.target(p))
	if err != nil {
		return nodekit.BackendError("delete", p, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusNoContent, http.StatusAccepted:
		return nil
	}
	return statusError("delete", p, resp.StatusCode())
}

// CreateDirectoryMarker implements nodekit.Backend
func (a *Adapter) CreateDirectoryMarker(ctx context.Context, p string) error {
	if err := checkPath("mkdirs", p); err != nil {
		return err
	}
	return a.mkcolAll(ctx, "mkdirs", p)
}

// mkcolAll creates p and every missing parent, one MKCOL per level
func (a *Adapter) mkcolAll(ctx context.Context, op, p string) error {
	p = nodekit.Strip(p)
	if p == "" {
		return nil
	}
	segs := strings.Split(p, nodekit.Separator)
	for i := range segs {
		dir := strings.Join(segs[:i+1], nodekit.Separator)
		md, err := a.Probe(ctx, dir)
		if err != nil {
			return err
		}
		if md.IsDir() {
			continue
		}
		if md.Exists() {
			return nodekit.NewPathError(op, dir, nodekit.ErrNotDir)
		}

		resp, err := a.client.R().SetContext(ctx).Execute("MKCOL", a.target(dir))
		if err != nil {
			return nodekit.BackendError(op, dir, err)
		}
		switch resp.StatusCode() {
		case http.StatusCreated, http.StatusOK, http.StatusMethodNotAllowed:
			// 405 means another writer created it first
			continue
		}
		return statusError(op, dir, resp.StatusCode())
	}
	return nil
}

// ListImmediate implements nodekit.HierarchicalBackend
func (a *Adapter) ListImmediate(ctx context.Context, p string) ([]nodekit.Entry, error) {
	if err := checkPath("list", p); err != nil {
		return nil, err
	}
	responses, err := a.propfind(ctx, "list", p, "1")
	if err != nil {
		return nil, err
	}

	self := a.serverPath(p)
	entries := make([]nodekit.Entry, 0, len(responses))
	for _, r := range responses {
		hp := hrefPath(r.Href)
		if hp == self {
			if !r.metadata().IsDir() {
				return nil, nodekit.NewPathError("list", p, nodekit.ErrNotDir)
			}
			continue
		}
		if path.Dir(hp) != self && !(self == "" && path.Dir(hp) == "/") {
			continue
		}
		entries = append(entries, nodekit.Entry{Name: path.Base(hp), Metadata: r.metadata()})
	}
	return entries, nil
}

// CopyContent implements nodekit.Copier with a server-side COPY
func (a *Adapter) CopyContent(ctx context.Context, from, to string) error {
	if err := checkPath("copy", from); err != nil {
		return err
	}
	if err := checkPath("copy", to); err != nil {
		return err
	}
	parent, _ := nodekit.ParentPath(to)
	if err := a.mkcolAll(ctx, "copy", parent); err != nil {
		return err
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Destination", a.baseURL+a.target(to)).
		SetHeader("Overwrite", "T").
		SetHeader("Depth", "0").
		Execute("COPY", a.target(from))
	if err != nil {
		return nodekit.BackendError("copy", from, err)
	}
	switch resp.StatusCode() {
	case http.StatusCreated, http.StatusNoContent, http.StatusOK:
		return nil
	}
	return statusError("copy", from, resp.StatusCode())
}

func statusError(op, p string, code int) error {
	switch code {
	case http.StatusNotFound:
		return nodekit.NewPathError(op, p, nodekit.ErrNotExist)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nodekit.NewPathError(op, p, nodekit.ErrPermission)
	}
	return nodekit.BackendError(op, p, fmt.Errorf("unexpected status %d", code))
}

var (
	_ nodekit.HierarchicalBackend = (*Adapter)(nil)
	_ nodekit.Copier              = (*Adapter)(nil)
)
