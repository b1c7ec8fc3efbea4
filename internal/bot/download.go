package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/common"
)

const defaultFileName = "downloaded_file"

var errBlockedAddress = errors.New("address not publicly routable")

// sharedAddressSpace is the carrier-grade NAT range, which netip does not
// treat as private.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// publicAddress reports whether ip may be fetched on a user's behalf.
func publicAddress(ip netip.Addr) bool {
	ip = ip.Unmap()
	switch {
	case !ip.IsValid(),
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast(),
		ip.IsUnspecified(),
		sharedAddressSpace.Contains(ip):
		return false
	}
	return true
}

// guardDial runs after DNS resolution, so it also covers redirects and
// hostnames that resolve to internal addresses.
func guardDial(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("dial %s %s: %w", network, address, errBlockedAddress)
	}
	if !publicAddress(ap.Addr()) {
		return fmt.Errorf("dial %s: %w", ap.Addr(), errBlockedAddress)
	}
	return nil
}

// NewIngestClient returns the client used for URL ingest. It refuses to
// connect to loopback, private or link-local addresses.
func NewIngestClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   guardDial,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: timeout, Transport: transport}
}

// fetchError is a download failure whose message is safe to show the user.
type fetchError struct {
	msg string
}

func (e *fetchError) Error() string { return e.msg }

// download fetches rawURL into memory. The upload that follows needs the
// whole body, so the size ceiling is enforced before and while reading.
func (d *Dispatcher) download(ctx context.Context, rawURL string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, &fetchError{msg: "invalid URL."}
	}

	resp, err := d.httpClient.Do(req)
	if errors.Is(err, errBlockedAddress) {
		return "", nil, fmt.Errorf("fetch %s: %w", rawURL, &fetchError{msg: "URL points to a private address."})
	}
	if err != nil {
		return "", nil, fmt.Errorf("fetch %s: %w", rawURL, &fetchError{msg: "could not reach the URL."})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", nil, &fetchError{msg: "failed to fetch URL: " + resp.Status}
	}

	limit := d.cfg.MaxUploadSize
	if resp.ContentLength > limit {
		return "", nil, fmt.Errorf("content length %s: %w", humanize.Bytes(uint64(resp.ContentLength)), common.ErrTooLarge)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", rawURL, &fetchError{msg: "download interrupted."})
	}
	if int64(len(data)) > limit {
		return "", nil, fmt.Errorf("body exceeds %s: %w", humanize.Bytes(uint64(limit)), common.ErrTooLarge)
	}

	return fileNameFor(resp.Header.Get("Content-Disposition"), resp.Request.URL), data, nil
}

// fileNameFor prefers the Content-Disposition filename, then the last URL
// path segment if it looks like a file name.
func fileNameFor(disposition string, u *url.URL) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := path.Base(strings.ReplaceAll(params["filename"], `\`, "/")); name != "" && name != "." && name != "/" {
				return name
			}
		}
	}
	if u != nil {
		if last := path.Base(u.Path); strings.Contains(last, ".") && last != "." && last != ".." {
			return last
		}
	}
	return defaultFileName
}
