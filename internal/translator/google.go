package translator

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// googleEndpoint is the lightweight mobile translation page.
	googleEndpoint = "https://translate.google.com/m"
	// googleMaxChars is the hard input limit; longer spans are rejected
	// as non-retryable so the caller falls back to the original text.
	googleMaxChars = 5000

	googleUserAgent = "Mozilla/4.0 (compatible;MSIE 6.0;Windows NT 5.1;SV1;.NET CLR 1.1.4322;.NET CLR 2.0.50727;.NET CLR 3.0.04506.30)"
)

var googleResultRe = regexp.MustCompile(`(?s)class="(?:t0|result-container)">(.*?)<`)

// Google translates through the public web endpoint. No API key needed.
type Google struct {
	endpoint string
	langIn   string
	langOut  string
	client   *http.Client
}

// NewGoogle builds the provider. Recognized params: endpoint, lang_in,
// lang_out, all optional.
func NewGoogle(params map[string]any) *Google {
	langOut := stringParam(params, "lang_out", "zh-CN")
	if langOut == "zh" {
		langOut = "zh-CN"
	}
	return &Google{
		endpoint: stringParam(params, "endpoint", googleEndpoint),
		langIn:   stringParam(params, "lang_in", "en"),
		langOut:  langOut,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Translate implements Translator.
func (g *Google) Translate(ctx context.Context, text string) (string, error) {
	if len(text) > googleMaxChars {
		return "", NewFatal("google",
			fmt.Sprintf("text length %d exceeds limit %d", len(text), googleMaxChars), nil)
	}

	q := url.Values{}
	q.Set("sl", g.langIn)
	q.Set("tl", g.langOut)
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", NewFatal("google", "building request", err)
	}
	req.Header.Set("User-Agent", googleUserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", NewRetryable("google", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", NewRetryable("google", fmt.Sprintf("status %d", resp.StatusCode), nil)
	default:
		return "", NewFatal("google", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewRetryable("google", "reading response", err)
	}

	m := googleResultRe.FindSubmatch(body)
	if m == nil {
		return "", NewFatal("google", "no translation in response", nil)
	}
	return strings.TrimSpace(html.UnescapeString(string(m[1]))), nil
}
