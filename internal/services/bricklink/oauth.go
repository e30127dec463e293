package bricklink

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// BrickLink's store API uses OAuth 1.0a with HMAC-SHA1 signatures. Only the
// single-legged flow is needed (consumer + pre-issued access token), so the
// signer below stays deliberately small instead of pulling in a full OAuth
// client.
type oauthSigner struct {
	consumerKey    string
	consumerSecret string
	token          string
	tokenSecret    string
}

// authorizationHeader builds the signed OAuth Authorization header for a
// GET request with the given query parameters.
func (o *oauthSigner) authorizationHeader(method, rawURL string, query url.Values) string {
	oauthParams := map[string]string{
		"oauth_consumer_key":     o.consumerKey,
		"oauth_token":            o.token,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        fmt.Sprintf("%d", time.Now().Unix()),
		"oauth_nonce":            nonce(),
		"oauth_version":          "1.0",
	}

	all := url.Values{}
	for k, v := range oauthParams {
		all.Set(k, v)
	}
	for k, vs := range query {
		for _, v := range vs {
			all.Add(k, v)
		}
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(all.Get(k)))
	}
	paramString := strings.Join(pairs, "&")

	base := strings.ToUpper(method) + "&" + percentEncode(rawURL) + "&" + percentEncode(paramString)
	signingKey := percentEncode(o.consumerSecret) + "&" + percentEncode(o.tokenSecret)

	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(base))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	oauthParams["oauth_signature"] = signature

	headerKeys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		headerKeys = append(headerKeys, k)
	}
	sort.Strings(headerKeys)

	parts := make([]string, 0, len(headerKeys))
	for _, k := range headerKeys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, k, percentEncode(oauthParams[k])))
	}
	return "OAuth " + strings.Join(parts, ", ")
}

func nonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

// percentEncode applies RFC 3986 encoding as OAuth 1.0a requires; Go's
// QueryEscape uses '+' for spaces, which breaks signatures.
func percentEncode(s string) string {
	escaped := url.QueryEscape(s)
	return strings.ReplaceAll(escaped, "+", "%20")
}
